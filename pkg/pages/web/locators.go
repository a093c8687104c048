// Package web holds the page objects of the challenge platform web UI.
//
// Pages are built by Open* factories that check the page's signature
// elements and return *core.PreconditionError when any is missing.
package web

import (
	"github.com/devicelab-dev/e2e-runner/pkg/core"
	"github.com/devicelab-dev/e2e-runner/pkg/element"
)

// Session is what a page needs from an automation session.
type Session interface {
	Actions() *element.Actions
}

// Paths relative to the site base URL.
const (
	LoginPath           = "/user/login"
	CreateChallengePath = "/challenge/create"
)

// Login page.
var (
	loginHeader   = core.XPath("//h1[contains(text(), 'Login')]")
	usernameInput = core.XPath("//input[@class='form-control' and @name='identifier']")
	passwordInput = core.XPath("//input[@class='form-control' and @type='password']")
	loginButton   = core.XPath("//button[@type='submit' and contains(@class, 'btn-primary')]")
)

// Home page.
var (
	dashboardLink   = core.XPath("//a[@href='/dashboard']")
	challengesLink  = core.XPath("//a[@href='/challenge/1/browse' and @id='navbarDropdownMenuLink']")
	scoreboardLink  = core.XPath("//a[contains(text(), 'Scoreboard')]")
	userProfileIcon = core.XPath("//a[@id='profileDropdown']")
	logoutLink      = core.XPath("//a[@href='/user/logout']")
)

// Challenges page.
var (
	searchByID              = core.XPath("//input[@placeholder='Search by author, title, or ID']")
	searchByCategory        = core.XPath("//select[@id='category']")
	searchByDifficulty      = core.XPath("//select[@id='difficulty']")
	searchBySolved          = core.XPath("//select[@id='solved']")
	searchByOrder           = core.XPath("//select[@id='order']")
	createChallengeLink     = core.XPath("//a[contains(@href, '/challenge/create')]")
	createChallengeMenuItem = core.XPath("//a[contains(@class, 'dropdown-item') and contains(text(), 'Create Challenge')]")
)

// Create challenge page.
var (
	createHeader        = core.XPath("//span[text()='Create A Challenge']")
	eventSelect         = core.XPath("//select[@id='event_id']")
	titleInput          = core.XPath("//input[@id='title']")
	flagInput           = core.XPath("//input[@id='flag']")
	descriptionTextarea = core.XPath("//textarea[@id='flask-pagedown-description']")
	categoryDropdown    = core.XPath("//select[@id='category']")
	pointsDropdown      = core.XPath("//select[@id='points']")
	fileUploadInput     = core.XPath("//input[@type='file']")
	howToSolveTextarea  = core.XPath("//textarea[@id='howtosolve']")
	submitButton        = core.XPath("//button[@class ='btn btn-success form-control']")
)

// Challenge detail page.
var (
	challengeTitleLabel       = core.XPath("//h1[contains(text(), 'Challenges')]")
	challengeDescriptionLabel = core.XPath("//div[@id='description-display']")
	challengePointsLabel      = core.XPath("//span[@id='points-display']")
	challengeCategoryLabel    = core.XPath("//span[@id='category-display']")
	challengeFileName         = core.XPath("//a[@id='fileName']")
)
