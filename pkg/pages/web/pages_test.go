package web

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	assertpkg "github.com/devicelab-dev/e2e-runner/pkg/assert"
	"github.com/devicelab-dev/e2e-runner/pkg/core"
	"github.com/devicelab-dev/e2e-runner/pkg/driver/mock"
	"github.com/devicelab-dev/e2e-runner/pkg/element"
	"github.com/devicelab-dev/e2e-runner/pkg/fixture"
	"github.com/devicelab-dev/e2e-runner/pkg/report"
	"github.com/devicelab-dev/e2e-runner/pkg/wait"
)

const base = "https://ctf.example.com"

type session struct{ a *element.Actions }

func (s session) Actions() *element.Actions { return s.a }

func newSession(t *testing.T) (session, *mock.Driver, *report.MemorySink) {
	t.Helper()
	drv := mock.New(mock.Config{Platform: "web"})
	sink := &report.MemorySink{}
	w := &wait.Waiter{Timeout: 150 * time.Millisecond, Poll: 10 * time.Millisecond}
	return session{a: element.New(drv, w, report.New(sink), nil)}, drv, sink
}

func addLoginForm(drv *mock.Driver) {
	drv.Visible(loginHeader, "Login")
	drv.Visible(usernameInput, "")
	drv.Visible(passwordInput, "")
	drv.Visible(loginButton, "Login")
}

func addHomeLinks(drv *mock.Driver) {
	drv.Visible(dashboardLink, "Dashboard")
	drv.Visible(challengesLink, "Challenges")
	drv.Visible(scoreboardLink, "Scoreboard")
	drv.Visible(userProfileIcon, "")
	drv.Visible(logoutLink, "Logout")
}

func TestLogin_ReturnsCheckedHomePage(t *testing.T) {
	s, drv, sink := newSession(t)
	addLoginForm(drv)
	drv.Element(loginButton).OnClick = addHomeLinks

	ctx := context.Background()
	login, err := OpenLogin(ctx, s, base+"/")
	require.NoError(t, err)
	assert.True(t, login.IsLoaded(ctx))

	home, err := login.Login(ctx, "user@example.com", "pw")
	require.NoError(t, err)
	require.NotNil(t, home)

	assert.Equal(t, "user@example.com", drv.Element(usernameInput).Value)
	assert.Equal(t, "pw", drv.Element(passwordInput).Value)
	assert.Equal(t, 1, drv.Element(loginButton).Clicks())
	assert.Contains(t, sink.Messages(report.LevelPass), "Element 'dashboardLink' is displayed on the page")
	assert.Contains(t, sink.Messages(report.LevelPass), "Element 'challengesLink' is displayed on the page")
	assert.Contains(t, sink.Messages(report.LevelPass), "Element 'scoreboardLink' is displayed on the page")
	assert.Zero(t, sink.Count(report.LevelFail))

	var navigated string
	for _, c := range drv.Calls() {
		if c.Method == "Navigate" {
			navigated = c.Target
		}
	}
	assert.Equal(t, base+LoginPath, navigated)
}

func TestOpenLogin_MissingUsernameIsPrecondition(t *testing.T) {
	s, drv, _ := newSession(t)
	drv.Visible(loginHeader, "Login")

	_, err := OpenLogin(context.Background(), s, base)
	var pe *core.PreconditionError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "login page", pe.View)
	assert.Equal(t, []string{"Username or email"}, pe.Missing)
}

func TestOpenLogin_PartialFormOnlyWarns(t *testing.T) {
	s, drv, sink := newSession(t)
	drv.Visible(usernameInput, "")

	p, err := OpenLogin(context.Background(), s, base)
	require.NoError(t, err)
	assert.False(t, p.IsLoaded(context.Background()))
	assert.Contains(t, sink.Messages(report.LevelWarn), "Login page might not be fully loaded")
}

func TestLogin_HomeLinksMissing(t *testing.T) {
	s, drv, _ := newSession(t)
	addLoginForm(drv)
	drv.Visible(dashboardLink, "Dashboard")

	ctx := context.Background()
	login, err := OpenLogin(ctx, s, base)
	require.NoError(t, err)

	_, err = login.Login(ctx, "user@example.com", "wrong")
	var pe *core.PreconditionError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "home page", pe.View)
	assert.ElementsMatch(t, []string{"challengesLink", "scoreboardLink"}, pe.Missing)
}

func TestOpenLogin_PageNeverLoads(t *testing.T) {
	s, drv, _ := newSession(t)
	addLoginForm(drv)
	drv.Script = func(string, []interface{}) (interface{}, error) { return "loading", nil }

	_, err := OpenLogin(context.Background(), s, base)
	var pe *core.PreconditionError
	require.True(t, errors.As(err, &pe))
	var timeout *core.WaitTimeoutError
	assert.True(t, errors.As(err, &timeout))
}

func TestHome_Logout(t *testing.T) {
	s, drv, sink := newSession(t)
	addHomeLinks(drv)

	home, err := OpenHome(context.Background(), s, base)
	require.NoError(t, err)
	require.NoError(t, home.Logout(context.Background()))

	assert.Equal(t, 1, drv.Element(userProfileIcon).Clicks())
	assert.Equal(t, 1, drv.Element(logoutLink).Clicks())
	assert.Contains(t, sink.Messages(report.LevelPass), "Logout successful")
}

func TestHome_LogoutFailureIsReported(t *testing.T) {
	s, drv, sink := newSession(t)
	addHomeLinks(drv)

	home, err := OpenHome(context.Background(), s, base)
	require.NoError(t, err)
	drv.Remove(logoutLink)

	err = home.Logout(context.Background())
	require.Error(t, err)
	assert.Len(t, sink.Messages(report.LevelFail), 1)
}

func addChallengeBrowser(drv *mock.Driver) {
	drv.Visible(searchByID, "")
	drv.AddSelect(searchByCategory, "Web", "Cryptography", "Forensics")
	drv.Visible(searchByDifficulty, "")
	drv.Visible(searchBySolved, "")
	drv.Visible(searchByOrder, "")
}

func addCreateForm(drv *mock.Driver) {
	drv.Visible(createHeader, "Create A Challenge")
	drv.Visible(eventSelect, "")
	drv.Visible(titleInput, "")
	drv.Visible(flagInput, "")
	drv.Visible(descriptionTextarea, "")
	drv.Visible(howToSolveTextarea, "")
	drv.Visible(fileUploadInput, "")
	drv.AddSelect(pointsDropdown, "10", "20", "30")
	drv.Visible(submitButton, "Submit")
}

func TestChallenges_CreateChallengeLinkFallbacks(t *testing.T) {
	tests := []struct {
		name     string
		link     bool
		menuItem bool
		navigate bool
	}{
		{name: "page link", link: true},
		{name: "menu item", menuItem: true},
		{name: "direct url", navigate: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, drv, _ := newSession(t)
			addHomeLinks(drv)
			addChallengeBrowser(drv)
			addCreateForm(drv)
			if tt.link {
				drv.Visible(createChallengeLink, "Create")
			}
			if tt.menuItem {
				drv.Visible(createChallengeMenuItem, "Create Challenge")
			}

			ctx := context.Background()
			home, err := OpenHome(ctx, s, base)
			require.NoError(t, err)
			challenges, err := home.NavigateToChallenges(ctx)
			require.NoError(t, err)
			form, err := challenges.ClickCreateChallenge(ctx)
			require.NoError(t, err)
			require.NotNil(t, form)

			if tt.link {
				assert.Equal(t, 1, drv.Element(createChallengeLink).Clicks())
			}
			if tt.menuItem {
				assert.Equal(t, 1, drv.Element(createChallengeMenuItem).Clicks())
			}
			navigations := 0
			for _, c := range drv.Calls() {
				if c.Method == "Navigate" && c.Target == base+CreateChallengePath {
					navigations++
				}
			}
			assert.Equal(t, tt.navigate, navigations == 1)
		})
	}
}

func TestCreateChallenge_FillsFormAndVerifies(t *testing.T) {
	s, drv, sink := newSession(t)
	addChallengeBrowser(drv)
	addCreateForm(drv)

	attachment := filepath.Join(t.TempDir(), "challenge.txt")
	require.NoError(t, os.WriteFile(attachment, []byte("flag hidden here"), 0o644))

	want := &fixture.Challenge{
		Title:       "Automation Challenge-1a2b3c4d",
		Flag:        "CTFlearn{automation}",
		Description: "Find the flag",
		Category:    "Forensics",
		Points:      "20",
		HowToSolve:  "Read the file",
	}
	drv.Element(submitButton).OnClick = func(d *mock.Driver) {
		d.Visible(challengeTitleLabel, want.Title)
		d.Visible(challengeDescriptionLabel, want.Description)
		d.Visible(challengePointsLabel, want.Points)
		d.Visible(challengeCategoryLabel, want.Category)
		d.Visible(challengeFileName, "challenge.txt")
	}

	ctx := context.Background()
	form, err := OpenCreateChallenge(ctx, s)
	require.NoError(t, err)
	page, err := form.CreateChallenge(ctx, want, attachment)
	require.NoError(t, err)

	assert.Equal(t, want.Title, drv.Element(titleInput).Value)
	assert.Equal(t, want.Flag, drv.Element(flagInput).Value)
	assert.Equal(t, want.HowToSolve, drv.Element(howToSolveTextarea).Value)
	assert.Equal(t, attachment, drv.Element(fileUploadInput).Value)

	a := s.Actions()
	category, err := a.SelectedOption(ctx, categoryDropdown, "category")
	require.NoError(t, err)
	assert.Equal(t, "Forensics", category)
	points, err := a.SelectedOption(ctx, pointsDropdown, "points")
	require.NoError(t, err)
	assert.Equal(t, "20", points)

	sink.Reset()
	require.NoError(t, page.VerifyDetails(ctx, want, "challenge.txt", true))
	assert.Equal(t, 5, sink.Count(report.LevelPass))
	assert.Zero(t, sink.Count(report.LevelFail))
}

func TestCreateChallenge_UnknownCategory(t *testing.T) {
	s, drv, _ := newSession(t)
	addChallengeBrowser(drv)
	addCreateForm(drv)

	ctx := context.Background()
	form, err := OpenCreateChallenge(ctx, s)
	require.NoError(t, err)

	_, err = form.CreateChallenge(ctx, &fixture.Challenge{Title: "t", Category: "Pwn", Points: "10"}, "")
	var nf *core.ElementNotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Zero(t, drv.Element(submitButton).Clicks())
}

func TestVerifyDetails_Mismatches(t *testing.T) {
	s, drv, sink := newSession(t)
	drv.Visible(challengeTitleLabel, "Other title")
	drv.Visible(challengeDescriptionLabel, "desc")
	drv.Visible(challengePointsLabel, "10")
	drv.Visible(challengeCategoryLabel, "Web")
	drv.Visible(challengeFileName, "other.txt")

	ctx := context.Background()
	page, err := OpenChallengeHome(ctx, s)
	require.NoError(t, err)
	want := &fixture.Challenge{Title: "Mine", Description: "desc", Points: "10", Category: "Web"}

	sink.Reset()
	require.NoError(t, page.VerifyDetails(ctx, want, "challenge.txt", false))
	assert.Equal(t, 2, sink.Count(report.LevelFail))
	assert.Equal(t, 3, sink.Count(report.LevelPass))

	err = page.VerifyDetails(ctx, want, "challenge.txt", true)
	var mm *assertpkg.MismatchError
	require.True(t, errors.As(err, &mm))
	assert.Equal(t, "Challenge Title", mm.What)
	assert.Contains(t, err.Error(), "Challenge File Name")
}
