package core

import (
	"os"
	"path/filepath"
)

// Attachment represents a debug artifact captured during a test method
type Attachment struct {
	Name        string `json:"name"`        // Descriptive name: screenshot, source
	ContentType string `json:"contentType"` // MIME type: image/png, text/plain
	Path        string `json:"path"`        // File path on disk
	Body        []byte `json:"-"`           // In-memory content (not serialized to JSON)
}

// Common attachment names
const (
	AttachmentScreenshot = "screenshot"
	AttachmentSource     = "source"
)

// Common content types
const (
	ContentTypePNG  = "image/png"
	ContentTypeText = "text/plain"
)

// NewScreenshotAttachment creates a screenshot attachment
func NewScreenshotAttachment(path string, data []byte) Attachment {
	return Attachment{
		Name:        AttachmentScreenshot,
		ContentType: ContentTypePNG,
		Path:        path,
		Body:        data,
	}
}

// ScreenshotCapturer is the subset of Driver needed to capture artifacts.
type ScreenshotCapturer interface {
	Screenshot() ([]byte, error)
}

// CaptureScreenshot grabs a screenshot and writes it to dir/name.png.
func CaptureScreenshot(c ScreenshotCapturer, dir, name string) (Attachment, error) {
	data, err := c.Screenshot()
	if err != nil {
		return Attachment{}, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Attachment{}, err
	}
	path := filepath.Join(dir, name+".png")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Attachment{}, err
	}
	return NewScreenshotAttachment(path, data), nil
}
