package export

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Capturer turns rendered keepsake HTML into output bytes.
type Capturer interface {
	Capture(ctx context.Context, html string, format Format) ([]byte, error)
}

// ChromeCapturer drives a headless Chromium through chromedp.
type ChromeCapturer struct {
	// ExecPath overrides Chromium discovery.
	ExecPath string
	Timeout  time.Duration
}

var browserCandidates = []string{"chromium-browser", "chromium", "google-chrome", "headless-shell"}

func (c ChromeCapturer) lookupBrowser() (string, error) {
	if c.ExecPath != "" {
		if path, err := exec.LookPath(c.ExecPath); err == nil {
			return path, nil
		}
		return "", fmt.Errorf("%w: %s not found", ErrCaptureDependencyMissing, c.ExecPath)
	}
	for _, name := range browserCandidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: chromium not installed", ErrCaptureDependencyMissing)
}

func (c ChromeCapturer) Capture(ctx context.Context, html string, format Format) ([]byte, error) {
	browser, err := c.lookupBrowser()
	if err != nil {
		return nil, err
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Chrome options for headless mode in container
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(browser),
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
	)

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()

	taskCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	dataURL := "data:text/html;charset=utf-8," + percentEncodeForDataURL(html)

	var out []byte
	switch format {
	case FormatPNG:
		err = chromedp.Run(taskCtx,
			chromedp.EmulateViewport(800, 900, chromedp.EmulateScale(2)),
			chromedp.Navigate(dataURL),
			chromedp.WaitVisible(CardSelector, chromedp.ByQuery),
			chromedp.Screenshot(CardSelector, &out, chromedp.NodeVisible, chromedp.ByQuery),
		)
	case FormatPDF:
		err = chromedp.Run(taskCtx,
			chromedp.Navigate(dataURL),
			chromedp.WaitReady("body"),
			chromedp.ActionFunc(func(ctx context.Context) error {
				var err error
				out, _, err = page.PrintToPDF().
					WithPrintBackground(true).
					WithLandscape(true).
					WithPaperWidth(8.5).
					WithPaperHeight(11.0).
					WithMarginTop(0.4).
					WithMarginBottom(0.4).
					WithMarginLeft(0.4).
					WithMarginRight(0.4).
					Do(ctx)
				return err
			}),
		)
	default:
		return nil, ErrUnsupportedFormat
	}
	if err != nil {
		return nil, fmt.Errorf("chrome %s capture failed: %w", format, err)
	}
	return out, nil
}

// percentEncodeForDataURL encodes a string for use in a data URL.
// Spaces become %20, never +.
func percentEncodeForDataURL(s string) string {
	var result strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '-', r == '_', r == '.', r == '~':
			result.WriteRune(r)
		case r == ' ':
			result.WriteString("%20")
		default:
			for _, b := range []byte(string(r)) {
				fmt.Fprintf(&result, "%%%02X", b)
			}
		}
	}
	return result.String()
}

// keepsakeFilename builds "valentine-<id>.<ext>" from the safe characters
// of the id.
func keepsakeFilename(id string, format Format) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	name := b.String()
	if len(name) > 50 {
		name = name[:50]
	}
	if name == "" {
		name = "love-story"
	}
	return "valentine-" + name + "." + string(format)
}
