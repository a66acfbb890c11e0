// Package snapshot screenshots preview pages with headless Chrome.
package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"
)

// Selector is the chat window element of a preview page.
const Selector = ".simulator"

const (
	defaultWidth   = 420
	defaultHeight  = 760
	defaultTimeout = 30 * time.Second
	// settleDelay lets web fonts and images referenced by the page load.
	settleDelay = 300 * time.Millisecond
)

type Config struct {
	Width   int
	Height  int
	Timeout time.Duration
	// ChromePath overrides the browser binary; empty searches PATH.
	ChromePath string
	Logger     *slog.Logger
}

// Shooter renders HTML pages in a fresh headless browser per capture.
type Shooter struct {
	width      int
	height     int
	timeout    time.Duration
	chromePath string
	logger     *slog.Logger
}

func New(cfg Config) *Shooter {
	if cfg.Width <= 0 {
		cfg.Width = defaultWidth
	}
	if cfg.Height <= 0 {
		cfg.Height = defaultHeight
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Shooter{
		width:      cfg.Width,
		height:     cfg.Height,
		timeout:    cfg.Timeout,
		chromePath: cfg.ChromePath,
		logger:     cfg.Logger,
	}
}

// NewContext creates a chromedp context for one capture.
// The caller MUST call cancel() when done.
func (s *Shooter) NewContext(parentCtx context.Context) (context.Context, context.CancelFunc) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.DisableGPU,
		chromedp.WindowSize(s.width, s.height),
		chromedp.Flag("hide-scrollbars", true),
	)
	if s.chromePath != "" {
		opts = append(opts, chromedp.ExecPath(s.chromePath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parentCtx, opts...)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)

	cancelAll := func() {
		taskCancel()
		allocCancel()
	}
	return taskCtx, cancelAll
}

// Capture renders html and returns a PNG of the chat window. The page is
// loaded from a temporary file so relative and file URLs resolve.
func (s *Shooter) Capture(ctx context.Context, html string) ([]byte, error) {
	if html == "" {
		return nil, fmt.Errorf("capture: empty page")
	}
	path, cleanup, err := writeTemp(html)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	taskCtx, cancel := s.NewContext(ctx)
	defer cancel()
	taskCtx, timeoutCancel := context.WithTimeout(taskCtx, s.timeout)
	defer timeoutCancel()

	start := time.Now()
	var png []byte
	err = chromedp.Run(taskCtx,
		chromedp.EmulateViewport(int64(s.width), int64(s.height)),
		chromedp.Navigate(fileURL(path)),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(settleDelay),
		chromedp.Screenshot(Selector, &png, chromedp.ByQuery, chromedp.NodeVisible),
	)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	s.logger.Debug("snapshot captured", "bytes", len(png), "elapsed", time.Since(start))
	return png, nil
}

// CaptureFile writes the screenshot of html to outPath.
func (s *Shooter) CaptureFile(ctx context.Context, html, outPath string) error {
	png, err := s.Capture(ctx, html)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(outPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(outPath, png, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

func writeTemp(html string) (path string, cleanup func(), err error) {
	f, err := os.CreateTemp("", "linepreview-*.html")
	if err != nil {
		return "", nil, fmt.Errorf("create temp page: %w", err)
	}
	cleanup = func() { os.Remove(f.Name()) }
	if _, err := f.WriteString(html); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("write temp page: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("close temp page: %w", err)
	}
	return f.Name(), cleanup, nil
}

// fileURL returns the file:// URL of an absolute path.
func fileURL(path string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	if len(u.Path) > 0 && u.Path[0] != '/' {
		// Windows drive paths
		u.Path = "/" + u.Path
	}
	return u.String()
}
