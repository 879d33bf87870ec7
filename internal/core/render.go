package core

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Rendering defaults
const (
	DefaultRenderTimeout    = 35 * time.Second
	DefaultRenderSettleTime = 500 * time.Millisecond
	DefaultScreenshotWidth  = 1280
	DefaultScreenshotHeight = 800
	screenshotQuality       = 100 // FullScreenshot emits PNG only at 100
)

// RenderOptions controls how a saved page is rendered to an image.
//
// This uses a real Chrome/Chromium browser (via the DevTools protocol) so that
// the page's own scripts and stylesheets get a chance to run before capture.
type RenderOptions struct {
	// ChromePath optionally overrides the Chrome/Chromium executable path.
	// If empty, chromedp will try to find a browser on PATH / default locations.
	ChromePath string
	// Headless controls whether Chrome runs without a visible window.
	Headless bool
	// Timeout is the per-page deadline for load + render + capture.
	// If <= 0, DefaultRenderTimeout is used.
	Timeout time.Duration
	// WaitSelector optionally waits for a CSS selector to become visible.
	WaitSelector string
	Width        int64
	Height       int64
}

// Screenshot loads pageURL in Chrome and returns a full-page PNG.
func Screenshot(ctx context.Context, pageURL string, opts RenderOptions) ([]byte, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultRenderTimeout
	}
	if opts.Width <= 0 {
		opts.Width = DefaultScreenshotWidth
	}
	if opts.Height <= 0 {
		opts.Height = DefaultScreenshotHeight
	}

	allocatorOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocatorOpts = append(allocatorOpts,
		chromedp.NoDefaultBrowserCheck,
		chromedp.NoFirstRun,
		chromedp.WindowSize(int(opts.Width), int(opts.Height)),
	)
	if opts.ChromePath != "" {
		allocatorOpts = append(allocatorOpts, chromedp.ExecPath(opts.ChromePath))
	}
	if opts.Headless {
		allocatorOpts = append(allocatorOpts, chromedp.Headless)
	} else {
		allocatorOpts = append(allocatorOpts, chromedp.Flag("headless", false))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocatorOpts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	runCtx, cancelRun := context.WithTimeout(browserCtx, opts.Timeout)
	defer cancelRun()

	// Wait for the load event so resources pulled from the archive are in.
	waitForLoad := func(ctx context.Context) error {
		if err := page.SetLifecycleEventsEnabled(true).Do(ctx); err != nil {
			return err
		}

		loaded := newLoadWaiter()
		chromedp.ListenTarget(ctx, loaded.observe)

		if err := chromedp.Navigate(pageURL).Do(ctx); err != nil {
			return err
		}
		return loaded.wait(ctx)
	}

	var buf []byte
	actions := []chromedp.Action{
		chromedp.ActionFunc(waitForLoad),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if strings.TrimSpace(opts.WaitSelector) != "" {
		actions = append(actions, chromedp.WaitVisible(opts.WaitSelector, chromedp.ByQuery))
	}
	actions = append(actions,
		chromedp.Sleep(DefaultRenderSettleTime),
		chromedp.FullScreenshot(&buf, screenshotQuality),
	)

	if err := chromedp.Run(runCtx, actions...); err != nil {
		return nil, err
	}
	return buf, nil
}

// loadWaiter latches the page's "load" lifecycle event. Navigate returns
// only after the page loaded, so the event usually fires before wait is
// called; the one-slot buffer keeps it.
type loadWaiter struct {
	ch chan struct{}
}

func newLoadWaiter() *loadWaiter {
	return &loadWaiter{ch: make(chan struct{}, 1)}
}

func (w *loadWaiter) observe(ev interface{}) {
	if e, ok := ev.(*page.EventLifecycleEvent); ok && e.Name == "load" {
		select {
		case w.ch <- struct{}{}:
		default:
		}
	}
}

func (w *loadWaiter) wait(ctx context.Context) error {
	select {
	case <-w.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ScreenshotPath is where the rendering of a capture saved at path goes:
// {timestamp}.png next to the saved file.
func ScreenshotPath(path string, asset Asset) string {
	return filepath.Join(filepath.Dir(path), asset.Timestamp+".png")
}

// RenderHook saves a PNG rendering of each saved HTML page.
type RenderHook struct {
	Options RenderOptions
	Logger  *slog.Logger
	// screenshot is swapped in tests.
	screenshot func(ctx context.Context, pageURL string, opts RenderOptions) ([]byte, error)
}

// NewRenderHook creates a RenderHook that drives a local Chrome.
func NewRenderHook(opts RenderOptions, logger *slog.Logger) *RenderHook {
	if logger == nil {
		logger = slog.Default()
	}
	return &RenderHook{Options: opts, Logger: logger, screenshot: Screenshot}
}

func (h *RenderHook) AfterWrite(ctx context.Context, asset Asset, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return &FilesystemError{Op: "read", Path: path, Err: err}
	}
	if !isHTML(path, content) {
		return nil
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return &FilesystemError{Op: "resolve", Path: path, Err: err}
	}
	png, err := h.screenshot(ctx, "file://"+filepath.ToSlash(abs), h.Options)
	if err != nil {
		return fmt.Errorf("render %s: %w", path, err)
	}

	out := ScreenshotPath(path, asset)
	if err := os.WriteFile(out, png, 0o644); err != nil {
		return &FilesystemError{Op: "write", Path: out, Err: err}
	}
	h.Logger.Info("saved screenshot", "path", out)
	return nil
}
