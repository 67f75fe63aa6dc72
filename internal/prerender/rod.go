package prerender

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// BrowserOptions selects and tunes the headless browser.
type BrowserOptions struct {
	// Bin is the browser executable. Required in serverless mode.
	Bin string
	// Serverless adds the flags constrained build containers need.
	Serverless  bool
	NoSandbox   bool
	PageTimeout time.Duration
	SettleDelay time.Duration
}

// ErrNoBrowser means serverless mode was requested without a browser binary.
var ErrNoBrowser = errors.New("serverless mode needs an explicit browser binary (CHROME_BIN or prerender.browser_bin)")

// RodRenderer drives a headless Chrome through the DevTools protocol.
type RodRenderer struct {
	opts     BrowserOptions
	launcher *launcher.Launcher
	browser  *rod.Browser
	logger   *zap.Logger
}

// resolveBin picks the browser executable. Local mode falls back to a Chrome
// on PATH and then to rod's managed download (empty string).
func resolveBin(opts BrowserOptions) (string, error) {
	if opts.Bin != "" {
		return opts.Bin, nil
	}
	if opts.Serverless {
		return "", ErrNoBrowser
	}
	if path, ok := launcher.LookPath(); ok {
		return path, nil
	}
	return "", nil
}

func newLauncher(opts BrowserOptions, bin string) *launcher.Launcher {
	l := launcher.New().Headless(true).Leakless(false)
	if bin != "" {
		l = l.Bin(bin)
	}
	if opts.NoSandbox || opts.Serverless {
		l = l.NoSandbox(true).Set(flags.Flag("disable-setuid-sandbox"))
	}
	if opts.Serverless {
		l = l.Set(flags.Flag("single-process")).
			Set(flags.Flag("no-zygote")).
			Set(flags.Flag("disable-dev-shm-usage")).
			Set(flags.Flag("disable-gpu"))
	}
	return l
}

// LaunchRod starts a browser and connects to it.
func LaunchRod(ctx context.Context, opts BrowserOptions, logger *zap.Logger) (*RodRenderer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.PageTimeout == 0 {
		opts.PageTimeout = 30 * time.Second
	}

	bin, err := resolveBin(opts)
	if err != nil {
		return nil, err
	}
	if bin == "" {
		logger.Info("no local Chrome found, using rod's managed browser")
	} else {
		logger.Debug("using browser", zap.String("bin", bin), zap.Bool("serverless", opts.Serverless))
	}

	l := newLauncher(opts, bin).Context(ctx)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launching browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connecting to browser: %w", err)
	}

	return &RodRenderer{opts: opts, launcher: l, browser: browser, logger: logger}, nil
}

// Render opens one page, waits for the network to go idle and the settle
// delay to pass, then returns the DOM. The page is always closed.
func (r *RodRenderer) Render(ctx context.Context, url string) (string, error) {
	page, err := r.browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", fmt.Errorf("opening page: %w", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			r.logger.Debug("closing page", zap.Error(err))
		}
	}()

	timed := page.Timeout(r.opts.PageTimeout)
	defer timed.CancelTimeout()

	waitIdle := timed.WaitRequestIdle(500*time.Millisecond, nil, nil, nil)
	if err := timed.Navigate(url); err != nil {
		return "", fmt.Errorf("navigating to %s: %w", url, err)
	}
	waitIdle()
	if err := timed.WaitLoad(); err != nil {
		return "", fmt.Errorf("waiting for load: %w", err)
	}

	if r.opts.SettleDelay > 0 {
		select {
		case <-time.After(r.opts.SettleDelay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	html, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("reading DOM: %w", err)
	}
	return html, nil
}

// Close shuts the browser down and removes its profile directory.
func (r *RodRenderer) Close() error {
	err := r.browser.Close()
	r.launcher.Kill()
	r.launcher.Cleanup()
	return err
}
