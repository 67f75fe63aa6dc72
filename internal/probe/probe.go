// Package probe polls an HTTP endpoint until it answers 200 OK.
package probe

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultRetries  = 15
	DefaultInterval = 500 * time.Millisecond
	DefaultTimeout  = time.Second
)

// Prober checks server readiness with a bounded number of attempts.
type Prober struct {
	Retries  int
	Interval time.Duration
	client   *http.Client
	logger   *zap.Logger
}

// New creates a prober. Zero values fall back to 15 attempts, 500ms apart,
// with a 1s per-attempt timeout.
func New(retries int, interval, timeout time.Duration, logger *zap.Logger) *Prober {
	if retries <= 0 {
		retries = DefaultRetries
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prober{
		Retries:  retries,
		Interval: interval,
		client: &http.Client{
			Timeout: timeout,
			// A redirect is not readiness.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger,
	}
}

// Check makes a single request and reports whether it returned exactly 200.
// Redirects are not followed. Connection errors and timeouts count as not
// ready.
func (p *Prober) Check(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// WaitReady polls url until it is ready or the retry budget is spent. There
// is no sleep after the final attempt.
func (p *Prober) WaitReady(ctx context.Context, url string) error {
	p.logger.Info("waiting for preview server", zap.String("url", url), zap.Int("max_attempts", p.Retries))

	for i := 0; i < p.Retries; i++ {
		if p.Check(ctx, url) {
			p.logger.Info("preview server is ready", zap.Int("attempts", i+1))
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if i < p.Retries-1 {
			timer := time.NewTimer(p.Interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	return fmt.Errorf("server at %s failed to become ready after %d attempts", url, p.Retries)
}
