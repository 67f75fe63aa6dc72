// Package prerender snapshots client-rendered routes into static HTML.
package prerender

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Renderer loads a URL and returns the settled DOM as HTML.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
	Close() error
}

// RouteResult is the outcome for one route.
type RouteResult struct {
	Route    string
	Path     string
	Fallback bool // the CSR shell was written instead of a snapshot
	Issues   []Issue
	Err      error
}

// Result summarizes a pre-render run. Missing counts failed routes that were
// left without any output file.
type Result struct {
	Routes   []RouteResult
	Rendered int
	Failed   int
	Missing  int
	Duration time.Duration
}

// ErrNoShell means the dist directory has no index.html to fall back on.
var ErrNoShell = errors.New("no CSR shell (index.html) in the dist directory, run the build first")

// CheckShell reports an error wrapping ErrNoShell unless distDir holds the
// CSR shell.
func CheckShell(distDir string) error {
	info, err := os.Stat(OutputPath(distDir, "/"))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoShell, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrNoShell, OutputPath(distDir, "/"))
	}
	return nil
}

// Err joins the per-route failures, or returns nil when every route rendered.
func (r *Result) Err() error {
	var errs []error
	for _, rr := range r.Routes {
		if rr.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rr.Route, rr.Err))
		}
	}
	return errors.Join(errs...)
}

// Prerenderer renders routes one at a time against a running preview server.
type Prerenderer struct {
	renderer Renderer
	baseURL  string
	distDir  string
	audit    bool
	logger   *zap.Logger
}

// New creates a Prerenderer writing under distDir. baseURL is the preview
// server root, e.g. "http://localhost:5173".
func New(renderer Renderer, baseURL, distDir string, logger *zap.Logger) *Prerenderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prerenderer{
		renderer: renderer,
		baseURL:  strings.TrimRight(baseURL, "/"),
		distDir:  distDir,
		audit:    true,
		logger:   logger,
	}
}

// SetAudit toggles the SEO audit of rendered pages.
func (p *Prerenderer) SetAudit(enabled bool) {
	p.audit = enabled
}

// Run renders routes strictly in order. A failed route is logged and the loop
// moves on; failed non-root routes get a copy of the CSR shell so every route
// ends with exactly one output file. Without a shell, failed routes are
// counted in Missing. Routes must already be normalized.
func (p *Prerenderer) Run(ctx context.Context, routes []string) *Result {
	start := time.Now()
	r := &Result{}

	shell, err := os.ReadFile(OutputPath(p.distDir, "/"))
	if err != nil {
		p.logger.Warn("no CSR shell to fall back on", zap.Error(err))
	}

	for i, route := range routes {
		p.logger.Info(fmt.Sprintf("Pre-rendering %s (%d/%d)", route, i+1, len(routes)))
		rr := p.renderRoute(ctx, route)
		if rr.Err != nil {
			r.Failed++
			p.logger.Error("pre-render failed", zap.String("route", route), zap.Error(rr.Err))
			switch {
			case shell == nil:
				r.Missing++
				p.logger.Error("route left without output", zap.String("route", route))
			case route != "/":
				if err := writeFile(rr.Path, shell); err != nil {
					r.Missing++
					p.logger.Error("writing CSR fallback", zap.String("route", route), zap.Error(err))
				} else {
					rr.Fallback = true
				}
			}
		} else {
			r.Rendered++
			p.logger.Info(fmt.Sprintf("✓ Pre-rendered %s -> %s", route, rr.Path))
		}
		r.Routes = append(r.Routes, rr)
	}

	r.Duration = time.Since(start)
	return r
}

func (p *Prerenderer) renderRoute(ctx context.Context, route string) RouteResult {
	rr := RouteResult{Route: route, Path: OutputPath(p.distDir, route)}
	if err := ctx.Err(); err != nil {
		rr.Err = err
		return rr
	}

	html, err := p.renderer.Render(ctx, p.baseURL+route)
	if err != nil {
		rr.Err = err
		return rr
	}
	if strings.TrimSpace(html) == "" {
		rr.Err = errors.New("renderer returned an empty document")
		return rr
	}

	if p.audit {
		issues, err := Audit(html)
		if err != nil {
			p.logger.Debug("seo audit skipped", zap.String("route", route), zap.Error(err))
		}
		for _, is := range issues {
			p.logger.Warn("seo: "+is.Message, zap.String("route", route), zap.String("check", is.Check))
		}
		rr.Issues = issues
	}

	if err := writeFile(rr.Path, []byte(html)); err != nil {
		rr.Err = err
	}
	return rr
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
