// Package pipeline runs the build: client build, preview server, readiness
// wait, pre-rendering and teardown.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/visibi/internal/catalog"
	"github.com/TobiSchelling/visibi/internal/config"
	"github.com/TobiSchelling/visibi/internal/database"
	"github.com/TobiSchelling/visibi/internal/prerender"
	"github.com/TobiSchelling/visibi/internal/probe"
)

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full pipeline run.
type Result struct {
	Steps      []StepResult
	Platform   string
	Skipped    bool
	Prerender  *prerender.Result
	Routes     []string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Err returns the first failed step. Only fatal steps carry an error:
// build, route resolution, preview start, readiness and browser launch.
func (r *Result) Err() error {
	for _, s := range r.Steps {
		if s.Err != nil {
			return fmt.Errorf("%s: %w", strings.ToLower(s.Name), s.Err)
		}
	}
	return nil
}

// LaunchFunc starts the renderer used for pre-rendering.
type LaunchFunc func(ctx context.Context) (prerender.Renderer, error)

// Recorder stores run reports.
type Recorder interface {
	InsertRunReport(r *database.RunReport) (int64, error)
}

// Pipeline orchestrates the build and pre-render steps.
type Pipeline struct {
	cfg     *config.Config
	catalog *catalog.Catalog
	logger  *zap.Logger

	// Platform is the detected hosting platform. Non-empty skips pre-rendering.
	Platform string
	// Launch starts the browser. Defaults to a go-rod Chrome.
	Launch LaunchFunc
	// Recorder, when set, receives a report of every run.
	Recorder Recorder
	// Stdout and Stderr receive the build command's output.
	Stdout io.Writer
	Stderr io.Writer
}

// New creates a pipeline. cat supplies article routes and the feed.
func New(cfg *config.Config, cat *catalog.Catalog, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		cfg:     cfg,
		catalog: cat,
		logger:  logger,
		Launch:  RodLauncher(cfg, logger),
	}
}

// RodLauncher returns a LaunchFunc configured from the prerender section.
func RodLauncher(cfg *config.Config, logger *zap.Logger) LaunchFunc {
	return func(ctx context.Context) (prerender.Renderer, error) {
		r, err := prerender.LaunchRod(ctx, prerender.BrowserOptions{
			Bin:         cfg.Prerender.BrowserBin,
			Serverless:  cfg.Prerender.Serverless,
			NoSandbox:   cfg.Prerender.NoSandbox,
			PageTimeout: cfg.Prerender.PageTimeout,
			SettleDelay: cfg.Prerender.SettleDelay,
		}, logger)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
}

// Run executes the full pipeline.
func (p *Pipeline) Run(ctx context.Context) *Result {
	r := &Result{Platform: p.Platform, StartedAt: time.Now()}
	defer p.finish(r)

	p.banner("STEP 1: Building")
	step := p.runBuild(ctx)
	r.Steps = append(r.Steps, step)
	if step.Err != nil {
		return r
	}

	if p.Platform != "" {
		p.skipBanner()
		r.Skipped = true
		r.Steps = append(r.Steps, StepResult{
			Name:    "Prerender",
			Summary: fmt.Sprintf("Skipped on %s, pages use client-side rendering", p.Platform),
		})
		return r
	}

	p.prerenderSteps(ctx, r)
	return r
}

// Prerender runs the pipeline without the build step, against an existing
// dist directory.
func (p *Pipeline) Prerender(ctx context.Context) *Result {
	r := &Result{Platform: p.Platform, StartedAt: time.Now()}
	defer p.finish(r)
	p.prerenderSteps(ctx, r)
	return r
}

func (p *Pipeline) prerenderSteps(ctx context.Context, r *Result) {
	routes, step := p.resolveRoutes()
	r.Steps = append(r.Steps, step)
	if step.Err != nil {
		return
	}
	r.Routes = routes

	p.banner("STEP 2: Starting preview server")
	proc, step := p.startPreview()
	r.Steps = append(r.Steps, step)
	if step.Err != nil {
		return
	}
	defer func() {
		r.Steps = append(r.Steps, p.teardown(proc))
	}()

	step = p.waitReady(ctx)
	r.Steps = append(r.Steps, step)
	if step.Err != nil {
		return
	}

	p.banner("STEP 3: Pre-rendering routes")
	renderer, step := p.launchBrowser(ctx)
	r.Steps = append(r.Steps, step)
	if step.Err != nil {
		return
	}
	defer func() {
		if err := renderer.Close(); err != nil {
			p.logger.Debug("closing browser", zap.Error(err))
		}
	}()

	r.Steps = append(r.Steps, p.runPrerender(ctx, renderer, routes, r))

	if p.cfg.Prerender.Feed.Enabled && p.catalog != nil {
		r.Steps = append(r.Steps, p.writeFeed())
	}
}

func (p *Pipeline) runBuild(ctx context.Context) StepResult {
	p.logger.Info("→ Running: " + p.cfg.Build.Command)
	if err := RunCommand(ctx, p.cfg.Build.Command, p.Stdout, p.Stderr); err != nil {
		return StepResult{Name: "Build", Err: err}
	}
	p.logger.Info("✓ Build completed")
	return StepResult{Name: "Build", Summary: fmt.Sprintf("%q succeeded", p.cfg.Build.Command)}
}

// resolveRoutes normalizes the configured route list and checks that the
// CSR shell exists, so a misconfiguration fails before any process starts.
func (p *Pipeline) resolveRoutes() ([]string, StepResult) {
	routes, err := prerender.Routes(p.cfg.Prerender.Routes, p.cfg.Prerender.IncludeArticles, p.catalog)
	if err != nil {
		return nil, StepResult{Name: "Routes", Err: fmt.Errorf("invalid route list: %w", err)}
	}
	if len(routes) == 0 {
		return nil, StepResult{Name: "Routes", Err: errors.New("no routes configured")}
	}
	if err := prerender.CheckShell(p.cfg.Build.DistDir); err != nil {
		return nil, StepResult{Name: "Routes", Err: err}
	}
	return routes, StepResult{Name: "Routes", Summary: fmt.Sprintf("%d routes to pre-render", len(routes))}
}

func (p *Pipeline) startPreview() (*Process, StepResult) {
	proc, err := StartPreview(p.cfg.Preview.Command, p.cfg.Preview.Port, p.logger)
	if err != nil {
		return nil, StepResult{Name: "Preview", Err: err}
	}
	return proc, StepResult{
		Name:    "Preview",
		Summary: fmt.Sprintf("Started %q on port %d (pid %d)", p.cfg.Preview.Command, p.cfg.Preview.Port, proc.Pid()),
	}
}

func (p *Pipeline) waitReady(ctx context.Context) StepResult {
	url := p.cfg.PreviewURL()
	p.logger.Info(fmt.Sprintf("→ Waiting for preview server on port %d...", p.cfg.Preview.Port))
	prober := probe.New(p.cfg.Preview.MaxRetries, p.cfg.Preview.RetryInterval, p.cfg.Preview.ProbeTimeout, p.logger)
	if err := prober.WaitReady(ctx, url); err != nil {
		return StepResult{Name: "Ready", Err: err}
	}
	p.logger.Info("✓ Preview server is ready")
	return StepResult{Name: "Ready", Summary: url + " answered 200"}
}

func (p *Pipeline) launchBrowser(ctx context.Context) (prerender.Renderer, StepResult) {
	renderer, err := p.Launch(ctx)
	if err != nil {
		return nil, StepResult{Name: "Browser", Err: err}
	}
	mode := "local"
	if p.cfg.Prerender.Serverless {
		mode = "serverless"
	}
	return renderer, StepResult{Name: "Browser", Summary: "Launched headless browser (" + mode + ")"}
}

func (p *Pipeline) runPrerender(ctx context.Context, renderer prerender.Renderer, routes []string, r *Result) StepResult {
	res := prerender.New(renderer, p.cfg.PreviewURL(), p.cfg.Build.DistDir, p.logger).Run(ctx, routes)
	r.Prerender = res

	summary := fmt.Sprintf("Rendered %d/%d routes in %s", res.Rendered, len(routes), res.Duration.Round(time.Millisecond))
	switch {
	case res.Failed == 0:
		p.logger.Info("✓ All routes pre-rendered successfully")
	case res.Rendered == 0:
		p.logger.Warn("no route could be pre-rendered, every page falls back to client-side rendering",
			zap.Error(res.Err()))
		summary += fmt.Sprintf(", %d failed", res.Failed)
	default:
		p.logger.Warn(fmt.Sprintf("%d of %d routes failed and use the CSR shell", res.Failed, len(routes)),
			zap.Error(res.Err()))
		summary += fmt.Sprintf(", %d failed", res.Failed)
	}
	if res.Missing > 0 {
		summary += fmt.Sprintf(", %d without output", res.Missing)
	}
	return StepResult{Name: "Prerender", Summary: summary}
}

func (p *Pipeline) writeFeed() StepResult {
	feed := p.cfg.Prerender.Feed
	path := filepath.Join(p.cfg.Build.DistDir, filepath.FromSlash(feed.Path))
	if err := p.catalog.WriteFeed(path, feed.SiteURL); err != nil {
		p.logger.Warn("writing insights feed", zap.Error(err))
		return StepResult{Name: "Feed", Summary: "failed: " + err.Error()}
	}
	return StepResult{Name: "Feed", Summary: fmt.Sprintf("Wrote %s (%d articles)", path, len(p.catalog.Published()))}
}

func (p *Pipeline) teardown(proc *Process) StepResult {
	p.logger.Info("→ Cleaning up preview server...")
	forced := proc.Stop(p.cfg.Preview.ShutdownGrace)
	if err := proc.Wait(); err != nil {
		p.logger.Debug("preview server exit", zap.Error(err))
	}
	p.logger.Info("✓ Preview server terminated")
	if forced {
		return StepResult{Name: "Teardown", Summary: "Killed after grace period"}
	}
	return StepResult{Name: "Teardown", Summary: "Terminated gracefully"}
}

func (p *Pipeline) finish(r *Result) {
	r.FinishedAt = time.Now()

	if err := r.Err(); err != nil {
		p.banner("✗ BUILD FAILED")
		p.logger.Error(err.Error())
	} else if r.Skipped {
		p.banner("✓ BUILD COMPLETED (CSR MODE)")
	} else {
		p.banner("✓ BUILD COMPLETED SUCCESSFULLY")
	}

	if p.Recorder == nil {
		return
	}
	if _, err := p.Recorder.InsertRunReport(r.Report()); err != nil {
		p.logger.Warn("recording run report", zap.Error(err))
	}
}

// Report converts the result into its stored form.
func (r *Result) Report() *database.RunReport {
	rep := &database.RunReport{
		StartedAt:  r.StartedAt.UTC().Format(time.RFC3339),
		FinishedAt: r.FinishedAt.UTC().Format(time.RFC3339),
		Platform:   r.Platform,
		Skipped:    r.Skipped,
	}
	for _, s := range r.Steps {
		rs := database.RunStep{Name: s.Name, Summary: s.Summary}
		if s.Err != nil {
			rs.Error = s.Err.Error()
		}
		rep.Steps = append(rep.Steps, rs)
	}
	if r.Prerender != nil {
		rep.RoutesTotal = len(r.Routes)
		rep.RoutesRendered = r.Prerender.Rendered
		rep.RoutesFailed = r.Prerender.Failed
	}
	if err := r.Err(); err != nil {
		rep.Error = err.Error()
	}
	return rep
}

func (p *Pipeline) banner(title string) {
	p.logger.Info("========================================")
	p.logger.Info(title)
	p.logger.Info("========================================")
}

func (p *Pipeline) skipBanner() {
	p.banner(fmt.Sprintf("⚠️  %s DETECTED: Skipping pre-rendering", p.Platform))
	p.logger.Info(fmt.Sprintf("   SSG disabled on %s platform", p.Platform))
	p.logger.Info("   Pages will use Client-Side Rendering (CSR)")
}
