//go:build !windows

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/TobiSchelling/visibi/internal/catalog"
	"github.com/TobiSchelling/visibi/internal/config"
	"github.com/TobiSchelling/visibi/internal/database"
	"github.com/TobiSchelling/visibi/internal/prerender"
)

type fakeRenderer struct {
	fail   string
	calls  []string
	closed bool
}

func (f *fakeRenderer) Render(ctx context.Context, url string) (string, error) {
	f.calls = append(f.calls, url)
	if f.fail != "" && strings.HasSuffix(url, f.fail) {
		return "", errors.New("timeout")
	}
	return "<html><head><title>ok</title></head><body><h1>" + url + "</h1></body></html>", nil
}

func (f *fakeRenderer) Close() error {
	f.closed = true
	return nil
}

type fakeRecorder struct {
	reports []*database.RunReport
}

func (f *fakeRecorder) InsertRunReport(r *database.RunReport) (int64, error) {
	f.reports = append(f.reports, r)
	return int64(len(f.reports)), nil
}

// readyServer returns the port of a server answering 200.
func readyServer(t *testing.T) int {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	t.Cleanup(srv.Close)
	_, portStr, _ := net.SplitHostPort(srv.Listener.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return port
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

func testConfig(t *testing.T, port int) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	dist := filepath.Join(t.TempDir(), "dist")
	cfg.Build.DistDir = dist
	cfg.Build.Command = fmt.Sprintf("mkdir -p %s && echo '<html>shell</html>' > %s", dist, filepath.Join(dist, "index.html"))
	cfg.Preview.Command = "exec sleep 30"
	cfg.Preview.Port = port
	cfg.Preview.MaxRetries = 3
	cfg.Preview.RetryInterval = 10 * time.Millisecond
	cfg.Preview.ShutdownGrace = 2 * time.Second
	cfg.Prerender.Routes = []string{"/", "/about", "/geo"}
	cfg.Prerender.IncludeArticles = false
	return cfg
}

func newTestPipeline(t *testing.T, cfg *config.Config, fr *fakeRenderer) (*Pipeline, *fakeRecorder) {
	t.Helper()
	cat, err := catalog.Default()
	if err != nil {
		t.Fatal(err)
	}
	p := New(cfg, cat, zaptest.NewLogger(t))
	p.Launch = func(ctx context.Context) (prerender.Renderer, error) { return fr, nil }
	rec := &fakeRecorder{}
	p.Recorder = rec
	return p, rec
}

func stepNames(r *Result) []string {
	var names []string
	for _, s := range r.Steps {
		names = append(names, s.Name)
	}
	return names
}

func TestRunSuccess(t *testing.T) {
	cfg := testConfig(t, readyServer(t))
	fr := &fakeRenderer{}
	p, rec := newTestPipeline(t, cfg, fr)

	r := p.Run(context.Background())
	if err := r.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "Build,Routes,Preview,Ready,Browser,Prerender,Feed,Teardown"
	if got := strings.Join(stepNames(r), ","); got != want {
		t.Errorf("expected steps %s, got %s", want, got)
	}
	if r.Prerender.Rendered != 3 {
		t.Errorf("expected 3 rendered routes, got %d", r.Prerender.Rendered)
	}
	if !fr.closed {
		t.Error("expected renderer closed")
	}
	for _, route := range []string{"/", "/about", "/geo"} {
		if _, err := os.Stat(prerender.OutputPath(cfg.Build.DistDir, route)); err != nil {
			t.Errorf("expected output for %s: %v", route, err)
		}
	}
	if _, err := os.Stat(filepath.Join(cfg.Build.DistDir, "insights", "feed.xml")); err != nil {
		t.Errorf("expected feed written: %v", err)
	}

	if len(rec.reports) != 1 {
		t.Fatalf("expected one run report, got %d", len(rec.reports))
	}
	rep := rec.reports[0]
	if rep.RoutesTotal != 3 || rep.RoutesRendered != 3 || rep.Error != "" {
		t.Errorf("unexpected report %+v", rep)
	}
}

func TestRunPartialFailureIsNotFatal(t *testing.T) {
	cfg := testConfig(t, readyServer(t))
	fr := &fakeRenderer{fail: "/about"}
	p, rec := newTestPipeline(t, cfg, fr)

	r := p.Run(context.Background())
	if err := r.Err(); err != nil {
		t.Fatalf("expected partial success to pass, got %v", err)
	}
	if r.Prerender.Failed != 1 || r.Prerender.Rendered != 2 {
		t.Errorf("expected 2 rendered 1 failed, got %d/%d", r.Prerender.Rendered, r.Prerender.Failed)
	}
	data, err := os.ReadFile(prerender.OutputPath(cfg.Build.DistDir, "/about"))
	if err != nil || !strings.Contains(string(data), "shell") {
		t.Errorf("expected CSR shell for failed route, got %q %v", data, err)
	}
	if rec.reports[0].RoutesFailed != 1 {
		t.Errorf("expected failure counted in report, got %+v", rec.reports[0])
	}
}

func TestRunBuildFailure(t *testing.T) {
	cfg := testConfig(t, readyServer(t))
	cfg.Build.Command = "exit 2"
	fr := &fakeRenderer{}
	p, rec := newTestPipeline(t, cfg, fr)

	r := p.Run(context.Background())
	if r.Err() == nil {
		t.Fatal("expected build failure")
	}
	if len(r.Steps) != 1 {
		t.Errorf("expected to stop after build, got %v", stepNames(r))
	}
	if len(fr.calls) != 0 {
		t.Error("expected no rendering after a failed build")
	}
	if rec.reports[0].Error == "" {
		t.Error("expected error recorded in report")
	}
}

func TestRunSkipsOnPlatform(t *testing.T) {
	cfg := testConfig(t, readyServer(t))
	fr := &fakeRenderer{}
	p, rec := newTestPipeline(t, cfg, fr)
	p.Platform = "VERCEL"

	r := p.Run(context.Background())
	if err := r.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.Skipped {
		t.Error("expected skipped run")
	}
	if got := strings.Join(stepNames(r), ","); got != "Build,Prerender" {
		t.Errorf("expected Build,Prerender, got %s", got)
	}
	if len(fr.calls) != 0 {
		t.Error("expected no rendering on a hosted platform")
	}
	if !rec.reports[0].Skipped || rec.reports[0].Platform != "VERCEL" {
		t.Errorf("unexpected report %+v", rec.reports[0])
	}
}

func TestRunReadinessFailureTearsDown(t *testing.T) {
	cfg := testConfig(t, freePort(t))
	fr := &fakeRenderer{}
	p, _ := newTestPipeline(t, cfg, fr)

	r := p.Run(context.Background())
	err := r.Err()
	if err == nil || !strings.Contains(err.Error(), "failed to become ready after 3 attempts") {
		t.Fatalf("expected readiness failure, got %v", err)
	}
	if got := strings.Join(stepNames(r), ","); got != "Build,Routes,Preview,Ready,Teardown" {
		t.Errorf("expected teardown after readiness failure, got %s", got)
	}
	if len(fr.calls) != 0 {
		t.Error("expected no rendering when the server never came up")
	}
}

func TestRunLaunchFailure(t *testing.T) {
	cfg := testConfig(t, readyServer(t))
	p, _ := newTestPipeline(t, cfg, &fakeRenderer{})
	p.Launch = func(ctx context.Context) (prerender.Renderer, error) {
		return nil, prerender.ErrNoBrowser
	}

	r := p.Run(context.Background())
	if !errors.Is(r.Err(), prerender.ErrNoBrowser) {
		t.Fatalf("expected launch failure, got %v", r.Err())
	}
	if last := r.Steps[len(r.Steps)-1]; last.Name != "Teardown" {
		t.Errorf("expected teardown last, got %s", last.Name)
	}
}

func TestPrerenderWithoutBuild(t *testing.T) {
	cfg := testConfig(t, readyServer(t))
	if err := os.MkdirAll(cfg.Build.DistDir, 0o755); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(cfg.Build.DistDir, "index.html"), []byte("<html>shell</html>"), 0o644)
	cfg.Prerender.Feed.Enabled = false
	fr := &fakeRenderer{}
	p, _ := newTestPipeline(t, cfg, fr)

	r := p.Prerender(context.Background())
	if err := r.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := strings.Join(stepNames(r), ","); got != "Routes,Preview,Ready,Browser,Prerender,Teardown" {
		t.Errorf("unexpected steps %s", got)
	}
}

func TestRunRejectsInvalidRoute(t *testing.T) {
	cfg := testConfig(t, readyServer(t))
	cfg.Prerender.Routes = []string{"/", "/about", "/../secret"}
	fr := &fakeRenderer{}
	p, rec := newTestPipeline(t, cfg, fr)
	launched := false
	p.Launch = func(ctx context.Context) (prerender.Renderer, error) {
		launched = true
		return fr, nil
	}

	r := p.Run(context.Background())
	err := r.Err()
	if err == nil || !strings.Contains(err.Error(), "invalid route list") {
		t.Fatalf("expected invalid route error, got %v", err)
	}
	if got := strings.Join(stepNames(r), ","); got != "Build,Routes" {
		t.Errorf("expected to stop before the preview server, got %s", got)
	}
	if launched || len(fr.calls) != 0 {
		t.Error("expected no browser for an invalid route list")
	}
	if rec.reports[0].Error == "" {
		t.Error("expected error recorded in report")
	}
}

func TestPrerenderWithoutShell(t *testing.T) {
	cfg := testConfig(t, readyServer(t))
	fr := &fakeRenderer{}
	p, _ := newTestPipeline(t, cfg, fr)

	r := p.Prerender(context.Background())
	if !errors.Is(r.Err(), prerender.ErrNoShell) {
		t.Fatalf("expected missing shell error, got %v", r.Err())
	}
	if got := strings.Join(stepNames(r), ","); got != "Routes" {
		t.Errorf("expected only the route step, got %s", got)
	}
	if len(fr.calls) != 0 {
		t.Error("expected no rendering without a shell")
	}
}
