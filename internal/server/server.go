// Package server serves the built site with SPA fallback and a small
// dashboard over locally cached analyses.
package server

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"github.com/TobiSchelling/visibi/internal/catalog"
	"github.com/TobiSchelling/visibi/internal/charts"
	"github.com/TobiSchelling/visibi/internal/database"
	"github.com/TobiSchelling/visibi/internal/format"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

var (
	policyOnce sync.Once
	policy     *bluemonday.Policy
)

// sanitizer strips scripts and event handlers from model responses before
// they reach the page.
func sanitizer() *bluemonday.Policy {
	policyOnce.Do(func() {
		policy = bluemonday.UGCPolicy()
	})
	return policy
}

// Options configures a Server.
type Options struct {
	// DistDir is the built site. Empty disables site serving.
	DistDir string
	// SiteURL is the public origin used for feed links.
	SiteURL string
	Logger  *zap.Logger
}

// Server is the HTTP server for the preview site and dashboard.
type Server struct {
	db      *database.DB
	catalog *catalog.Catalog
	opts    Options
	logger  *zap.Logger
	pages   map[string]*template.Template
	mux     *http.ServeMux
}

// New creates a new Server.
func New(db *database.DB, cat *catalog.Catalog, opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	funcMap := template.FuncMap{
		"markdown":       renderMarkdown,
		"percent":        format.Percentage,
		"truncate":       format.Truncate,
		"sentimentColor": format.SentimentColor,
		"sentimentBg":    format.SentimentBgColor,
		"badge":          format.BadgeVariant,
		"classNames":     format.ClassNames,
		"timestamp":      formatStamp,
		"mul100":         func(v float64) float64 { return v * 100 },
		"activeIf": func(ok bool) string {
			if ok {
				return "active"
			}
			return ""
		},
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
	}

	// Parse base template first
	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets a clone of the base so its "title" and "content"
	// definitions do not collide.
	pageNames := []string{"dashboard.html", "analysis.html", "insights.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		_, err = clone.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{db: db, catalog: cat, opts: opts, logger: logger, pages: pages, mux: http.NewServeMux()}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	s.mux.HandleFunc("/dashboard", s.handleDashboard)
	s.mux.HandleFunc("/dashboard/", s.handleDashboard)
	s.mux.HandleFunc("/dashboard/analysis/", s.handleAnalysis)
	s.mux.HandleFunc("/dashboard/insights", s.handleInsights)
	s.mux.HandleFunc("/feed.xml", s.handleFeed)
	s.mux.HandleFunc("/", s.handleSite)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/dashboard" && r.URL.Path != "/dashboard/" {
		http.NotFound(w, r)
		return
	}

	analyses, err := s.db.ListAnalyses(50)
	if err != nil {
		s.logger.Error("listing analyses", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	runs, err := s.db.GetRecentRuns(5)
	if err != nil {
		s.logger.Error("listing runs", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	stats, _ := s.db.GetStats()

	s.render(w, "dashboard.html", map[string]any{
		"Analyses": analyses,
		"Runs":     runs,
		"Stats":    stats,
	})
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/dashboard/analysis/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		http.Redirect(w, r, "/dashboard", http.StatusFound)
		return
	}

	a, err := s.db.GetAnalysis(id)
	if err != nil {
		s.logger.Error("loading analysis", zap.Int64("id", id), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if a == nil {
		http.NotFound(w, r)
		return
	}

	s.render(w, "analysis.html", map[string]any{
		"Analysis":     a,
		"Distribution": charts.SentimentDistribution(a.Response.Summary),
		"Confidence":   charts.ConfidenceSeries(a.Response.Analysis),
	})
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	if category == "" {
		category = catalog.AllCategories
	}
	s.render(w, "insights.html", map[string]any{
		"Articles":   s.catalog.ByCategory(category),
		"Categories": s.catalog.Categories(),
		"Category":   category,
	})
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.catalog.RenderFeed(&buf, s.opts.SiteURL); err != nil {
		s.logger.Error("rendering feed", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.Write(buf.Bytes())
}

// handleSite serves files from the dist directory. Unknown paths without a
// file extension get the pre-rendered page for that route when one exists
// and the CSR shell otherwise.
func (s *Server) handleSite(w http.ResponseWriter, r *http.Request) {
	if s.opts.DistDir == "" {
		http.Redirect(w, r, "/dashboard", http.StatusFound)
		return
	}

	clean := path.Clean("/" + r.URL.Path)
	target := filepath.Join(s.opts.DistDir, filepath.FromSlash(clean))

	if info, err := os.Stat(target); err == nil {
		if !info.IsDir() {
			s.serveFile(w, r, target)
			return
		}
		if index := filepath.Join(target, "index.html"); fileExists(index) {
			s.serveFile(w, r, index)
			return
		}
	}

	if path.Ext(clean) != "" {
		http.NotFound(w, r)
		return
	}

	shell := filepath.Join(s.opts.DistDir, "index.html")
	if !fileExists(shell) {
		http.Error(w, "site not built: run `visibi build` first", http.StatusNotFound)
		return
	}
	s.serveFile(w, r, shell)
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, name string) {
	f, err := os.Open(name)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func fileExists(name string) bool {
	info, err := os.Stat(name)
	return err == nil && !info.IsDir()
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		s.logger.Error("template not found", zap.String("name", name))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		s.logger.Error("rendering template", zap.String("name", name), zap.Error(err))
	}
}

// renderMarkdown converts a model response to HTML and sanitizes it.
func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(sanitizer().SanitizeBytes(buf.Bytes())) //nolint: gosec
}

// formatStamp renders a stored RFC 3339 timestamp for display.
func formatStamp(s string) string {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return s
	}
	return format.Timestamp(t)
}

// Serve listens on addr until ctx is canceled, then shuts down gracefully.
func Serve(ctx context.Context, addr string, srv *Server) error {
	hs := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		srv.logger.Info(fmt.Sprintf("Server listening on http://%s", addr))
		errCh <- hs.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := hs.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
