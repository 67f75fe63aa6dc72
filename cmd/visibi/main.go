package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TobiSchelling/visibi/internal/apiclient"
	"github.com/TobiSchelling/visibi/internal/brand"
	"github.com/TobiSchelling/visibi/internal/catalog"
	"github.com/TobiSchelling/visibi/internal/config"
	"github.com/TobiSchelling/visibi/internal/database"
	"github.com/TobiSchelling/visibi/internal/format"
	"github.com/TobiSchelling/visibi/internal/logging"
	"github.com/TobiSchelling/visibi/internal/pipeline"
	"github.com/TobiSchelling/visibi/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
)

func main() {
	err := rootCmd.Execute()
	if logger != nil {
		_ = logger.Sync()
	}
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "visibi",
	Short:        "Build, pre-render and analyze brand visibility in AI answers",
	Long:         "visibi builds and pre-renders the VISIBI site, serves the result, and talks to the brand analysis backend.",
	Version:      version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			logger = zap.NewNop()
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if err := cfg.ApplyEnv(os.Getenv); err != nil {
			return err
		}

		logger, err = logging.New(cfg.Logging.Level, verbose)
		if err != nil {
			return err
		}
		if path != "" {
			logger.Debug("loaded config", zap.String("path", path))
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(prerenderCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(contactCmd)
	rootCmd.AddCommand(waitlistCmd)
	rootCmd.AddCommand(articlesCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("visibi", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/visibi/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to change the build commands, pre-rendered routes and API address.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cached analyses and recent builds",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		platform := config.Platform(os.Getenv)
		if platform == "" {
			platform = "local"
		}
		fmt.Printf("Platform: %s\n", platform)
		fmt.Printf("Database: %s\n\n", db.Path())
		fmt.Println("Analyses:")
		fmt.Printf("  Cached: %d\n", stats.Analyses)
		fmt.Printf("  Brands: %d\n", stats.Brands)
		fmt.Println("\nBuilds:")
		fmt.Printf("  Total: %d\n", stats.Runs)
		fmt.Printf("  Failed: %d\n", stats.FailedRuns)

		runs, err := db.GetRecentRuns(5)
		if err != nil {
			return fmt.Errorf("getting runs: %w", err)
		}
		for _, r := range runs {
			outcome := fmt.Sprintf("%d/%d routes", r.RoutesRendered, r.RoutesTotal)
			switch {
			case r.Error != "":
				outcome = "failed: " + r.Error
			case r.Skipped:
				outcome = "skipped on " + r.Platform
			}
			fmt.Printf("  %s  %s\n", r.StartedAt, outcome)
		}
		return nil
	},
}

// --- build / prerender commands ---

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the site and pre-render its routes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(cmd.Context(), func(p *pipeline.Pipeline, ctx context.Context) *pipeline.Result {
			return p.Run(ctx)
		})
	},
}

var prerenderCmd = &cobra.Command{
	Use:   "prerender",
	Short: "Pre-render routes of an existing build",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(cmd.Context(), func(p *pipeline.Pipeline, ctx context.Context) *pipeline.Result {
			return p.Prerender(ctx)
		})
	},
}

func runPipeline(parent context.Context, run func(*pipeline.Pipeline, context.Context) *pipeline.Result) error {
	cat, err := catalog.Default()
	if err != nil {
		return err
	}

	ctx, stop := signalContext(parent)
	defer stop()

	p := pipeline.New(cfg, cat, logger)
	p.Platform = config.Platform(os.Getenv)

	recorder, closeRecorder := openRecorder()
	defer closeRecorder()
	if recorder != nil {
		p.Recorder = recorder
	}

	result := run(p, ctx)
	for i, step := range result.Steps {
		fmt.Printf("\nStep %d/%d: %s\n", i+1, len(result.Steps), step.Name)
		if step.Err != nil {
			fmt.Printf("  Error: %v\n", step.Err)
		} else {
			fmt.Printf("  %s\n", step.Summary)
		}
	}
	return result.Err()
}

// openRecorder opens the database for run reports. Build images may have no
// writable data directory, so a failure only disables the reports.
func openRecorder() (*database.DB, func()) {
	db, err := openDB()
	if err != nil {
		logger.Warn("run reports disabled", zap.Error(err))
		return nil, func() {}
	}
	return db, func() { db.Close() }
}

// --- preview command ---

var (
	previewHost string
	previewPort int
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Serve the built site and the analysis dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		cat, err := catalog.Default()
		if err != nil {
			return err
		}

		port := cfg.Preview.Port
		if cmd.Flags().Changed("port") {
			port = previewPort
		}

		srv, err := server.New(db, cat, server.Options{
			DistDir: cfg.Build.DistDir,
			SiteURL: cfg.Prerender.Feed.SiteURL,
			Logger:  logger,
		})
		if err != nil {
			return err
		}

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		fmt.Printf("Serving %s at http://%s:%d (dashboard at /dashboard)\n", cfg.Build.DistDir, previewHost, port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(ctx, fmt.Sprintf("%s:%d", previewHost, port), srv)
	},
}

func init() {
	previewCmd.Flags().StringVar(&previewHost, "host", "localhost", "Interface to listen on")
	previewCmd.Flags().IntVarP(&previewPort, "port", "p", 0, "Port to listen on (default preview.port)")
}

// --- analyze command ---

var (
	analyzeQueries     []string
	analyzeKeywords    []string
	analyzeCompetitors []string
	analyzeFetch       bool
	analyzeDryRun      bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <url>",
	Short: "Analyze how AI assistants talk about a brand",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		target := brand.NormalizeURL(args[0])
		keywords := brand.ParseKeywords(analyzeKeywords...)
		custom := brand.ParseKeywords(analyzeQueries...)

		name := brand.NameFromURL(target)
		if analyzeFetch {
			info := brand.NewFetcher(0, logger).FetchInfo(ctx, target)
			name = info.Name
			if info.Description != "" {
				fmt.Printf("%s: %s\n", name, info.Description)
			}
		}
		custom = append(custom, brand.ComparisonQueries(name, brand.ParseKeywords(analyzeCompetitors...))...)

		if analyzeDryRun {
			fmt.Printf("Queries for %s:\n", name)
			for i, q := range brand.MonitoringQueries(name, keywords, custom) {
				fmt.Printf("  %2d. %s\n", i+1, q)
			}
			return nil
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		fmt.Printf("Analyzing %s...\n", target)
		resp, err := newClient().AnalyzeURL(ctx, target, custom, keywords)
		if err != nil {
			return err
		}

		id, err := db.InsertAnalysis(resp)
		if err != nil {
			logger.Warn("caching analysis", zap.Error(err))
		}

		printAnalysis(resp)
		if id > 0 {
			fmt.Printf("\nSaved as #%d. Run 'visibi preview' and open /dashboard/analysis/%d for charts.\n", id, id)
		}
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringSliceVarP(&analyzeQueries, "queries", "q", nil, "Custom queries to add")
	analyzeCmd.Flags().StringSliceVarP(&analyzeKeywords, "keywords", "k", nil, "Comma-separated keywords")
	analyzeCmd.Flags().StringSliceVar(&analyzeCompetitors, "competitors", nil, "Competitors to compare against")
	analyzeCmd.Flags().BoolVar(&analyzeFetch, "fetch", false, "Read the brand name from its homepage")
	analyzeCmd.Flags().BoolVar(&analyzeDryRun, "dry-run", false, "Print the queries without calling the backend")
}

func printAnalysis(resp *apiclient.AnalysisResponse) {
	s := resp.Summary
	fmt.Printf("\n%s (%s)\n", resp.BrandName, resp.URL)
	if !resp.Timestamp.IsZero() {
		fmt.Printf("  Analyzed: %s\n", format.Timestamp(resp.Timestamp.Time))
	}
	fmt.Printf("  Visibility: %s (%d of %d queries)\n", format.Percentage(s.Visibility, 1), s.MentionsCount, s.TotalQueries)
	fmt.Printf("  Sentiment: %s (+%d / =%d / -%d)\n", s.OverallSentiment, s.Positive, s.Neutral, s.Negative)
	fmt.Printf("  Avg. confidence: %s\n", format.Percentage(s.AverageConfidence*100, 1))
	if resp.Usage != nil {
		fmt.Printf("  Model: %s, %d tokens, $%.4f\n", resp.Usage.Model, resp.Usage.TotalTokens, resp.Usage.EstimatedCost)
	}

	fmt.Println("\nQueries:")
	for _, q := range resp.Analysis {
		sa := q.SentimentAnalysis
		fmt.Printf("  [%-13s] %s\n", sa.Sentiment, format.Truncate(q.Query, 70, "..."))
		if sa.Mentioned {
			fmt.Printf("                  confidence %s, position %d\n", format.Percentage(sa.Confidence*100, 0), sa.Position)
		}
	}
}

// --- history command ---

var (
	historyLimit int
	historyClear bool
	historyLocal bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List or clear past analyses",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if historyClear {
			resp, err := newClient().ClearHistory(ctx)
			if err != nil {
				return err
			}
			n, err := db.DeleteAnalyses()
			if err != nil {
				return fmt.Errorf("clearing local cache: %w", err)
			}
			fmt.Printf("%s (%d on the server, %d cached locally)\n", resp.Message, resp.ItemsDeleted, n)
			return nil
		}

		if historyLocal {
			analyses, err := db.ListAnalyses(historyLimit)
			if err != nil {
				return err
			}
			if len(analyses) == 0 {
				fmt.Println("No cached analyses. Run 'visibi analyze <url>' first.")
				return nil
			}
			for _, a := range analyses {
				fmt.Printf("  [%d] %-24s %-8s %s  %s\n", a.ID, format.Truncate(a.BrandName, 24, "..."),
					format.Percentage(a.Visibility, 0), a.OverallSentiment, a.URL)
			}
			return nil
		}

		resp, err := newClient().History(ctx, historyLimit)
		if err != nil {
			return err
		}
		if len(resp.Analyses) == 0 {
			fmt.Println("No analyses on the server.")
			return nil
		}
		fmt.Printf("%d of %d analyses:\n", len(resp.Analyses), resp.TotalCount)
		for _, a := range resp.Analyses {
			fmt.Printf("  %-24s %-8s %-13s %s\n", format.Truncate(a.BrandName, 24, "..."),
				format.Percentage(a.Summary.Visibility, 0), a.Summary.OverallSentiment, format.Timestamp(a.Timestamp.Time))
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Number of analyses to list")
	historyCmd.Flags().BoolVar(&historyClear, "clear", false, "Delete all analyses on the server and locally")
	historyCmd.Flags().BoolVar(&historyLocal, "local", false, "List the local cache instead of the server")
}

// --- health command ---

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the analysis backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		client := newClient()
		resp, err := client.Health(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s (version %s)\n", client.BaseURL(), resp.Status, resp.Version)
		return nil
	},
}

// --- contact command ---

var contactForm apiclient.ContactForm

var contactCmd = &cobra.Command{
	Use:   "contact",
	Short: "Send a message through the contact form",
	Long:  "Send a message through the contact form. Fields not given as flags are prompted for.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		form := contactForm.Normalize()
		if err := promptContact(&form); err != nil {
			return err
		}
		if err := newClient().SendContact(ctx, form); err != nil {
			return err
		}
		fmt.Println("Thanks! We'll get back to you within 24 hours.")
		return nil
	},
}

func init() {
	contactCmd.Flags().StringVar(&contactForm.Name, "name", "", "Your name")
	contactCmd.Flags().StringVar(&contactForm.Company, "company", "", "Company name")
	contactCmd.Flags().StringVar(&contactForm.Email, "email", "", "Email address")
	contactCmd.Flags().StringVar(&contactForm.Topic, "topic", "", "Topic: "+strings.Join(topicKeys(), ", "))
	contactCmd.Flags().StringVarP(&contactForm.Message, "message", "m", "", "Message")
}

func topicKeys() []string {
	keys := make([]string, 0, len(apiclient.ContactTopics))
	for k := range apiclient.ContactTopics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// promptContact asks for every empty field of form.
func promptContact(form *apiclient.ContactForm) error {
	emailValidator := func(ans interface{}) error {
		s, _ := ans.(string)
		return apiclient.ValidateEmail(s)
	}

	var qs []*survey.Question
	if form.Name == "" {
		qs = append(qs, &survey.Question{Name: "name", Prompt: &survey.Input{Message: "Name:"}, Validate: survey.Required})
	}
	if form.Company == "" {
		qs = append(qs, &survey.Question{Name: "company", Prompt: &survey.Input{Message: "Company:"}, Validate: survey.Required})
	}
	if form.Email == "" {
		qs = append(qs, &survey.Question{Name: "email", Prompt: &survey.Input{Message: "Email:"}, Validate: emailValidator})
	}
	if form.Topic == "" {
		qs = append(qs, &survey.Question{
			Name: "topic",
			Prompt: &survey.Select{
				Message: "Topic:",
				Options: topicKeys(),
				Description: func(value string, index int) string {
					return apiclient.ContactTopics[value]
				},
			},
		})
	}
	if form.Message == "" {
		qs = append(qs, &survey.Question{Name: "message", Prompt: &survey.Multiline{Message: "Message:"}, Validate: survey.Required})
	}
	if len(qs) == 0 {
		return nil
	}

	answers := struct {
		Name    string
		Company string
		Email   string
		Topic   string
		Message string
	}{form.Name, form.Company, form.Email, form.Topic, form.Message}
	if err := survey.Ask(qs, &answers); err != nil {
		return err
	}
	*form = apiclient.ContactForm{
		Name:    answers.Name,
		Company: answers.Company,
		Email:   answers.Email,
		Topic:   answers.Topic,
		Message: answers.Message,
	}.Normalize()
	return nil
}

// --- waitlist command ---

var (
	waitlistEmail    string
	waitlistQueries  []string
	waitlistKeywords []string
	waitlistReport   bool
)

var waitlistCmd = &cobra.Command{
	Use:   "waitlist <brand-url>",
	Short: "Join the waitlist or request a full brand report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		if waitlistEmail == "" {
			err := survey.AskOne(&survey.Input{Message: "Email:"}, &waitlistEmail, survey.WithValidator(func(ans interface{}) error {
				s, _ := ans.(string)
				return apiclient.ValidateEmail(s)
			}))
			if err != nil {
				return err
			}
		}

		req := apiclient.WaitlistRequest{
			BrandURL:       args[0],
			Email:          waitlistEmail,
			CustomQueries:  brand.ParseKeywords(waitlistQueries...),
			CustomKeywords: brand.ParseKeywords(waitlistKeywords...),
		}

		client := newClient()
		var (
			resp *apiclient.WaitlistResponse
			err  error
		)
		if waitlistReport {
			resp, err = client.RequestBrandAnalysis(ctx, req)
		} else {
			resp, err = client.JoinWaitlist(ctx, req)
		}
		if err != nil {
			return err
		}

		if resp.Message != "" {
			fmt.Println(resp.Message)
		} else if waitlistReport {
			fmt.Println("Request received. Your report will arrive by email.")
		} else {
			fmt.Println("You're on the list!")
		}
		if len(resp.Preview) > 0 {
			keys := make([]string, 0, len(resp.Preview))
			for k := range resp.Preview {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Println("\nPreview:")
			for _, k := range keys {
				fmt.Printf("  %s: %v\n", k, resp.Preview[k])
			}
		}
		return nil
	},
}

func init() {
	waitlistCmd.Flags().StringVarP(&waitlistEmail, "email", "e", "", "Email address")
	waitlistCmd.Flags().StringSliceVarP(&waitlistQueries, "queries", "q", nil, "Custom queries")
	waitlistCmd.Flags().StringSliceVarP(&waitlistKeywords, "keywords", "k", nil, "Comma-separated keywords")
	waitlistCmd.Flags().BoolVar(&waitlistReport, "report", false, "Request the full brand analysis report")
}

// --- articles command ---

var (
	articlesCategory string
	articlesLatest   int
	articlesFeed     string
)

var articlesCmd = &cobra.Command{
	Use:   "articles",
	Short: "List published insights articles",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := catalog.Default()
		if err != nil {
			return err
		}

		if articlesFeed != "" {
			if err := cat.WriteFeed(articlesFeed, cfg.Prerender.Feed.SiteURL); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", articlesFeed)
			return nil
		}

		var articles []catalog.Article
		if articlesLatest > 0 {
			articles = cat.Latest(articlesLatest)
		} else {
			articles = cat.ByCategory(articlesCategory)
		}
		if len(articles) == 0 {
			return errors.New("no published articles match; categories: " + strings.Join(cat.Categories(), ", "))
		}
		for _, a := range articles {
			fmt.Printf("  %-12s %-9s %s\n", a.DisplayDate, a.Category, a.Title)
			fmt.Printf("  %-12s %-9s %s (%s)\n", "", "", a.Slug, a.ReadTime)
		}
		return nil
	},
}

func init() {
	articlesCmd.Flags().StringVar(&articlesCategory, "category", catalog.AllCategories, "Filter by category")
	articlesCmd.Flags().IntVar(&articlesLatest, "latest", 0, "Show only the N newest articles")
	articlesCmd.Flags().StringVar(&articlesFeed, "feed", "", "Write the RSS feed to this path instead of listing")
}

func newClient() *apiclient.Client {
	return apiclient.New(cfg.API.BaseURL, cfg.API.Timeout, logger)
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return database.Open(filepath.Join(dataDir, database.FileName), logger)
}
