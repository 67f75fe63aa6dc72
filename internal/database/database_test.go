package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/TobiSchelling/visibi/internal/apiclient"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func analysis(url, brand string, ts time.Time) *apiclient.AnalysisResponse {
	return &apiclient.AnalysisResponse{
		BrandName:       brand,
		URL:             url,
		Timestamp:       apiclient.Timestamp{Time: ts},
		QueriesAnalyzed: 2,
		Analysis: []apiclient.QueryAnalysis{
			{Query: "Would you recommend " + brand + "?", Response: "**Yes**", SentimentAnalysis: apiclient.SentimentResult{
				Mentioned: true, Sentiment: apiclient.SentimentPositive, Confidence: 0.8,
			}},
		},
		Summary: apiclient.SummaryMetrics{
			TotalQueries: 2, MentionsCount: 1, Visibility: 50, Positive: 1,
			OverallSentiment: apiclient.SentimentPositive, AverageConfidence: 0.8,
		},
	}
}

func TestInsertAndGetAnalysis(t *testing.T) {
	db := openTestDB(t)
	ts := time.Date(2025, 10, 10, 12, 0, 0, 0, time.UTC)
	id, err := db.InsertAnalysis(analysis("https://slack.com", "Slack", ts))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero analysis ID")
	}

	got, err := db.GetAnalysis(id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.BrandName != "Slack" || got.OverallSentiment != "POSITIVE" || got.Visibility != 50 {
		t.Errorf("unexpected summary columns: %+v", got)
	}
	if got.AnalyzedAt != "2025-10-10T12:00:00Z" {
		t.Errorf("expected analyzed_at 2025-10-10T12:00:00Z, got %q", got.AnalyzedAt)
	}
	if len(got.Response.Analysis) != 1 || got.Response.Analysis[0].Response != "**Yes**" {
		t.Errorf("expected payload round trip, got %+v", got.Response.Analysis)
	}
	if !got.Response.Timestamp.Equal(ts) {
		t.Errorf("expected timestamp %s, got %s", ts, got.Response.Timestamp)
	}
}

func TestGetAnalysisMissing(t *testing.T) {
	db := openTestDB(t)
	got, err := db.GetAnalysis(42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for unknown id, got %+v", got)
	}
}

func TestListAnalysesNewestFirst(t *testing.T) {
	db := openTestDB(t)
	base := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	db.InsertAnalysis(analysis("https://a.com", "A", base))
	db.InsertAnalysis(analysis("https://b.com", "B", base.Add(48*time.Hour)))
	db.InsertAnalysis(analysis("https://a.com", "A", base.Add(24*time.Hour)))

	all, err := db.ListAnalyses(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var brands []string
	for _, a := range all {
		brands = append(brands, a.BrandName)
	}
	if diff := cmp.Diff([]string{"B", "A", "A"}, brands); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}

	limited, _ := db.ListAnalyses(1)
	if len(limited) != 1 {
		t.Errorf("expected 1 analysis, got %d", len(limited))
	}

	forA, _ := db.GetAnalysesForURL("https://a.com")
	if len(forA) != 2 {
		t.Errorf("expected 2 analyses for a.com, got %d", len(forA))
	}
}

func TestInsertAnalysisZeroTimestamp(t *testing.T) {
	db := openTestDB(t)
	id, err := db.InsertAnalysis(analysis("https://a.com", "A", time.Time{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := db.GetAnalysis(id)
	if got.AnalyzedAt == "" {
		t.Error("expected analyzed_at to default to now")
	}
}

func TestDeleteAnalyses(t *testing.T) {
	db := openTestDB(t)
	db.InsertAnalysis(analysis("https://a.com", "A", time.Now()))
	db.InsertAnalysis(analysis("https://b.com", "B", time.Now()))

	n, err := db.DeleteAnalyses()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 deleted, got %d", n)
	}
	all, _ := db.ListAnalyses(0)
	if len(all) != 0 {
		t.Errorf("expected empty cache, got %d", len(all))
	}
}

func TestRunReports(t *testing.T) {
	db := openTestDB(t)

	last, err := db.GetLastRunDate()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if last != "" {
		t.Errorf("expected no last run, got %q", last)
	}

	first := &RunReport{
		StartedAt: "2025-12-01T10:00:00Z", FinishedAt: "2025-12-01T10:01:00Z",
		RoutesTotal: 13, RoutesRendered: 12, RoutesFailed: 1,
		Steps: []RunStep{{Name: "Build", Summary: "ok"}, {Name: "Prerender", Summary: "12/13"}},
	}
	if _, err := db.InsertRunReport(first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ID == 0 {
		t.Error("expected ID to be set on the report")
	}
	second := &RunReport{
		StartedAt: "2025-12-02T10:00:00Z", FinishedAt: "2025-12-02T10:00:05Z",
		Platform: "VERCEL", Skipped: true,
	}
	db.InsertRunReport(second)
	failed := &RunReport{
		StartedAt: "2025-11-30T10:00:00Z", FinishedAt: "2025-11-30T10:00:01Z",
		Error: "build command failed",
	}
	db.InsertRunReport(failed)

	runs, err := db.GetRecentRuns(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	if runs[0].Platform != "VERCEL" || !runs[0].Skipped {
		t.Errorf("expected newest run first, got %+v", runs[0])
	}
	if diff := cmp.Diff(first.Steps, runs[1].Steps); diff != "" {
		t.Errorf("steps mismatch (-want +got):\n%s", diff)
	}
	if runs[2].Error != "build command failed" {
		t.Errorf("expected error text, got %q", runs[2].Error)
	}

	last, _ = db.GetLastRunDate()
	if last != "2025-12-02T10:00:00Z" {
		t.Errorf("expected last run 2025-12-02T10:00:00Z, got %q", last)
	}
}

func TestGetStats(t *testing.T) {
	db := openTestDB(t)
	db.InsertAnalysis(analysis("https://a.com", "A", time.Now()))
	db.InsertAnalysis(analysis("https://a.com", "A", time.Now()))
	db.InsertAnalysis(analysis("https://b.com", "B", time.Now()))
	db.InsertRunReport(&RunReport{StartedAt: "2025-12-01T10:00:00Z", FinishedAt: "2025-12-01T10:01:00Z"})
	db.InsertRunReport(&RunReport{StartedAt: "2025-12-02T10:00:00Z", FinishedAt: "2025-12-02T10:01:00Z", Error: "boom"})

	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Analyses != 3 || stats.Brands != 2 {
		t.Errorf("expected 3 analyses over 2 brands, got %d/%d", stats.Analyses, stats.Brands)
	}
	if stats.Runs != 2 || stats.FailedRuns != 1 {
		t.Errorf("expected 2 runs with 1 failure, got %d/%d", stats.Runs, stats.FailedRuns)
	}
	if stats.LastRunAt == nil || *stats.LastRunAt != "2025-12-02T10:00:00Z" {
		t.Errorf("unexpected last run %v", stats.LastRunAt)
	}
}
