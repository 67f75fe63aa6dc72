package brand

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestNameFromURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://www.slack.com", "Slack"},
		{"http://notion.so", "Notion"},
		{"https://www.company.co.uk/", "Company"},
		{"HTTPS://WWW.Acme.io/path?q=1", "Acme"},
		{"hub-spot.com", "Hub-Spot"},
		{"localhost:8080/x", "Localhost"},
		{"", "Unknown"},
		{"https://", "Unknown"},
	}
	for _, tt := range tests {
		if got := NameFromURL(tt.in); got != tt.want {
			t.Errorf("NameFromURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := map[string]string{
		"slack.com":         "https://slack.com",
		"  slack.com  ":     "https://slack.com",
		"http://slack.com":  "http://slack.com",
		"HTTPS://slack.com": "HTTPS://slack.com",
		"":                  "",
	}
	for in, want := range tests {
		if got := NormalizeURL(in); got != want {
			t.Errorf("NormalizeURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMonitoringQueries(t *testing.T) {
	got := MonitoringQueries("Slack", []string{"security"}, []string{"Is Slack secure?"})
	want := []string{
		"What do you think about Slack?",
		"Is Slack good for businesses?",
		"Who are the main competitors of Slack?",
		"What are the pros and cons of Slack?",
		"Would you recommend Slack?",
		"Is Slack secure?",
		"How does Slack handle security?",
		"What is Slack's approach to security?",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("MonitoringQueries mismatch (-want +got):\n%s", diff)
	}
}

func TestComparisonQueries(t *testing.T) {
	if got := ComparisonQueries("Slack", nil); len(got) != 0 {
		t.Errorf("expected no queries without competitors, got %v", got)
	}
	got := ComparisonQueries("Slack", []string{"Teams"})
	want := []string{"Compare Slack vs Teams", "Which is better, Slack or Teams?"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ComparisonQueries mismatch (-want +got):\n%s", diff)
	}
}

func TestParseKeywords(t *testing.T) {
	got := ParseKeywords(" security, integrations ,,", "pricing")
	want := []string{"security", "integrations", "pricing"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseKeywords mismatch (-want +got):\n%s", diff)
	}
	if got := ParseKeywords(" , "); got != nil {
		t.Errorf("expected nil for blank input, got %v", got)
	}
}

func TestCleanTitle(t *testing.T) {
	tests := map[string]string{
		"Slack | Where work happens": "Slack",
		"Notion - Your wiki":         "Notion",
		"Acme: Rockets":              "Acme",
		"  Plain Title  ":            "Plain Title",
	}
	for in, want := range tests {
		if got := CleanTitle(in); got != want {
			t.Errorf("CleanTitle(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFetchInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Error("expected a user agent header")
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Acme Rockets | Launch faster</title>
<meta name="description" content="Rockets for everyone."></head>
<body><article><p>Acme builds rockets for teams of every size. Our launch platform
handles scheduling, fuel and telemetry so that you can focus on the mission.</p></article></body></html>`))
	}))
	defer srv.Close()

	info := NewFetcher(2*time.Second, nil).FetchInfo(context.Background(), srv.URL)
	if info.Name != "Acme Rockets" {
		t.Errorf("expected 'Acme Rockets', got %q", info.Name)
	}
	if info.Description != "Rockets for everyone." {
		t.Errorf("unexpected description %q", info.Description)
	}
	if info.URL != srv.URL {
		t.Errorf("expected url %q, got %q", srv.URL, info.URL)
	}
}

func TestFetchInfoFallsBackOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	info := NewFetcher(time.Second, nil).FetchInfo(context.Background(), srv.URL)
	if info.Name != "127" {
		t.Errorf("expected name derived from host, got %q", info.Name)
	}
	if info.Description != "" {
		t.Errorf("expected empty description, got %q", info.Description)
	}
}

func TestFetchInfoWithoutTitleUsesHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>hi</body></html>`))
	}))
	defer srv.Close()

	info := NewFetcher(time.Second, nil).FetchInfo(context.Background(), srv.URL)
	if info.Name == "" {
		t.Error("expected a fallback name")
	}
}
