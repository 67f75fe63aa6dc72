package database

import "github.com/TobiSchelling/visibi/internal/apiclient"

// Analysis is a cached brand analysis. Response holds the full payload.
type Analysis struct {
	ID                int64
	URL               string
	BrandName         string
	OverallSentiment  string
	Visibility        float64
	AverageConfidence float64
	QueriesAnalyzed   int
	AnalyzedAt        string
	CreatedAt         *string
	Response          apiclient.AnalysisResponse
}

// RunStep is the stored form of one pipeline step.
type RunStep struct {
	Name    string `json:"name"`
	Summary string `json:"summary,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RunReport holds metadata about a build run.
type RunReport struct {
	ID             int64
	StartedAt      string
	FinishedAt     string
	Platform       string
	Skipped        bool
	RoutesTotal    int
	RoutesRendered int
	RoutesFailed   int
	Steps          []RunStep
	Error          string
}

// Stats contains aggregate database statistics.
type Stats struct {
	Analyses   int
	Brands     int
	Runs       int
	FailedRuns int
	LastRunAt  *string
}
