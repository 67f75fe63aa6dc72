package apiclient

import (
	"encoding/json"
	"time"
)

// Sentiment labels returned by the analysis backend.
const (
	SentimentPositive     = "POSITIVE"
	SentimentNegative     = "NEGATIVE"
	SentimentNeutral      = "NEUTRAL"
	SentimentNotMentioned = "NOT_MENTIONED"
)

// AnalyzeRequest is the body of POST /api/brands/analyze.
type AnalyzeRequest struct {
	URL            string   `json:"url"`
	Queries        []string `json:"queries,omitempty"`
	CustomKeywords []string `json:"custom_keywords,omitempty"`
}

type SentimentResult struct {
	Mentioned          bool    `json:"mentioned"`
	Sentiment          string  `json:"sentiment"`
	Confidence         float64 `json:"confidence"`
	Position           int     `json:"position"`
	PositiveIndicators int     `json:"positive_indicators"`
	NegativeIndicators int     `json:"negative_indicators"`
}

type QueryAnalysis struct {
	Query             string          `json:"query"`
	Response          string          `json:"response"`
	SentimentAnalysis SentimentResult `json:"sentiment_analysis"`
}

type SummaryMetrics struct {
	TotalQueries      int     `json:"total_queries"`
	MentionsCount     int     `json:"mentions_count"`
	Visibility        float64 `json:"visibility"`
	Positive          int     `json:"positive"`
	Negative          int     `json:"negative"`
	Neutral           int     `json:"neutral"`
	OverallSentiment  string  `json:"overall_sentiment"`
	AverageConfidence float64 `json:"average_confidence"`
}

type UsageMetrics struct {
	Model            string  `json:"model"`
	TotalTokens      int     `json:"total_tokens"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	EstimatedCost    float64 `json:"estimated_cost"`
}

// Timestamp accepts the backend's naive ISO timestamps
// ("2025-10-10T12:00:00.123456") as well as RFC 3339.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	var lastErr error
	for _, layout := range timestampLayouts {
		parsed, err := time.Parse(layout, s)
		if err == nil {
			t.Time = parsed
			return nil
		}
		lastErr = err
	}
	return lastErr
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return t.Time.MarshalJSON()
}

// AnalysisResponse is one complete brand analysis.
type AnalysisResponse struct {
	BrandName       string          `json:"brand_name"`
	URL             string          `json:"url"`
	Timestamp       Timestamp       `json:"timestamp"`
	QueriesAnalyzed int             `json:"queries_analyzed"`
	Analysis        []QueryAnalysis `json:"analysis"`
	Summary         SummaryMetrics  `json:"summary"`
	Usage           *UsageMetrics   `json:"usage,omitempty"`
}

type HistoryResponse struct {
	Analyses   []AnalysisResponse `json:"analyses"`
	TotalCount int                `json:"total_count"`
}

type ClearHistoryResponse struct {
	Message      string `json:"message"`
	ItemsDeleted int    `json:"items_deleted"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Timestamp Timestamp `json:"timestamp"`
}

// WaitlistRequest is the body shared by /api/waitlist and /api/brand-analysis.
type WaitlistRequest struct {
	BrandURL       string   `json:"brand_url"`
	Email          string   `json:"email"`
	CustomQueries  []string `json:"custom_queries"`
	CustomKeywords []string `json:"custom_keywords"`
}

// WaitlistResponse carries the optional preview the backend computes.
type WaitlistResponse struct {
	Message string         `json:"message,omitempty"`
	Preview map[string]any `json:"preview,omitempty"`
}
