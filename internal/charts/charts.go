// Package charts turns analysis results into the data series the dashboard
// plots. Rendering is left to the page.
package charts

import (
	"sort"

	"github.com/TobiSchelling/visibi/internal/apiclient"
	"github.com/TobiSchelling/visibi/internal/format"
)

const (
	// MaxConfidenceBars caps the confidence chart at the most confident queries.
	MaxConfidenceBars = 8
	// LabelLength is the rune limit for bar labels.
	LabelLength = 35
)

var sentimentFill = map[string]string{
	apiclient.SentimentPositive: "#22c55e",
	apiclient.SentimentNeutral:  "#6b7280",
	apiclient.SentimentNegative: "#ef4444",
}

// Fill returns the chart color for a sentiment label.
func Fill(sentiment string) string {
	if c, ok := sentimentFill[sentiment]; ok {
		return c
	}
	return "#9ca3af"
}

// Slice is one wedge of the sentiment pie.
type Slice struct {
	Label     string
	Sentiment string
	Count     int
	Percent   float64
	Fill      string
}

// SentimentDistribution returns Positive, Neutral and Negative slices in that
// order, dropping empty ones. Percent is relative to the three counts.
func SentimentDistribution(s apiclient.SummaryMetrics) []Slice {
	all := []Slice{
		{Label: "Positive", Sentiment: apiclient.SentimentPositive, Count: s.Positive},
		{Label: "Neutral", Sentiment: apiclient.SentimentNeutral, Count: s.Neutral},
		{Label: "Negative", Sentiment: apiclient.SentimentNegative, Count: s.Negative},
	}
	total := s.Positive + s.Neutral + s.Negative

	var out []Slice
	for _, sl := range all {
		if sl.Count <= 0 {
			continue
		}
		sl.Percent = float64(sl.Count) / float64(total) * 100
		sl.Fill = Fill(sl.Sentiment)
		out = append(out, sl)
	}
	return out
}

// Bar is one query in the confidence chart.
type Bar struct {
	Label      string
	Query      string
	Confidence float64 // 0-100
	Sentiment  string
	Fill       string
}

// ConfidenceSeries returns one bar per query that mentioned the brand, most
// confident first, capped at MaxConfidenceBars.
func ConfidenceSeries(analysis []apiclient.QueryAnalysis) []Bar {
	var bars []Bar
	for _, qa := range analysis {
		sa := qa.SentimentAnalysis
		if !sa.Mentioned {
			continue
		}
		bars = append(bars, Bar{
			Label:      format.Truncate(qa.Query, LabelLength, "..."),
			Query:      qa.Query,
			Confidence: sa.Confidence * 100,
			Sentiment:  sa.Sentiment,
			Fill:       Fill(sa.Sentiment),
		})
	}
	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Confidence > bars[j].Confidence
	})
	if len(bars) > MaxConfidenceBars {
		bars = bars[:MaxConfidenceBars]
	}
	return bars
}
