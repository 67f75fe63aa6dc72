// Package format holds the display helpers the site and dashboard share.
package format

import (
	"strconv"
	"strings"
	"time"
)

// Percentage formats v with the given number of decimals and a % suffix.
// Negative decimals mean 1.
func Percentage(v float64, decimals int) string {
	if decimals < 0 {
		decimals = 1
	}
	return strconv.FormatFloat(v, 'f', decimals, 64) + "%"
}

// Timestamp renders t like "Oct 10, 2025, 12:00 PM".
func Timestamp(t time.Time) string {
	return t.Format("Jan 2, 2006, 03:04 PM")
}

// Truncate cuts s to max runes and appends ellipsis when it was longer.
// max <= 0 means 100 and an empty ellipsis means "...".
func Truncate(s string, max int, ellipsis string) string {
	if s == "" {
		return ""
	}
	if max <= 0 {
		max = 100
	}
	if ellipsis == "" {
		ellipsis = "..."
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + ellipsis
}

var (
	sentimentColors = map[string]string{
		"POSITIVE":      "text-success",
		"NEGATIVE":      "text-danger",
		"NEUTRAL":       "text-neutral",
		"NOT_MENTIONED": "text-gray-500",
	}
	sentimentBgColors = map[string]string{
		"POSITIVE":      "bg-green-100",
		"NEGATIVE":      "bg-red-100",
		"NEUTRAL":       "bg-gray-100",
		"NOT_MENTIONED": "bg-gray-50",
	}
	badgeVariants = map[string]string{
		"POSITIVE":      "success",
		"NEGATIVE":      "danger",
		"NEUTRAL":       "neutral",
		"NOT_MENTIONED": "secondary",
	}
)

func lookup(m map[string]string, sentiment, fallback string) string {
	if v, ok := m[strings.ToUpper(sentiment)]; ok {
		return v
	}
	return fallback
}

// SentimentColor maps a sentiment label to its text color class.
func SentimentColor(sentiment string) string {
	return lookup(sentimentColors, sentiment, "text-gray-600")
}

// SentimentBgColor maps a sentiment label to its background class.
func SentimentBgColor(sentiment string) string {
	return lookup(sentimentBgColors, sentiment, "bg-gray-50")
}

// BadgeVariant maps a sentiment label to a badge variant.
func BadgeVariant(sentiment string) string {
	return lookup(badgeVariants, sentiment, "secondary")
}

// ClassNames joins the non-empty class names with single spaces.
func ClassNames(classes ...string) string {
	var kept []string
	for _, c := range classes {
		if c != "" {
			kept = append(kept, c)
		}
	}
	return strings.Join(kept, " ")
}
