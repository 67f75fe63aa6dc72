package format

import (
	"testing"
	"time"
)

func TestPercentage(t *testing.T) {
	tests := []struct {
		v        float64
		decimals int
		want     string
	}{
		{66.666, 1, "66.7%"},
		{100, 0, "100%"},
		{12.5, 2, "12.50%"},
		{3.14159, -1, "3.1%"},
	}
	for _, tt := range tests {
		if got := Percentage(tt.v, tt.decimals); got != tt.want {
			t.Errorf("Percentage(%v, %d) = %q, want %q", tt.v, tt.decimals, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("", 5, ""); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
	if got := Truncate("short", 10, ""); got != "short" {
		t.Errorf("expected unchanged, got %q", got)
	}
	if got := Truncate("exactly10!", 10, ""); got != "exactly10!" {
		t.Errorf("expected unchanged at limit, got %q", got)
	}
	if got := Truncate("hello world", 5, "…"); got != "hello…" {
		t.Errorf("expected 'hello…', got %q", got)
	}
	if got := Truncate("héllo wörld", 4, ""); got != "héll..." {
		t.Errorf("expected rune-safe cut, got %q", got)
	}
}

func TestSentimentClasses(t *testing.T) {
	if got := SentimentColor("positive"); got != "text-success" {
		t.Errorf("expected text-success, got %q", got)
	}
	if got := SentimentColor(""); got != "text-gray-600" {
		t.Errorf("expected fallback, got %q", got)
	}
	if got := SentimentBgColor("NEGATIVE"); got != "bg-red-100" {
		t.Errorf("expected bg-red-100, got %q", got)
	}
	if got := SentimentBgColor("mixed"); got != "bg-gray-50" {
		t.Errorf("expected fallback, got %q", got)
	}
	if got := BadgeVariant("not_mentioned"); got != "secondary" {
		t.Errorf("expected secondary, got %q", got)
	}
	if got := BadgeVariant("Neutral"); got != "neutral" {
		t.Errorf("expected neutral, got %q", got)
	}
}

func TestClassNames(t *testing.T) {
	if got := ClassNames("a", "", "b", ""); got != "a b" {
		t.Errorf("expected 'a b', got %q", got)
	}
}

func TestTimestamp(t *testing.T) {
	ts := time.Date(2025, 10, 10, 14, 5, 0, 0, time.UTC)
	if got := Timestamp(ts); got != "Oct 10, 2025, 02:05 PM" {
		t.Errorf("unexpected timestamp %q", got)
	}
}
