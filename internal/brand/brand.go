// Package brand derives brand names and monitoring queries from a site URL.
package brand

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

var schemeRe = regexp.MustCompile(`(?i)^https?://`)

var defaultQueries = []string{
	"What do you think about %s?",
	"Is %s good for businesses?",
	"Who are the main competitors of %s?",
	"What are the pros and cons of %s?",
	"Would you recommend %s?",
}

// NormalizeURL trims raw and prefixes https:// when it has no http(s) scheme.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || schemeRe.MatchString(raw) {
		return raw
	}
	return "https://" + raw
}

// Host returns the bare host of raw without scheme, "www." or path.
func Host(raw string) string {
	host := schemeRe.ReplaceAllString(strings.TrimSpace(raw), "")
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	if i := strings.IndexAny(host, "/?#"); i >= 0 {
		host = host[:i]
	}
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return host
}

// NameFromURL guesses a brand name from the first label of the host:
// "https://www.slack.com" -> "Slack". Returns "Unknown" when nothing is left.
func NameFromURL(raw string) string {
	label := Host(raw)
	if i := strings.IndexByte(label, '.'); i >= 0 {
		label = label[:i]
	}
	if label == "" {
		return "Unknown"
	}
	return titleCase(label)
}

// titleCase upper-cases the first letter of each alphanumeric run.
func titleCase(s string) string {
	var b strings.Builder
	startOfWord := true
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if startOfWord {
				b.WriteRune(unicode.ToUpper(r))
			} else {
				b.WriteRune(unicode.ToLower(r))
			}
			startOfWord = false
			continue
		}
		b.WriteRune(r)
		startOfWord = true
	}
	return b.String()
}

// MonitoringQueries builds the prompt list for a brand: five defaults, then
// custom queries, then two questions per keyword.
func MonitoringQueries(name string, keywords, custom []string) []string {
	queries := make([]string, 0, len(defaultQueries)+len(custom)+2*len(keywords))
	for _, q := range defaultQueries {
		queries = append(queries, fmt.Sprintf(q, name))
	}
	queries = append(queries, custom...)
	for _, kw := range keywords {
		queries = append(queries,
			fmt.Sprintf("How does %s handle %s?", name, kw),
			fmt.Sprintf("What is %s's approach to %s?", name, kw),
		)
	}
	return queries
}

// ComparisonQueries pairs the brand with each competitor.
func ComparisonQueries(name string, competitors []string) []string {
	var queries []string
	for _, c := range competitors {
		queries = append(queries,
			fmt.Sprintf("Compare %s vs %s", name, c),
			fmt.Sprintf("Which is better, %s or %s?", name, c),
		)
	}
	return queries
}

// ParseKeywords splits comma-separated input into trimmed, non-empty entries.
func ParseKeywords(inputs ...string) []string {
	var out []string
	for _, in := range inputs {
		for _, part := range strings.Split(in, ",") {
			if kw := strings.TrimSpace(part); kw != "" {
				out = append(out, kw)
			}
		}
	}
	return out
}
