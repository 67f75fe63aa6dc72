package prerender

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Issue is one missing or malformed SEO element on a rendered page.
type Issue struct {
	Check   string
	Message string
}

// Audit checks the tags crawlers read from a snapshot: a title, a meta
// description, a canonical link and exactly one h1.
func Audit(html string) ([]Issue, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}

	var issues []Issue
	if strings.TrimSpace(doc.Find("head title").First().Text()) == "" {
		issues = append(issues, Issue{Check: "title", Message: "missing <title>"})
	}
	if desc, _ := doc.Find(`meta[name="description"]`).First().Attr("content"); strings.TrimSpace(desc) == "" {
		issues = append(issues, Issue{Check: "description", Message: "missing meta description"})
	}
	if href, _ := doc.Find(`link[rel="canonical"]`).First().Attr("href"); strings.TrimSpace(href) == "" {
		issues = append(issues, Issue{Check: "canonical", Message: "missing canonical link"})
	}
	switch n := doc.Find("h1").Length(); {
	case n == 0:
		issues = append(issues, Issue{Check: "h1", Message: "no <h1> heading"})
	case n > 1:
		issues = append(issues, Issue{Check: "h1", Message: fmt.Sprintf("%d <h1> headings", n)})
	}
	return issues, nil
}
