// Package catalog holds the insights article metadata shown on the site.
package catalog

import (
	_ "embed"
	"fmt"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// AllCategories is the pseudo-category that disables filtering.
const AllCategories = "All"

const dateLayout = "2006-01-02"

//go:embed articles.yaml
var defaultArticlesYAML []byte

// Article is one insights entry. Date is ISO (YYYY-MM-DD) for sorting;
// DisplayDate is what the page shows.
type Article struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Category    string `yaml:"category"`
	Date        string `yaml:"date"`
	DisplayDate string `yaml:"display_date"`
	Excerpt     string `yaml:"excerpt"`
	Description string `yaml:"description"`
	ReadTime    string `yaml:"read_time"`
	Slug        string `yaml:"slug"`
	Published   bool   `yaml:"published"`
}

// Time parses the article date; unparseable dates yield the zero time.
func (a Article) Time() time.Time {
	t, err := time.Parse(dateLayout, a.Date)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Catalog is an immutable list of articles in source order.
type Catalog struct {
	articles []Article
}

// New creates a catalog over a copy of articles.
func New(articles []Article) *Catalog {
	cp := make([]Article, len(articles))
	copy(cp, articles)
	return &Catalog{articles: cp}
}

// Default returns the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return Parse(defaultArticlesYAML)
}

// Parse reads a YAML list of articles.
func Parse(data []byte) (*Catalog, error) {
	var articles []Article
	if err := yaml.Unmarshal(data, &articles); err != nil {
		return nil, fmt.Errorf("parsing articles: %w", err)
	}
	return New(articles), nil
}

// All returns every article, published or not, in source order.
func (c *Catalog) All() []Article {
	out := make([]Article, len(c.articles))
	copy(out, c.articles)
	return out
}

// Published returns published articles, newest first. Articles sharing a
// date keep their source order.
func (c *Catalog) Published() []Article {
	var out []Article
	for _, a := range c.articles {
		if a.Published {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Time().After(out[j].Time())
	})
	return out
}

// DefaultLatest is the number of articles Latest returns for a negative n.
const DefaultLatest = 2

// Latest returns the n newest published articles. A negative n means
// DefaultLatest; zero returns none.
func (c *Catalog) Latest(n int) []Article {
	if n < 0 {
		n = DefaultLatest
	}
	published := c.Published()
	if n > len(published) {
		n = len(published)
	}
	return published[:n]
}

// ByCategory returns published articles in category, newest first. The
// "All" category returns the unfiltered published set.
func (c *Catalog) ByCategory(category string) []Article {
	published := c.Published()
	if category == AllCategories {
		return published
	}
	var out []Article
	for _, a := range published {
		if a.Category == category {
			out = append(out, a)
		}
	}
	return out
}

// ByID finds an article regardless of its published flag.
func (c *Catalog) ByID(id string) (Article, bool) {
	for _, a := range c.articles {
		if a.ID == id {
			return a, true
		}
	}
	return Article{}, false
}

// Categories returns "All" followed by the sorted unique categories of every
// article, including unpublished ones.
func (c *Catalog) Categories() []string {
	seen := make(map[string]struct{})
	var unique []string
	for _, a := range c.articles {
		if _, ok := seen[a.Category]; ok {
			continue
		}
		seen[a.Category] = struct{}{}
		unique = append(unique, a.Category)
	}
	sort.Strings(unique)
	return append([]string{AllCategories}, unique...)
}

// Slugs returns the distinct page paths of published articles.
func (c *Catalog) Slugs() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, a := range c.Published() {
		if a.Slug == "" {
			continue
		}
		if _, ok := seen[a.Slug]; ok {
			continue
		}
		seen[a.Slug] = struct{}{}
		out = append(out, a.Slug)
	}
	return out
}
