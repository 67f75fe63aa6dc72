package catalog

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type rss struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         string    `xml:"title"`
	Link          string    `xml:"link"`
	Description   string    `xml:"description"`
	Language      string    `xml:"language"`
	LastBuildDate string    `xml:"lastBuildDate,omitempty"`
	Items         []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string  `xml:"title"`
	Link        string  `xml:"link"`
	GUID        rssGUID `xml:"guid"`
	Category    string  `xml:"category,omitempty"`
	Description string  `xml:"description"`
	PubDate     string  `xml:"pubDate,omitempty"`
}

type rssGUID struct {
	IsPermaLink bool   `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

// RenderFeed writes an RSS 2.0 feed of published articles. Links are built
// from siteURL and each article's slug; the GUID is the article ID.
func (c *Catalog) RenderFeed(w io.Writer, siteURL string) error {
	siteURL = strings.TrimRight(siteURL, "/")
	published := c.Published()

	ch := rssChannel{
		Title:       "VISIBI Insights",
		Link:        siteURL + "/insights",
		Description: "Research and playbooks on brand visibility in AI search.",
		Language:    "en-us",
	}
	if len(published) > 0 {
		ch.LastBuildDate = published[0].Time().Format(time.RFC1123Z)
	}
	for _, a := range published {
		item := rssItem{
			Title:       a.Title,
			Link:        siteURL + a.Slug,
			GUID:        rssGUID{Value: a.ID},
			Category:    a.Category,
			Description: a.Description,
		}
		if t := a.Time(); !t.IsZero() {
			item.PubDate = t.Format(time.RFC1123Z)
		}
		ch.Items = append(ch.Items, item)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(rss{Version: "2.0", Channel: ch}); err != nil {
		return fmt.Errorf("encoding feed: %w", err)
	}
	return enc.Flush()
}

// WriteFeed renders the feed to path, creating parent directories.
func (c *Catalog) WriteFeed(path, siteURL string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating feed directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating feed: %w", err)
	}
	if err := c.RenderFeed(f, siteURL); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
