package brand

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"go.uber.org/zap"
)

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// Info is what a brand's homepage says about itself.
type Info struct {
	Name        string
	URL         string
	Description string
	Excerpt     string
}

// Fetcher loads brand homepages.
type Fetcher struct {
	client *http.Client
	logger *zap.Logger
}

// NewFetcher creates a fetcher. A zero timeout means 5s.
func NewFetcher(timeout time.Duration, logger *zap.Logger) *Fetcher {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		logger: logger,
	}
}

// FetchInfo reads the page title and meta description of rawURL. Any
// failure degrades to the name derived from the URL.
func (f *Fetcher) FetchInfo(ctx context.Context, rawURL string) Info {
	rawURL = NormalizeURL(rawURL)
	fallback := Info{Name: NameFromURL(rawURL), URL: rawURL}

	body, err := f.get(ctx, rawURL)
	if err != nil {
		f.logger.Warn("brand fetch failed", zap.String("url", rawURL), zap.Error(err))
		return fallback
	}

	info, err := parseInfo(body, rawURL)
	if err != nil {
		f.logger.Warn("brand page unparseable", zap.String("url", rawURL), zap.Error(err))
		return fallback
	}
	if info.Name == "" {
		info.Name = fallback.Name
	}
	return info
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func parseInfo(html, pageURL string) (Info, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Info{}, err
	}

	info := Info{URL: pageURL}
	info.Name = CleanTitle(doc.Find("title").First().Text())
	if desc, ok := doc.Find(`meta[name="description"]`).First().Attr("content"); ok {
		info.Description = strings.TrimSpace(desc)
	}

	if parsed, err := url.Parse(pageURL); err == nil {
		if article, err := readability.FromReader(strings.NewReader(html), parsed); err == nil {
			info.Excerpt = strings.TrimSpace(article.Excerpt)
			if info.Name == "" {
				info.Name = CleanTitle(article.SiteName)
			}
		}
	}
	return info, nil
}

// CleanTitle keeps the part of a page title before the first separator:
// "Slack | Where work happens" -> "Slack".
func CleanTitle(title string) string {
	title = strings.TrimSpace(title)
	for _, sep := range []string{"|", "-", "–", ":"} {
		if i := strings.Index(title, sep); i >= 0 {
			return strings.TrimSpace(title[:i])
		}
	}
	return title
}
