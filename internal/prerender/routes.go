package prerender

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/TobiSchelling/visibi/internal/catalog"
)

// NormalizeRoute returns route with exactly one leading slash and no trailing
// slash. Empty input is the root. Routes that climb with ".." are rejected.
func NormalizeRoute(route string) (string, error) {
	route = strings.TrimSpace(route)
	if i := strings.IndexAny(route, "?#"); i >= 0 {
		route = route[:i]
	}
	var segments []string
	for _, seg := range strings.Split(route, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			return "", fmt.Errorf("route %q escapes the output directory", route)
		}
		segments = append(segments, seg)
	}
	return "/" + strings.Join(segments, "/"), nil
}

// NormalizeRoutes normalizes every route and drops duplicates, keeping the
// first occurrence.
func NormalizeRoutes(routes []string) ([]string, error) {
	seen := make(map[string]bool, len(routes))
	out := make([]string, 0, len(routes))
	for _, r := range routes {
		n, err := NormalizeRoute(r)
		if err != nil {
			return nil, err
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out, nil
}

// Routes builds the render list: the static routes followed by the slugs of
// published articles when includeArticles is set.
func Routes(static []string, includeArticles bool, cat *catalog.Catalog) ([]string, error) {
	all := append([]string(nil), static...)
	if includeArticles && cat != nil {
		all = append(all, cat.Slugs()...)
	}
	return NormalizeRoutes(all)
}

// OutputPath maps a normalized route to its file under dist:
// "/" -> dist/index.html, "/a/b" -> dist/a/b/index.html.
func OutputPath(dist, route string) string {
	if route == "/" || route == "" {
		return filepath.Join(dist, "index.html")
	}
	return filepath.Join(dist, filepath.FromSlash(strings.TrimPrefix(route, "/")), "index.html")
}
