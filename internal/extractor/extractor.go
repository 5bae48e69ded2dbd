// Package extractor defines the site boundary: everything that knows a site's
// markup lives behind Extractor, and sites register themselves by name.
package extractor

import (
	"context"
	"sort"
	"strings"

	"saleharvest/internal/item"
	"saleharvest/internal/page"
)

// Extractor turns a ready page into raw candidates.
type Extractor interface {
	Name() string
	// ReadySelector is the content region the fetcher waits for.
	ReadySelector() string
	// Extract returns at most maxItems product candidates. Malformed
	// candidates are reported in Extraction.Skipped; only a missing content
	// region is an error, and it wraps page.ErrContentNotFound.
	Extract(ctx context.Context, p page.Page, maxItems int) (item.Extraction, error)
}

var registry = map[string]Extractor{}

// Register makes e available under its lowercased name.
func Register(e Extractor) {
	registry[strings.ToLower(e.Name())] = e
}

func Get(name string) (Extractor, bool) {
	e, ok := registry[strings.ToLower(name)]
	return e, ok
}

// Names lists the registered extractors.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
