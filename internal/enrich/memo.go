package enrich

import (
	"context"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// Translator translates one piece of text.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

// DefaultCacheSize bounds the translation cache.
const DefaultCacheSize = 1000

// MemoTranslator memoizes a Translator by exact (trimmed) input text in a
// bounded LRU. Concurrent lookups of the same text share one upstream call.
// Failures are not cached.
type MemoTranslator struct {
	next  Translator
	cache *lru.Cache[string, string]
	group singleflight.Group
}

// NewMemoTranslator wraps next with a cache of size entries.
func NewMemoTranslator(next Translator, size int) (*MemoTranslator, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("create translation cache: %w", err)
	}
	return &MemoTranslator{next: next, cache: cache}, nil
}

// Translate returns the cached or fresh translation. On failure it returns
// the source text together with the error.
func (m *MemoTranslator) Translate(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	if v, ok := m.cache.Get(text); ok {
		return v, nil
	}

	v, err, _ := m.group.Do(text, func() (any, error) {
		out, err := m.next.Translate(ctx, text)
		if err != nil {
			return nil, err
		}
		m.cache.Add(text, out)
		return out, nil
	})
	if err != nil {
		return text, err
	}
	return v.(string), nil
}

// Len returns the number of cached translations.
func (m *MemoTranslator) Len() int {
	return m.cache.Len()
}
