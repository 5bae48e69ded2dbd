package fetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"saleharvest/internal/browser"
	"saleharvest/internal/page"
)

// Static fetches server-rendered HTML over plain HTTP and parses it with goquery.
type Static struct {
	client *resty.Client
}

// NewStatic creates a Static fetcher with the given request timeout.
func NewStatic(timeout time.Duration, proxyURL string) *Static {
	c := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", browser.DefaultUserAgent).
		SetHeader("Accept-Language", "ja,en;q=0.8")
	if proxyURL != "" {
		c.SetProxy(proxyURL)
	}
	return &Static{client: c}
}

// Open downloads target. A document without readySelector yields
// page.ErrContentNotFound.
func (s *Static) Open(ctx context.Context, target, readySelector string) (page.Page, error) {
	resp, err := s.client.R().SetContext(ctx).Get(target)
	if err != nil {
		return nil, classify(ctx, "fetch "+target, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("failed to fetch %s: status %d", target, resp.StatusCode())
	}

	finalURL := target
	if resp.RawResponse != nil && resp.RawResponse.Request != nil {
		finalURL = resp.RawResponse.Request.URL.String()
	}
	doc, err := page.NewDocument(resp.String(), finalURL)
	if err != nil {
		return nil, err
	}

	if readySelector != "" {
		found, _ := doc.All(readySelector)
		if len(found) == 0 {
			return nil, fmt.Errorf("%w: %s", page.ErrContentNotFound, readySelector)
		}
	}
	return doc, nil
}
