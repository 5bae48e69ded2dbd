// Package translate calls a Google-Translate-compatible web endpoint.
package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultBaseURL is the public web translation endpoint.
const DefaultBaseURL = "https://translate.googleapis.com"

// ErrEmptyResult is returned when the service answers without any segment.
var ErrEmptyResult = errors.New("translation returned no text")

// Config configures a Client.
type Config struct {
	BaseURL string
	Source  string
	Target  string
	Timeout time.Duration
	Retries int
}

// Client translates text from Source to Target.
type Client struct {
	http   *resty.Client
	source string
	target string
}

// New creates a Client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries)
	return &Client{http: c, source: cfg.Source, target: cfg.Target}
}

// Translate returns the translation of text.
func (c *Client) Translate(ctx context.Context, text string) (string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"client": "gtx",
			"sl":     c.source,
			"tl":     c.target,
			"dt":     "t",
			"q":      text,
		}).
		Get("/translate_a/single")
	if err != nil {
		return "", fmt.Errorf("translate request: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("translate request: status %d", resp.StatusCode())
	}
	return parse(resp.Body())
}

// parse joins the translated segments of a gtx response, whose first
// element is a list of [translated, original, ...] tuples.
func parse(body []byte) (string, error) {
	var doc []json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("decode translation: %w", err)
	}
	if len(doc) == 0 {
		return "", ErrEmptyResult
	}
	var segments [][]any
	if err := json.Unmarshal(doc[0], &segments); err != nil {
		return "", fmt.Errorf("decode translation segments: %w", err)
	}

	var b strings.Builder
	for _, seg := range segments {
		if len(seg) == 0 {
			continue
		}
		if s, ok := seg[0].(string); ok {
			b.WriteString(s)
		}
	}
	if b.Len() == 0 {
		return "", ErrEmptyResult
	}
	return b.String(), nil
}
