// Package page is the handle extractors read from: locate elements, read
// their attributes and text, scroll and measure height.
package page

import (
	"context"
	"errors"
	"time"

	"saleharvest/internal/clock"
)

var (
	// ErrTimeout reports that loading the page or waiting for its content
	// region exceeded the per-attempt ceiling.
	ErrTimeout = errors.New("page load timed out")
	// ErrContentNotFound reports that the expected content region is absent.
	ErrContentNotFound = errors.New("content region not found")
)

// Page is a rendered page.
type Page interface {
	// URL returns the final URL after redirects.
	URL() string
	// All returns every element matching the CSS selector, in document order.
	All(selector string) ([]Element, error)
	Height() (int, error)
	ScrollBy(dy int) error
	Close() error
}

// Element is one node of a page.
type Element interface {
	// First returns the first descendant matching selector, or nil when none does.
	First(selector string) (Element, error)
	// Attr returns the attribute value, or "" when absent.
	Attr(name string) (string, error)
	Text() (string, error)
}

// SettleOptions bounds the scroll-until-stable loop.
type SettleOptions struct {
	Step       int
	Pause      time.Duration
	MaxScrolls int
}

// Settle scrolls p until two consecutive height measurements are equal or
// MaxScrolls scrolls have been made. It returns the number of scrolls.
func Settle(ctx context.Context, p Page, opts SettleOptions, clk clock.Clock) (int, error) {
	last, err := p.Height()
	if err != nil {
		return 0, err
	}
	for n := 1; n <= opts.MaxScrolls; n++ {
		if err := p.ScrollBy(opts.Step); err != nil {
			return n - 1, err
		}
		if err := clk.Sleep(ctx, opts.Pause); err != nil {
			return n, err
		}
		h, err := p.Height()
		if err != nil {
			return n, err
		}
		if h == last {
			return n, nil
		}
		last = h
	}
	return opts.MaxScrolls, nil
}
