// Package fetcher opens target pages and hands them to extractors once the
// content region is present and the page has stopped growing.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"saleharvest/internal/browser"
	"saleharvest/internal/clock"
	"saleharvest/internal/logger"
	"saleharvest/internal/page"
)

// Config controls page loading.
type Config struct {
	Browser browser.Config
	// PageTimeout bounds navigation and load.
	PageTimeout time.Duration
	// ReadyTimeout bounds the wait for the content region.
	ReadyTimeout time.Duration
	Width        int
	Height       int
	Settle       page.SettleOptions
}

// Fetcher opens each target in a fresh browser so a crashed tab cannot leak
// into the next attempt.
type Fetcher struct {
	cfg   Config
	clock clock.Clock
	log   logger.Logger
}

// New creates a browser-backed Fetcher.
func New(cfg Config, clk clock.Clock, log logger.Logger) *Fetcher {
	if cfg.Width == 0 {
		cfg.Width, cfg.Height = 1280, 720
	}
	return &Fetcher{cfg: cfg, clock: clk, log: log}
}

// Open navigates to target, waits for readySelector and scrolls until the
// page height is stable. Closing the returned page also closes the browser.
// Exceeding PageTimeout or ReadyTimeout yields an error wrapping page.ErrTimeout.
func (f *Fetcher) Open(ctx context.Context, target, readySelector string) (page.Page, error) {
	b, err := browser.New(f.cfg.Browser)
	if err != nil {
		return nil, err
	}

	rp, err := b.NewPage()
	if err != nil {
		b.Close()
		return nil, err
	}
	rp = rp.Context(ctx)
	p := page.NewRod(rp, b.Close)

	fail := func(stage string, err error) (page.Page, error) {
		p.Close()
		return nil, classify(ctx, stage, err)
	}

	if err := rp.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  f.cfg.Width,
		Height: f.cfg.Height,
	}); err != nil {
		return fail("set viewport", err)
	}

	start := f.clock.Now()
	if err := rp.Timeout(f.cfg.PageTimeout).Navigate(target); err != nil {
		return fail("navigate", err)
	}
	if err := rp.Timeout(f.cfg.PageTimeout).WaitLoad(); err != nil {
		return fail("wait for load", err)
	}
	if readySelector != "" {
		if _, err := rp.Timeout(f.cfg.ReadyTimeout).Element(readySelector); err != nil {
			return fail("wait for "+readySelector, err)
		}
	}

	scrolls, err := page.Settle(ctx, p, f.cfg.Settle, f.clock)
	if err != nil {
		return fail("scroll", err)
	}

	f.log.Debug("Page ready",
		logger.String("url", target),
		logger.Int("scrolls", scrolls),
		logger.Duration("load_time", f.clock.Now().Sub(start)),
	)
	return p, nil
}

// classify maps deadline errors to page.ErrTimeout. Cancellation of the
// caller's context is returned as is so it is not retried.
func classify(ctx context.Context, stage string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("failed to %s: %w", stage, ctx.Err())
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("failed to %s: %w: %v", stage, page.ErrTimeout, err)
	}
	return fmt.Errorf("failed to %s: %w", stage, err)
}
