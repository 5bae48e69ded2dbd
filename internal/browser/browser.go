// Package browser launches and tears down the headless Chromium used for fetching.
package browser

import (
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// DefaultBlockedHosts are tracker and ad hosts whose requests are aborted.
var DefaultBlockedHosts = []string{
	"doubleclick",
	"googletagmanager",
	"analytics",
	"facebook",
	"adservice",
	"scorecardresearch",
}

// DefaultUserAgent is sent by every page the browser opens.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Config controls how the browser is launched.
type Config struct {
	Headless bool
	ProxyURL string
	// BlockedHosts are substrings matched against request hostnames.
	BlockedHosts []string
	UserAgent    string
}

// Browser wraps a rod.Browser and the launcher process behind it.
type Browser struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	router   *rod.HijackRouter
	cfg      Config
}

// New launches a browser. Requests to BlockedHosts are failed as if blocked
// by the client.
func New(cfg Config) (*Browser, error) {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	l := launcher.New().Headless(cfg.Headless)
	if cfg.ProxyURL != "" {
		l = l.Proxy(cfg.ProxyURL)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	rb := rod.New().ControlURL(controlURL)
	if err := rb.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	b := &Browser{browser: rb, launcher: l, cfg: cfg}
	if len(cfg.BlockedHosts) > 0 {
		if err := b.blockHosts(cfg.BlockedHosts); err != nil {
			b.Close()
			return nil, err
		}
	}
	return b, nil
}

func (b *Browser) blockHosts(hosts []string) error {
	router := b.browser.HijackRequests()
	err := router.Add("*", "", func(ctx *rod.Hijack) {
		if Blocked(ctx.Request.URL().Hostname(), hosts) {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})
	if err != nil {
		return fmt.Errorf("failed to install request filter: %w", err)
	}
	go router.Run()
	b.router = router
	return nil
}

// Blocked reports whether host contains any of the blocked substrings.
func Blocked(host string, blocked []string) bool {
	host = strings.ToLower(host)
	for _, h := range blocked {
		if h != "" && strings.Contains(host, strings.ToLower(h)) {
			return true
		}
	}
	return false
}

// NewPage opens a blank tab with the configured user agent.
func (b *Browser) NewPage() (*rod.Page, error) {
	p, err := b.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	if err := p.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: b.cfg.UserAgent}); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to set user agent: %w", err)
	}
	return p, nil
}

// Close stops request filtering, closes the browser and kills the process.
func (b *Browser) Close() error {
	if b.router != nil {
		_ = b.router.Stop()
	}
	var err error
	if b.browser != nil {
		err = b.browser.Close()
	}
	if b.launcher != nil {
		b.launcher.Kill()
	}
	return err
}
