package page

import (
	"fmt"

	"github.com/go-rod/rod"
)

// Rod is a Page backed by a live browser tab.
type Rod struct {
	page    *rod.Page
	onClose func() error
}

// NewRod wraps p. onClose, if set, runs after the tab is closed; the fetch
// session uses it to shut down the browser that owns the tab.
func NewRod(p *rod.Page, onClose func() error) *Rod {
	return &Rod{page: p, onClose: onClose}
}

func (r *Rod) URL() string {
	info, err := r.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (r *Rod) All(selector string) ([]Element, error) {
	els, err := r.page.Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	out := make([]Element, len(els))
	for i, el := range els {
		out[i] = rodElement{el: el}
	}
	return out, nil
}

func (r *Rod) Height() (int, error) {
	res, err := r.page.Eval(`() => document.body ? document.body.scrollHeight : 0`)
	if err != nil {
		return 0, fmt.Errorf("failed to measure height: %w", err)
	}
	return res.Value.Int(), nil
}

func (r *Rod) ScrollBy(dy int) error {
	if _, err := r.page.Eval(`(dy) => window.scrollBy(0, dy)`, dy); err != nil {
		return fmt.Errorf("failed to scroll: %w", err)
	}
	return nil
}

func (r *Rod) Close() error {
	err := r.page.Close()
	if r.onClose != nil {
		if cerr := r.onClose(); err == nil {
			err = cerr
		}
	}
	return err
}

type rodElement struct {
	el *rod.Element
}

// First uses Elements rather than Element so a missing child returns
// immediately instead of waiting for it to appear.
func (e rodElement) First(selector string) (Element, error) {
	els, err := e.el.Elements(selector)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, nil
	}
	return rodElement{el: els.First()}, nil
}

func (e rodElement) Attr(name string) (string, error) {
	v, err := e.el.Attribute(name)
	if err != nil || v == nil {
		return "", err
	}
	return *v, nil
}

func (e rodElement) Text() (string, error) {
	return e.el.Text()
}
