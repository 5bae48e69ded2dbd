package page

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Document is a Page over static HTML. It has no layout, so Height is
// constant and scrolling does nothing.
type Document struct {
	doc *goquery.Document
	url string
}

// NewDocument parses html fetched from url.
func NewDocument(html, url string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return &Document{doc: doc, url: url}, nil
}

func (d *Document) URL() string { return d.url }

func (d *Document) All(selector string) ([]Element, error) {
	return wrapSelection(d.doc.Find(selector)), nil
}

func (d *Document) Height() (int, error) { return len(d.doc.Find("*").Nodes), nil }
func (d *Document) ScrollBy(int) error   { return nil }
func (d *Document) Close() error         { return nil }

type selection struct {
	s *goquery.Selection
}

func wrapSelection(s *goquery.Selection) []Element {
	out := make([]Element, 0, s.Length())
	s.Each(func(_ int, el *goquery.Selection) {
		out = append(out, selection{s: el})
	})
	return out
}

func (e selection) First(selector string) (Element, error) {
	found := e.s.Find(selector).First()
	if found.Length() == 0 {
		return nil, nil
	}
	return selection{s: found}, nil
}

func (e selection) Attr(name string) (string, error) {
	v, _ := e.s.Attr(name)
	return v, nil
}

func (e selection) Text() (string, error) {
	return e.s.Text(), nil
}
