// Package item defines harvested candidates, their enriched form and the
// identity keys used to deduplicate them.
package item

import (
	"time"
)

// Kind partitions the corpus.
type Kind string

const (
	KindProduct Kind = "product"
	KindBanner  Kind = "banner"
)

// Key identifies a real-world item across extractions and runs. Products are
// keyed by link, banners by image URL plus source-language caption.
type Key struct {
	Kind      Kind
	Primary   string
	Secondary string
}

func (k Key) String() string {
	if k.Secondary == "" {
		return string(k.Kind) + ":" + k.Primary
	}
	return string(k.Kind) + ":" + k.Primary + "|" + k.Secondary
}

// ProductKey builds the identity key for a product link.
func ProductKey(link string) Key {
	return Key{Kind: KindProduct, Primary: link}
}

// BannerKey builds the identity key for a banner.
func BannerKey(imageURL, caption string) Key {
	return Key{Kind: KindBanner, Primary: imageURL, Secondary: caption}
}

// ProductCandidate holds the site-native fields of one product card.
type ProductCandidate struct {
	Title           string
	OriginalPrice   string // empty when the card shows no list price
	DiscountedPrice string
	DiscountLabel   string // empty when absent and not derivable
	ImageURL        string
	Link            string
}

// BannerCandidate holds one promotional image and its caption.
type BannerCandidate struct {
	Caption  string
	ImageURL string
}

// Raw is an extracted candidate: exactly one of Product or Banner is set.
type Raw struct {
	Kind    Kind
	Product *ProductCandidate
	Banner  *BannerCandidate
}

// NewProduct wraps a product candidate.
func NewProduct(p ProductCandidate) Raw {
	return Raw{Kind: KindProduct, Product: &p}
}

// NewBanner wraps a banner candidate.
func NewBanner(b BannerCandidate) Raw {
	return Raw{Kind: KindBanner, Banner: &b}
}

// Key returns the identity key of the candidate.
func (r Raw) Key() Key {
	switch r.Kind {
	case KindProduct:
		return ProductKey(r.Product.Link)
	case KindBanner:
		return BannerKey(r.Banner.ImageURL, r.Banner.Caption)
	default:
		return Key{}
	}
}

// Skip records a candidate the extractor dropped because required fields were missing.
type Skip struct {
	Kind   Kind
	Reason string
}

// Extraction is the result of running an extractor over one page.
type Extraction struct {
	Items []Raw
	// Available is the number of candidate nodes on the page before capping.
	Available int
	Skipped   []Skip
}

// Stage names an enrichment step.
type Stage string

const (
	StageTranslate Stage = "translate"
	StageOCR       Stage = "ocr"
)

// Defect records a failed enrichment step. The item is still accepted.
type Defect struct {
	Stage Stage
	Field string
	Err   error
}

// Status tells whether every enrichment step succeeded.
type Status int

const (
	StatusComplete Status = iota
	StatusDegraded
)

func (s Status) String() string {
	if s == StatusDegraded {
		return "degraded"
	}
	return "complete"
}

// Enriched is a candidate plus its derived fields. Enrichment never changes
// the identity key.
type Enriched struct {
	Raw
	TitleEN         string
	DiscountLabelEN string
	CaptionEN       string
	OCRText         string
	CapturedAt      time.Time
	Defects         []Defect
}

// Status reports StatusDegraded when any enrichment step failed.
func (e Enriched) Status() Status {
	if len(e.Defects) > 0 {
		return StatusDegraded
	}
	return StatusComplete
}
