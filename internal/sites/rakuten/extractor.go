// Package rakuten extracts sale products and promotional banners from
// Rakuten event pages.
package rakuten

import (
	"context"
	"fmt"
	"strings"

	"saleharvest/internal/extractor"
	"saleharvest/internal/item"
	"saleharvest/internal/page"
)

func init() {
	extractor.Register(New())
}

const (
	cardSelector     = "div.ecm-ad"
	linkSelector     = "a.ecm-ad-link"
	imageSelector    = "img"
	titleSelector    = ".ecm-ad-name"
	originalSelector = ".ecm-ad-price-original"
	priceSelector    = ".ecm-ad-price-amount"
	labelSelector    = ".ecm-ad-label"

	bannerSelector = "img[src*='banner'], img[src*='sale'], img[alt*='割引'], img[alt*='セール'], img[class*='banner']"

	// DefaultMaxBanners caps banner candidates per page.
	DefaultMaxBanners = 20
)

// Extractor reads div.ecm-ad product cards and banner images.
type Extractor struct {
	MaxBanners int
}

// New returns an Extractor with the default banner cap.
func New() *Extractor {
	return &Extractor{MaxBanners: DefaultMaxBanners}
}

func (e *Extractor) Name() string          { return "rakuten" }
func (e *Extractor) ReadySelector() string { return cardSelector }

// Extract returns up to maxItems valid products (0 means no cap) and up to
// MaxBanners banners. Available is the number of product cards on the page.
func (e *Extractor) Extract(ctx context.Context, p page.Page, maxItems int) (item.Extraction, error) {
	cards, err := p.All(cardSelector)
	if err != nil {
		return item.Extraction{}, err
	}
	if len(cards) == 0 {
		return item.Extraction{}, fmt.Errorf("%w: no %s on %s", page.ErrContentNotFound, cardSelector, p.URL())
	}

	var out item.Extraction
	out.Available = len(cards)

	if err := e.extractBanners(ctx, p, &out); err != nil {
		return item.Extraction{}, err
	}

	products := 0
	for _, card := range cards {
		if maxItems > 0 && products >= maxItems {
			break
		}
		if err := ctx.Err(); err != nil {
			return item.Extraction{}, err
		}
		cand, reason := readCard(card, p.URL())
		if reason != "" {
			out.Skipped = append(out.Skipped, item.Skip{Kind: item.KindProduct, Reason: reason})
			continue
		}
		out.Items = append(out.Items, item.NewProduct(cand))
		products++
	}
	return out, nil
}

func readCard(card page.Element, base string) (item.ProductCandidate, string) {
	link, err := attrOf(card, linkSelector, "href")
	if err != nil {
		return item.ProductCandidate{}, err.Error()
	}
	if link == "" {
		return item.ProductCandidate{}, "missing link"
	}
	image, err := attrOf(card, imageSelector, "src")
	if err != nil {
		return item.ProductCandidate{}, err.Error()
	}
	if image == "" {
		return item.ProductCandidate{}, "missing image"
	}
	price, err := textOf(card, priceSelector)
	if err != nil {
		return item.ProductCandidate{}, err.Error()
	}
	if price == "" {
		return item.ProductCandidate{}, "missing discounted price"
	}

	// Optional fields: read failures leave them empty.
	title, _ := textOf(card, titleSelector)
	original, _ := textOf(card, originalSelector)
	label, _ := textOf(card, labelSelector)
	if label == "" {
		label = deriveLabel(original, price)
	}

	return item.ProductCandidate{
		Title:           title,
		OriginalPrice:   original,
		DiscountedPrice: price,
		DiscountLabel:   label,
		ImageURL:        resolve(base, image),
		Link:            resolve(base, link),
	}, ""
}

func (e *Extractor) extractBanners(ctx context.Context, p page.Page, out *item.Extraction) error {
	imgs, err := p.All(bannerSelector)
	if err != nil {
		// Banners are secondary; a failed query only costs this page's banners.
		out.Skipped = append(out.Skipped, item.Skip{Kind: item.KindBanner, Reason: err.Error()})
		return nil
	}
	if e.MaxBanners > 0 && len(imgs) > e.MaxBanners {
		imgs = imgs[:e.MaxBanners]
	}
	for _, img := range imgs {
		if err := ctx.Err(); err != nil {
			return err
		}
		src, _ := img.Attr("src")
		alt, _ := img.Attr("alt")
		title, _ := img.Attr("title")
		caption := cleanText(alt)
		if caption == "" {
			caption = cleanText(title)
		}
		switch {
		case caption == "":
			out.Skipped = append(out.Skipped, item.Skip{Kind: item.KindBanner, Reason: "missing caption"})
		case src == "":
			out.Skipped = append(out.Skipped, item.Skip{Kind: item.KindBanner, Reason: "missing image"})
		default:
			out.Items = append(out.Items, item.NewBanner(item.BannerCandidate{
				Caption:  caption,
				ImageURL: resolve(p.URL(), src),
			}))
		}
	}
	return nil
}

func attrOf(parent page.Element, selector, name string) (string, error) {
	el, err := parent.First(selector)
	if err != nil || el == nil {
		return "", err
	}
	v, err := el.Attr(name)
	return strings.TrimSpace(v), err
}

func textOf(parent page.Element, selector string) (string, error) {
	el, err := parent.First(selector)
	if err != nil || el == nil {
		return "", err
	}
	v, err := el.Text()
	return cleanText(v), err
}
