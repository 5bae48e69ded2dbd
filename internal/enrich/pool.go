// Package enrich attaches translations and recognised image text to
// extracted candidates over a bounded worker pool.
package enrich

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"saleharvest/internal/clock"
	"saleharvest/internal/item"
	"saleharvest/internal/logger"
)

// DefaultWorkers is the pool width.
const DefaultWorkers = 4

// ImageReader extracts text from the image at a URL.
type ImageReader interface {
	Read(ctx context.Context, imageURL string) (string, error)
}

// Pool enriches batches with at most Workers concurrent items.
type Pool struct {
	translator Translator
	images     ImageReader
	workers    int
	clock      clock.Clock
	log        logger.Logger
}

// NewPool creates a Pool. images may be nil to disable OCR.
func NewPool(translator Translator, images ImageReader, workers int, clk clock.Clock, log logger.Logger) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Pool{translator: translator, images: images, workers: workers, clock: clk, log: log}
}

// Enrich returns one enriched item per input, in input order. A failing
// step only degrades its own item.
func (p *Pool) Enrich(ctx context.Context, raws []item.Raw) []item.Enriched {
	out := make([]item.Enriched, len(raws))

	var g errgroup.Group
	g.SetLimit(p.workers)
	for i, raw := range raws {
		g.Go(func() error {
			out[i] = p.enrichOne(ctx, raw)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (p *Pool) enrichOne(ctx context.Context, raw item.Raw) (e item.Enriched) {
	e = item.Enriched{Raw: raw, CapturedAt: p.clock.Now()}
	defer func() {
		if r := recover(); r != nil {
			e.Defects = append(e.Defects, item.Defect{Stage: item.StageTranslate, Field: "panic", Err: fmt.Errorf("%v", r)})
			p.log.Error("Enrichment panicked", logger.String("key", raw.Key().String()), logger.Any("panic", r))
		}
	}()

	switch raw.Kind {
	case item.KindProduct:
		e.TitleEN = p.translate(ctx, &e, "title", raw.Product.Title)
		e.DiscountLabelEN = p.translate(ctx, &e, "discount_label", raw.Product.DiscountLabel)
	case item.KindBanner:
		e.CaptionEN = p.translate(ctx, &e, "caption", raw.Banner.Caption)
		if p.images != nil {
			text, err := p.images.Read(ctx, raw.Banner.ImageURL)
			if err != nil {
				e.Defects = append(e.Defects, item.Defect{Stage: item.StageOCR, Field: "ocr_text", Err: err})
				p.log.Debug("OCR skipped", logger.String("image", raw.Banner.ImageURL), logger.Error(err))
			} else {
				e.OCRText = text
			}
		}
	}
	return e
}

func (p *Pool) translate(ctx context.Context, e *item.Enriched, field, text string) string {
	if text == "" {
		return ""
	}
	out, err := p.translator.Translate(ctx, text)
	if err != nil {
		e.Defects = append(e.Defects, item.Defect{Stage: item.StageTranslate, Field: field, Err: err})
		p.log.Debug("Translation failed, keeping source text", logger.String("field", field), logger.Error(err))
		return text
	}
	return out
}
