package item

import "time"

// TimeLayout is the capture timestamp format written to the corpus.
const TimeLayout = "2006-01-02 15:04:05 UTC"

// Product is a persisted product record.
type Product struct {
	TitleJA           string  `json:"title_ja"`
	TitleEN           string  `json:"title_en"`
	OriginalPrice     *string `json:"original_price"`
	DiscountedPrice   string  `json:"discounted_price"`
	DiscountPercentJA *string `json:"discount_percent_ja"`
	DiscountPercentEN *string `json:"discount_percent_en"`
	ImageURL          string  `json:"image_url"`
	Link              string  `json:"link"`
	ScrapedAt         string  `json:"scraped_at"`
}

// Key returns the identity key recomputed from persisted fields.
func (p Product) Key() Key { return ProductKey(p.Link) }

// Banner is a persisted banner record.
type Banner struct {
	TextJA    string `json:"text_ja"`
	TextEN    string `json:"text_en"`
	ImageURL  string `json:"image_url"`
	OCRText   string `json:"ocr_text,omitempty"`
	ScrapedAt string `json:"scraped_at"`
}

// Key returns the identity key recomputed from persisted fields.
func (b Banner) Key() Key { return BannerKey(b.ImageURL, b.TextJA) }

// Corpus is the whole persisted document.
type Corpus struct {
	Products []Product `json:"products"`
	Banners  []Banner  `json:"banners"`
}

// Len returns the total number of records.
func (c Corpus) Len() int { return len(c.Products) + len(c.Banners) }

// Keys returns the identity key of every record.
func (c Corpus) Keys() []Key {
	keys := make([]Key, 0, c.Len())
	for _, p := range c.Products {
		keys = append(keys, p.Key())
	}
	for _, b := range c.Banners {
		keys = append(keys, b.Key())
	}
	return keys
}

// ToProduct converts an enriched product into its persisted form.
func (e Enriched) ToProduct() Product {
	p := e.Product
	rec := Product{
		TitleJA:         p.Title,
		TitleEN:         e.TitleEN,
		OriginalPrice:   optional(p.OriginalPrice),
		DiscountedPrice: p.DiscountedPrice,
		ImageURL:        p.ImageURL,
		Link:            p.Link,
		ScrapedAt:       formatTime(e.CapturedAt),
	}
	if p.DiscountLabel != "" {
		rec.DiscountPercentJA = optional(p.DiscountLabel)
		rec.DiscountPercentEN = optional(e.DiscountLabelEN)
	}
	return rec
}

// ToBanner converts an enriched banner into its persisted form.
func (e Enriched) ToBanner() Banner {
	return Banner{
		TextJA:    e.Banner.Caption,
		TextEN:    e.CaptionEN,
		ImageURL:  e.Banner.ImageURL,
		OCRText:   e.OCRText,
		ScrapedAt: formatTime(e.CapturedAt),
	}
}

// Split partitions enriched items into persisted product and banner records,
// keeping input order within each kind.
func Split(items []Enriched) ([]Product, []Banner) {
	var products []Product
	var banners []Banner
	for _, e := range items {
		switch e.Kind {
		case KindProduct:
			products = append(products, e.ToProduct())
		case KindBanner:
			banners = append(banners, e.ToBanner())
		}
	}
	return products, banners
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}
