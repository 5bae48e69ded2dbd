package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"saleharvest/internal/item"
)

// CorpusContent renders a stored corpus.
type CorpusContent struct {
	source string
	corpus item.Corpus
}

// NewCorpusContent wraps corpus; source names where it was loaded from.
func NewCorpusContent(source string, corpus item.Corpus) *CorpusContent {
	return &CorpusContent{source: source, corpus: corpus}
}

var corpusTemplate = template.Must(template.New("corpus").Funcs(template.FuncMap{
	"deref": deref,
}).Parse(`<h1>Harvested corpus</h1>
<p>{{.Source}}: {{len .Products}} products, {{len .Banners}} banners</p>
<h2>Products</h2>
<table>
<thead><tr><th>Title</th><th>Title (EN)</th><th>Price</th><th>Original</th><th>Discount</th><th>Link</th><th>Scraped</th></tr></thead>
<tbody>
{{- range .Products}}
<tr><td>{{.TitleJA}}</td><td>{{.TitleEN}}</td><td>{{.DiscountedPrice}}</td><td>{{deref .OriginalPrice}}</td><td>{{deref .DiscountPercentEN}}</td><td>{{.Link}}</td><td>{{.ScrapedAt}}</td></tr>
{{- end}}
</tbody>
</table>
<h2>Banners</h2>
<table>
<thead><tr><th>Text</th><th>Text (EN)</th><th>OCR</th><th>Image</th><th>Scraped</th></tr></thead>
<tbody>
{{- range .Banners}}
<tr><td>{{.TextJA}}</td><td>{{.TextEN}}</td><td>{{.OCRText}}</td><td>{{.ImageURL}}</td><td>{{.ScrapedAt}}</td></tr>
{{- end}}
</tbody>
</table>
`))

func (c *CorpusContent) ToHTML() (string, error) {
	var buf bytes.Buffer
	err := corpusTemplate.Execute(&buf, struct {
		Source   string
		Products []item.Product
		Banners  []item.Banner
	}{c.source, c.corpus.Products, c.corpus.Banners})
	if err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return buf.String(), nil
}

// ToMarkdown converts the HTML rendering, keeping both tables as GitHub
// flavoured markdown tables.
func (c *CorpusContent) ToMarkdown() (string, error) {
	html, err := c.ToHTML()
	if err != nil {
		return "", err
	}
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.Table())
	markdown, err := converter.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("failed to convert HTML to Markdown: %w", err)
	}
	return markdown, nil
}

func (c *CorpusContent) ToText() (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %d products, %d banners\n\n", c.source, len(c.corpus.Products), len(c.corpus.Banners))

	products := newTable()
	products.SetTitle("Products")
	products.AppendHeader(table.Row{"#", "Title", "Price", "Original", "Discount", "Link"})
	for i, p := range c.corpus.Products {
		products.AppendRow(table.Row{i + 1, firstNonEmpty(p.TitleEN, p.TitleJA), p.DiscountedPrice,
			deref(p.OriginalPrice), deref(p.DiscountPercentEN), p.Link})
	}
	sb.WriteString(products.Render())
	sb.WriteString("\n\n")

	banners := newTable()
	banners.SetTitle("Banners")
	banners.AppendHeader(table.Row{"#", "Text", "OCR", "Image"})
	for i, b := range c.corpus.Banners {
		banners.AppendRow(table.Row{i + 1, firstNonEmpty(b.TextEN, b.TextJA), b.OCRText, b.ImageURL})
	}
	sb.WriteString(banners.Render())
	sb.WriteString("\n")
	return sb.String(), nil
}

// ToJSON uses the same layout as the corpus file.
func (c *CorpusContent) ToJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c.corpus); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ToCSV writes one row per record; Kind tells products and banners apart.
func (c *CorpusContent) ToCSV() (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"Kind", "Text", "TextEN", "Price", "OriginalPrice", "Discount", "ImageURL", "Link", "OCRText", "ScrapedAt"})
	for _, p := range c.corpus.Products {
		_ = w.Write([]string{string(item.KindProduct), p.TitleJA, p.TitleEN, p.DiscountedPrice,
			deref(p.OriginalPrice), deref(p.DiscountPercentJA), p.ImageURL, p.Link, "", p.ScrapedAt})
	}
	for _, b := range c.corpus.Banners {
		_ = w.Write([]string{string(item.KindBanner), b.TextJA, b.TextEN, "", "", "", b.ImageURL, "", b.OCRText, b.ScrapedAt})
	}
	w.Flush()
	return buf.String(), w.Error()
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, WidthMax: 48},
		{Number: 6, WidthMax: 60},
	})
	t.Style().Title.Align = text.AlignCenter
	return t
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
