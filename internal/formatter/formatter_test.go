package formatter

import (
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saleharvest/internal/harvest"
	"saleharvest/internal/item"
	"saleharvest/internal/scheduler"
)

func strPtr(s string) *string { return &s }

func sampleCorpus() item.Corpus {
	return item.Corpus{
		Products: []item.Product{
			{
				TitleJA:           "ワイヤレスイヤホン",
				TitleEN:           "Wireless earphones",
				OriginalPrice:     strPtr("5,000円"),
				DiscountedPrice:   "2,500円",
				DiscountPercentJA: strPtr("50%OFF"),
				DiscountPercentEN: strPtr("50% OFF"),
				ImageURL:          "https://img.example.jp/1.jpg",
				Link:              "https://item.example.jp/1?a=1&b=2",
				ScrapedAt:         "2024-11-03 00:00:00 UTC",
			},
			{
				TitleJA:         "<b>タオル</b>",
				DiscountedPrice: "980円",
				ImageURL:        "https://img.example.jp/2.jpg",
				Link:            "https://item.example.jp/2",
				ScrapedAt:       "2024-11-03 00:00:00 UTC",
			},
		},
		Banners: []item.Banner{
			{TextJA: "スーパーセール", TextEN: "Super Sale", ImageURL: "https://img.example.jp/b.png", OCRText: "MAX 50%", ScrapedAt: "2024-11-03 00:00:00 UTC"},
		},
	}
}

func TestFormatDispatch(t *testing.T) {
	t.Parallel()

	c := NewCorpusContent("ai_storage.json", sampleCorpus())
	for _, f := range append(Formats, "MD") {
		out, err := Format(c, f)
		require.NoError(t, err, f)
		assert.NotEmpty(t, out, f)
	}
	_, err := Format(c, "yaml")
	assert.Error(t, err)
}

func TestCorpusHTMLEscapes(t *testing.T) {
	t.Parallel()

	out, err := NewCorpusContent("x", sampleCorpus()).ToHTML()
	require.NoError(t, err)
	assert.Contains(t, out, "&lt;b&gt;タオル&lt;/b&gt;")
	assert.Contains(t, out, "2 products, 1 banners")
	assert.NotContains(t, out, "<b>タオル")
}

func TestCorpusMarkdownTables(t *testing.T) {
	t.Parallel()

	out, err := NewCorpusContent("x", sampleCorpus()).ToMarkdown()
	require.NoError(t, err)
	assert.Contains(t, out, "# Harvested corpus")
	assert.Contains(t, out, "Wireless earphones")
	assert.Contains(t, out, "---")
	assert.NotContains(t, out, "<table>")
	assert.Contains(t, out, "Super Sale")
}

func TestCorpusTextPrefersEnglish(t *testing.T) {
	t.Parallel()

	out, err := NewCorpusContent("x", sampleCorpus()).ToText()
	require.NoError(t, err)
	assert.Contains(t, out, "Wireless earphones")
	assert.Contains(t, out, "<b>タオル</b>", "untranslated titles fall back to the source text")
	assert.Contains(t, out, "Super Sale")
}

func TestCorpusJSONMatchesFileLayout(t *testing.T) {
	t.Parallel()

	out, err := NewCorpusContent("x", sampleCorpus()).ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(out), `"link": "https://item.example.jp/1?a=1&b=2"`)

	var back item.Corpus
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, sampleCorpus(), back)
}

func TestCorpusCSV(t *testing.T) {
	t.Parallel()

	out, err := NewCorpusContent("x", sampleCorpus()).ToCSV()
	require.NoError(t, err)

	rows, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Kind", rows[0][0])
	assert.Equal(t, []string{"product", "ワイヤレスイヤホン", "Wireless earphones", "2,500円", "5,000円", "50%OFF"}, rows[1][:6])
	assert.Equal(t, "banner", rows[3][0])
	assert.Equal(t, "MAX 50%", rows[3][8])
}

func TestSummaryAndReportTables(t *testing.T) {
	t.Parallel()

	out := SummaryTable(
		harvest.Summary{Round: 1, Outcome: harvest.OutcomeNewItems, Attempts: 1, Found: 10, AcceptedProducts: 10, Duration: harvest.Duration(2 * time.Second)},
		harvest.Summary{Round: 2, Outcome: harvest.OutcomeFailed, Attempts: 2, Error: "gave up after 2 attempts"},
	)
	assert.Contains(t, out, "new_items")
	assert.Contains(t, out, "gave up after 2 attempts")

	out = ReportTable(scheduler.Report{Rounds: 3, NewItemRounds: 1, FailedRounds: 2, Accepted: 10})
	assert.Contains(t, out, "Failed rounds")
	assert.Contains(t, out, "Monitoring")
}
