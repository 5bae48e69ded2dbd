package page

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saleharvest/internal/clock"
)

// growingPage grows by a fixed amount on every scroll until it reaches cap.
type growingPage struct {
	height, grow, max int
	scrolls           int
	heightErr         error
}

func (g *growingPage) URL() string                   { return "https://example.jp" }
func (g *growingPage) All(string) ([]Element, error) { return nil, nil }
func (g *growingPage) Close() error                  { return nil }

func (g *growingPage) Height() (int, error) {
	return g.height, g.heightErr
}

func (g *growingPage) ScrollBy(int) error {
	g.scrolls++
	if g.max == 0 || g.height+g.grow <= g.max {
		g.height += g.grow
	}
	return nil
}

func TestSettleStopsWhenHeightStable(t *testing.T) {
	t.Parallel()

	p := &growingPage{height: 1000, grow: 500, max: 2000}
	clk := clock.NewFake(time.Time{})
	n, err := Settle(context.Background(), p, SettleOptions{Step: 1500, Pause: 500 * time.Millisecond, MaxScrolls: 10}, clk)
	require.NoError(t, err)

	// 1000 -> 1500 -> 2000 -> 2000
	assert.Equal(t, 3, n)
	assert.Len(t, clk.Sleeps(), 3)
}

func TestSettleTerminatesOnEndlessPage(t *testing.T) {
	t.Parallel()

	p := &growingPage{height: 1000, grow: 500}
	clk := clock.NewFake(time.Time{})
	n, err := Settle(context.Background(), p, SettleOptions{Step: 1500, MaxScrolls: 10}, clk)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, 10, p.scrolls)
}

func TestSettleReturnsMeasureError(t *testing.T) {
	t.Parallel()

	boom := errors.New("detached")
	p := &growingPage{heightErr: boom}
	_, err := Settle(context.Background(), p, SettleOptions{MaxScrolls: 3}, clock.NewFake(time.Time{}))
	assert.ErrorIs(t, err, boom)
}

func TestSettleHonoursCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &growingPage{height: 1, grow: 1}
	_, err := Settle(ctx, p, SettleOptions{MaxScrolls: 10}, clock.NewFake(time.Time{}))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, p.scrolls)
}

func TestDocument(t *testing.T) {
	t.Parallel()

	doc, err := NewDocument(`<html><body>
		<div class="card"><a class="link" href="/p/1">One</a><img src="a.png" alt="セール"></div>
		<div class="card"><span>no link</span></div>
	</body></html>`, "https://example.jp/sale")
	require.NoError(t, err)
	assert.Equal(t, "https://example.jp/sale", doc.URL())

	cards, err := doc.All("div.card")
	require.NoError(t, err)
	require.Len(t, cards, 2)

	link, err := cards[0].First("a.link")
	require.NoError(t, err)
	require.NotNil(t, link)
	href, err := link.Attr("href")
	require.NoError(t, err)
	assert.Equal(t, "/p/1", href)
	text, err := link.Text()
	require.NoError(t, err)
	assert.Equal(t, "One", text)

	missing, err := cards[1].First("a.link")
	require.NoError(t, err)
	assert.Nil(t, missing)

	img, err := cards[0].First("img")
	require.NoError(t, err)
	alt, _ := img.Attr("alt")
	title, _ := img.Attr("title")
	assert.Equal(t, "セール", alt)
	assert.Empty(t, title)
}
