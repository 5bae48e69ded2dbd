package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saleharvest/internal/page"
)

func TestStaticOpen(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sale":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(`<html><body><div class="ecm-ad">靴</div></body></html>`))
		case "/slow":
			time.Sleep(200 * time.Millisecond)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s := NewStatic(2*time.Second, "")

	t.Run("ready", func(t *testing.T) {
		p, err := s.Open(context.Background(), srv.URL+"/sale", "div.ecm-ad")
		require.NoError(t, err)
		defer p.Close()
		assert.Equal(t, srv.URL+"/sale", p.URL())
		cards, err := p.All("div.ecm-ad")
		require.NoError(t, err)
		assert.Len(t, cards, 1)
	})

	t.Run("region missing", func(t *testing.T) {
		_, err := s.Open(context.Background(), srv.URL+"/sale", "#nothing")
		assert.ErrorIs(t, err, page.ErrContentNotFound)
	})

	t.Run("non-2xx", func(t *testing.T) {
		_, err := s.Open(context.Background(), srv.URL+"/missing", "")
		require.Error(t, err)
		assert.NotErrorIs(t, err, page.ErrTimeout)
		assert.Contains(t, err.Error(), "status 404")
	})

	t.Run("timeout", func(t *testing.T) {
		slow := NewStatic(20*time.Millisecond, "")
		_, err := slow.Open(context.Background(), srv.URL+"/slow", "")
		assert.ErrorIs(t, err, page.ErrTimeout)
	})
}
