package translate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslate(t *testing.T) {
	t.Parallel()

	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/translate_a/single", r.URL.Path)
		q := r.URL.Query()
		gotQuery = map[string]string{"sl": q.Get("sl"), "tl": q.Get("tl"), "q": q.Get("q"), "client": q.Get("client")}
		_, _ = w.Write([]byte(`[[["Super sale. ","スーパーセール。",null,null,10],["Up to 50% off","最大50%オフ",null,null,3]],null,"ja"]`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Source: "ja", Target: "en", Timeout: time.Second})
	got, err := c.Translate(context.Background(), "スーパーセール。最大50%オフ")
	require.NoError(t, err)
	assert.Equal(t, "Super sale. Up to 50% off", got)
	assert.Equal(t, map[string]string{"sl": "ja", "tl": "en", "q": "スーパーセール。最大50%オフ", "client": "gtx"}, gotQuery)
}

func TestTranslateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusTooManyRequests, `[]`},
		{"not json", http.StatusOK, `<html>`},
		{"empty", http.StatusOK, `[]`},
		{"no segments", http.StatusOK, `[[],null,"ja"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := New(Config{BaseURL: srv.URL, Source: "ja", Target: "en", Timeout: time.Second})
			_, err := c.Translate(context.Background(), "セール")
			assert.Error(t, err)
		})
	}
}
