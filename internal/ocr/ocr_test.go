package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngOf(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func newImageServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	big, small := pngOf(t, 600, 120), pngOf(t, 120, 40)
	var flaky atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/big.png":
			_, _ = w.Write(big)
		case "/small.png":
			_, _ = w.Write(small)
		case "/text.png":
			_, _ = w.Write([]byte("not an image"))
		case "/flaky.png":
			if flaky.Add(1) == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			_, _ = w.Write(big)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &flaky
}

func newTesseract(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !assert.Equal(t, "/tesseract", r.URL.Path) || !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		var opts tesseractOptions
		assert.NoError(t, json.Unmarshal([]byte(r.FormValue("options")), &opts))
		assert.Equal(t, []string{"jpn", "eng"}, opts.Languages)
		assert.Equal(t, 6, opts.PSM)

		f, _, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(f)
		assert.NotEmpty(t, data)

		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"stdout":"最大\n\n  50% OFF \n","stderr":""}}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRead(t *testing.T) {
	t.Parallel()

	images, flaky := newImageServer(t)
	r := New(Config{
		ServerURL:        newTesseract(t, http.StatusOK).URL,
		ImageTimeout:     time.Second,
		ImageRetries:     1,
		RecognizeTimeout: time.Second,
	})

	text, err := r.Read(context.Background(), images.URL+"/big.png")
	require.NoError(t, err)
	assert.Equal(t, "最大 50% OFF", text)

	text, err = r.Read(context.Background(), images.URL+"/flaky.png")
	require.NoError(t, err)
	assert.Equal(t, "最大 50% OFF", text)
	assert.Equal(t, int32(2), flaky.Load())
}

func TestReadSkips(t *testing.T) {
	t.Parallel()

	images, _ := newImageServer(t)
	r := New(Config{
		ServerURL:        newTesseract(t, http.StatusOK).URL,
		ImageTimeout:     time.Second,
		RecognizeTimeout: time.Second,
	})

	tests := []struct {
		path string
		want error
	}{
		{"/logo.svg", ErrUnsupported},
		{"/small.png", ErrTooSmall},
		{"/text.png", ErrUnsupported},
		{"/missing.png", ErrFetch},
	}
	for _, tt := range tests {
		_, err := r.Read(context.Background(), images.URL+tt.path)
		assert.ErrorIs(t, err, tt.want, tt.path)
		assert.ErrorIs(t, err, ErrSkipped, tt.path)
	}
}

func TestReadRecognizerFailure(t *testing.T) {
	t.Parallel()

	images, _ := newImageServer(t)
	r := New(Config{
		ServerURL:        newTesseract(t, http.StatusInternalServerError).URL,
		ImageTimeout:     time.Second,
		RecognizeTimeout: time.Second,
	})
	_, err := r.Read(context.Background(), images.URL+"/big.png")
	assert.ErrorIs(t, err, ErrRecognize)
}

func TestGate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Gate(pngOf(t, 200, 50), 200, 50))
	assert.ErrorIs(t, Gate(pngOf(t, 199, 50), 200, 50), ErrTooSmall)
	assert.ErrorIs(t, Gate(pngOf(t, 400, 49), 200, 50), ErrTooSmall)
	assert.ErrorIs(t, Gate([]byte("GIF89"), 200, 50), ErrUnsupported)
}

func TestClean(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a b c", Clean("a\n\n b \n\tc\n"))
	assert.Equal(t, "", Clean("\n \n"))
}
