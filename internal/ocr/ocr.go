// Package ocr reads text out of banner images: download, reject images that
// cannot carry readable text, then send the rest to a tesseract server.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

var (
	// ErrSkipped is wrapped by every reason an image is not recognised.
	ErrSkipped = errors.New("ocr skipped")

	ErrFetch       = fmt.Errorf("%w: image fetch failed", ErrSkipped)
	ErrUnsupported = fmt.Errorf("%w: unsupported image format", ErrSkipped)
	ErrTooSmall    = fmt.Errorf("%w: image too small", ErrSkipped)
	ErrRecognize   = fmt.Errorf("%w: recognition failed", ErrSkipped)
)

// Config configures a Reader.
type Config struct {
	// ServerURL is the tesseract-server base URL.
	ServerURL string
	Languages []string
	// ImageTimeout bounds each image download; ImageRetries is the number
	// of extra download attempts.
	ImageTimeout time.Duration
	ImageRetries int
	// RecognizeTimeout bounds each recognition request.
	RecognizeTimeout time.Duration
	MinWidth         int
	MinHeight        int
}

// Reader runs the download, gate and recognition steps for one image URL.
type Reader struct {
	images     *resty.Client
	recognizer *resty.Client
	cfg        Config
}

// New creates a Reader.
func New(cfg Config) *Reader {
	if cfg.MinWidth == 0 && cfg.MinHeight == 0 {
		cfg.MinWidth, cfg.MinHeight = 200, 50
	}
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{"jpn", "eng"}
	}
	images := resty.New().
		SetTimeout(cfg.ImageTimeout).
		SetRetryCount(cfg.ImageRetries).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})
	recognizer := resty.New().
		SetBaseURL(strings.TrimRight(cfg.ServerURL, "/")).
		SetTimeout(cfg.RecognizeTimeout)
	return &Reader{images: images, recognizer: recognizer, cfg: cfg}
}

// Read returns the cleaned text found in the image at imageURL. Every
// failure wraps ErrSkipped.
func (r *Reader) Read(ctx context.Context, imageURL string) (string, error) {
	if isSVG(imageURL) {
		return "", fmt.Errorf("%w: svg", ErrUnsupported)
	}
	data, err := r.fetch(ctx, imageURL)
	if err != nil {
		return "", err
	}
	if err := Gate(data, r.cfg.MinWidth, r.cfg.MinHeight); err != nil {
		return "", err
	}
	text, err := r.recognize(ctx, path.Base(imageURL), data)
	if err != nil {
		return "", err
	}
	return Clean(text), nil
}

func (r *Reader) fetch(ctx context.Context, imageURL string) ([]byte, error) {
	resp, err := r.images.R().SetContext(ctx).Get(imageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: status %d", ErrFetch, resp.StatusCode())
	}
	return resp.Body(), nil
}

// Gate rejects data that is not a decodable raster image of at least
// minW x minH pixels.
func Gate(data []byte, minW, minH int) error {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	if cfg.Width < minW || cfg.Height < minH {
		return fmt.Errorf("%w: %s %dx%d", ErrTooSmall, format, cfg.Width, cfg.Height)
	}
	return nil
}

type tesseractOptions struct {
	Languages []string `json:"languages"`
	PSM       int      `json:"psm"`
}

type tesseractResponse struct {
	Data struct {
		Stdout string `json:"stdout"`
		Stderr string `json:"stderr"`
	} `json:"data"`
}

func (r *Reader) recognize(ctx context.Context, name string, data []byte) (string, error) {
	opts, err := json.Marshal(tesseractOptions{Languages: r.cfg.Languages, PSM: 6})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRecognize, err)
	}
	var out tesseractResponse
	resp, err := r.recognizer.R().
		SetContext(ctx).
		SetMultipartField("options", "", "application/json", bytes.NewReader(opts)).
		SetFileReader("file", name, bytes.NewReader(data)).
		SetResult(&out).
		Post("/tesseract")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRecognize, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: status %d", ErrRecognize, resp.StatusCode())
	}
	return out.Data.Stdout, nil
}

// Clean joins recognised lines and drops blank ones.
func Clean(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if l = strings.Join(strings.Fields(l), " "); l != "" {
			kept = append(kept, l)
		}
	}
	return strings.Join(kept, " ")
}

func isSVG(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return strings.HasSuffix(strings.ToLower(raw), ".svg")
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".svg")
}
