package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInferFormatFromExtension(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"out.md":       "markdown",
		"OUT.MARKDOWN": "markdown",
		"corpus.json":  "json",
		"page.htm":     "html",
		"rows.csv":     "csv",
		"notes.txt":    "text",
		"archive.zip":  "",
		"noext":        "",
	}
	for in, want := range tests {
		assert.Equal(t, want, inferFormatFromExtension(in), in)
	}
}

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://event.rakuten.co.jp/x", normalizeURL("  event.rakuten.co.jp/x "))
	assert.Equal(t, "http://localhost:8080", normalizeURL("http://localhost:8080"))
	assert.Equal(t, "HTTPS://A.example", normalizeURL("HTTPS://A.example"))
	assert.Empty(t, normalizeURL(" "))
}
