// Package formatter renders harvested content and round summaries for
// people: terminal tables, markdown, HTML, JSON and CSV.
package formatter

import (
	"fmt"
	"strings"
)

// Content is anything that can render itself in every output format.
type Content interface {
	ToHTML() (string, error)
	ToText() (string, error)
	ToMarkdown() (string, error)
	ToJSON() ([]byte, error)
	ToCSV() (string, error)
}

// Formats lists the names accepted by Format.
var Formats = []string{"text", "markdown", "json", "csv", "html"}

func Format(content Content, format string) (string, error) {
	switch strings.ToLower(format) {
	case "html":
		return content.ToHTML()
	case "text":
		return content.ToText()
	case "markdown", "md":
		return content.ToMarkdown()
	case "csv":
		return content.ToCSV()
	case "json":
		b, err := content.ToJSON()
		if err != nil {
			return "", err
		}
		return string(b), nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", format)
	}
}
