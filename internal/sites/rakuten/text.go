package rakuten

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var (
	spaceRe      = regexp.MustCompile(`\s+`)
	decorationRe = regexp.MustCompile(`[＼♪★☆！!／]+`)
	priceRe      = regexp.MustCompile(`([0-9][0-9,]*)\s*円`)
)

// cleanText collapses whitespace and strips decorative symbols.
func cleanText(s string) string {
	s = spaceRe.ReplaceAllString(s, " ")
	s = decorationRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// parseYen reads the first "1,980円" style amount in s.
func parseYen(s string) (int, bool) {
	m := priceRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return 0, false
	}
	return n, true
}

// deriveLabel computes "NN%OFF" from the list and sale prices, or "" when
// either is missing or there is no reduction.
func deriveLabel(original, discounted string) string {
	o, ok := parseYen(original)
	if !ok || o == 0 {
		return ""
	}
	d, ok := parseYen(discounted)
	if !ok || d >= o {
		return ""
	}
	pct := int(math.Round(float64(o-d) / float64(o) * 100))
	if pct <= 0 {
		return ""
	}
	return fmt.Sprintf("%d%%OFF", pct)
}

// resolve makes ref absolute against base. Unparseable input is returned as is.
func resolve(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
