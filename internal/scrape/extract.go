package scrape

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

// DefaultSelector locates the "About N results" element on a result page.
const DefaultSelector = "#result-stats"

var (
	// ErrNoResultStats is returned when the result-count element is absent.
	ErrNoResultStats = errors.New("result count element not found")
	// ErrNoCount is returned when the element holds no digits.
	ErrNoCount = errors.New("no count in result text")
)

// ExtractFromHTML finds selector in body and parses its count. A missing
// element is an error rather than a zero count.
func ExtractFromHTML(body []byte, selector string) (int, error) {
	if selector == "" {
		selector = DefaultSelector
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("parse result page: %w", err)
	}
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return 0, ErrNoResultStats
	}
	return ExtractCount(sel.Text())
}

// ExtractCount parses the first run of digits in text. Commas, periods, and
// spaces between digits are treated as thousands separators.
func ExtractCount(text string) (int, error) {
	runes := []rune(text)
	start := -1
	for i, r := range runes {
		if unicode.IsDigit(r) {
			start = i
			break
		}
	}
	if start < 0 {
		return 0, ErrNoCount
	}
	var digits strings.Builder
	for i := start; i < len(runes); i++ {
		r := runes[i]
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
			continue
		}
		if isSeparator(r) && i+1 < len(runes) && unicode.IsDigit(runes[i+1]) {
			continue
		}
		break
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return 0, fmt.Errorf("parse count %q: %w", digits.String(), err)
	}
	return n, nil
}

func isSeparator(r rune) bool {
	switch r {
	case ',', '.', ' ', '\u00a0', '\u2009', '\u202f':
		return true
	default:
		return false
	}
}
