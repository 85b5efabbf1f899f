package hybrid

import (
	"bytes"
	"strings"
)

// Promotion reasons reported by Detector.
const (
	ReasonEmpty         = "empty_body"
	ReasonBlocked       = "blocked"
	ReasonScriptHeavy   = "script_heavy"
	ReasonMissingMarker = "missing_marker"
)

// DefaultBodyLengthThreshold marks bodies short enough to check for script density.
const DefaultBodyLengthThreshold = 4096

// Detector decides whether a plain result page must be re-rendered headless.
type Detector struct {
	// Marker is a substring present on every usable result page, usually the
	// selector's id or class name. An empty marker disables that check.
	Marker              string
	BodyLengthThreshold int
}

// NewDetector builds a Detector whose marker is derived from a CSS selector.
func NewDetector(selector string, threshold int) *Detector {
	if threshold <= 0 {
		threshold = DefaultBodyLengthThreshold
	}
	return &Detector{Marker: selectorMarker(selector), BodyLengthThreshold: threshold}
}

var blockMarkers = [][]byte{
	[]byte("unusual traffic"),
	[]byte("captcha"),
	[]byte("consent.google"),
	[]byte("enable javascript"),
}

// Promote reports whether body needs a rendered retry and why.
func (d *Detector) Promote(body []byte) (string, bool) {
	if len(bytes.TrimSpace(body)) == 0 {
		return ReasonEmpty, true
	}
	if d.Marker != "" && bytes.Contains(body, []byte(d.Marker)) {
		return "", false
	}
	lower := bytes.ToLower(body)
	for _, marker := range blockMarkers {
		if bytes.Contains(lower, marker) {
			return ReasonBlocked, true
		}
	}
	if len(body) < d.BodyLengthThreshold && scriptDensityHigh(string(lower)) {
		return ReasonScriptHeavy, true
	}
	if d.Marker != "" {
		return ReasonMissingMarker, true
	}
	return "", false
}

// selectorMarker strips the leading # or . and anything after the first
// compound part, so "#result-stats > span" yields "result-stats".
func selectorMarker(selector string) string {
	selector = strings.TrimSpace(selector)
	if cut := strings.IndexAny(selector, " >+~:["); cut >= 0 {
		selector = selector[:cut]
	}
	return strings.TrimLeft(selector, "#.")
}

// scriptDensityHigh reports whether script elements cover at least a quarter
// of a lower-cased document.
func scriptDensityHigh(lower string) bool {
	total := len(lower)
	if total == 0 {
		return false
	}
	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	covered := 0
	pos := 0
	for {
		rel := strings.Index(lower[pos:], openTag)
		if rel == -1 {
			break
		}
		start := pos + rel
		tagEnd := strings.IndexByte(lower[start:], '>')
		if tagEnd == -1 {
			covered += total - start
			break
		}
		contentStart := start + tagEnd + 1
		next := total
		if end := strings.Index(lower[contentStart:], closeTag); end != -1 {
			next = contentStart + end + len(closeTag)
		}
		covered += next - start
		pos = next
	}
	return covered*100/total >= 25
}
