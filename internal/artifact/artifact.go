// Package artifact encodes and decodes per-batch result files.
package artifact

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/JakeFAU/kgr-crawler/internal/keyword"
)

// ContentType is the MIME type of an encoded artifact.
const ContentType = "text/csv"

// Extension is appended to the batch id to form the object name.
const Extension = ".csv"

var header = []string{"keyword", "searchType", "count"}

// ObjectPath returns the store path for a batch artifact.
func ObjectPath(prefix, batchID string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return batchID + Extension
	}
	return prefix + "/" + batchID + Extension
}

// Encode renders results as CSV with a keyword,searchType,count header.
func Encode(results []keyword.KeywordResult) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for _, r := range results {
		if err := w.Write([]string{r.Keyword, string(r.SearchType), strconv.Itoa(r.Count)}); err != nil {
			return nil, fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush artifact: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses an artifact. Any structural problem (missing columns, blank
// keywords, unknown search types, non-numeric counts, or a keyword without
// both search types) is reported as keyword.ErrMalformedArtifact.
func Decode(data []byte) ([]keyword.KeywordResult, error) {
	reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
	reader.FieldsPerRecord = -1
	head, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty artifact", keyword.ErrMalformedArtifact)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", keyword.ErrMalformedArtifact, err)
	}
	cols, err := columns(head)
	if err != nil {
		return nil, err
	}

	var results []keyword.KeywordResult
	seen := map[string]map[keyword.SearchType]bool{}
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", keyword.ErrMalformedArtifact, err)
		}
		r, err := parseRow(record, cols)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", keyword.ErrMalformedArtifact, line, err)
		}
		if seen[r.Keyword] == nil {
			seen[r.Keyword] = map[keyword.SearchType]bool{}
		}
		seen[r.Keyword][r.SearchType] = true
		results = append(results, r)
	}
	for kw, types := range seen {
		for _, st := range keyword.SearchTypes {
			if !types[st] {
				return nil, fmt.Errorf("%w: keyword %q missing %s count", keyword.ErrMalformedArtifact, kw, st)
			}
		}
	}
	return results, nil
}

func columns(head []string) ([3]int, error) {
	cols := [3]int{-1, -1, -1}
	for i, name := range head {
		for j, want := range header {
			if strings.EqualFold(strings.TrimSpace(name), want) {
				cols[j] = i
			}
		}
	}
	for j, idx := range cols {
		if idx < 0 {
			return cols, fmt.Errorf("%w: missing %s column", keyword.ErrMalformedArtifact, header[j])
		}
	}
	return cols, nil
}

func parseRow(record []string, cols [3]int) (keyword.KeywordResult, error) {
	for _, idx := range cols {
		if idx >= len(record) {
			return keyword.KeywordResult{}, errors.New("missing field")
		}
	}
	kw := strings.TrimSpace(record[cols[0]])
	if kw == "" {
		return keyword.KeywordResult{}, errors.New("blank keyword")
	}
	st := keyword.SearchType(strings.ToLower(strings.TrimSpace(record[cols[1]])))
	if !st.Valid() {
		return keyword.KeywordResult{}, fmt.Errorf("unknown search type %q", record[cols[1]])
	}
	count, err := strconv.Atoi(strings.TrimSpace(record[cols[2]]))
	if err != nil || count < 0 {
		return keyword.KeywordResult{}, fmt.Errorf("invalid count %q", record[cols[2]])
	}
	return keyword.KeywordResult{Keyword: kw, SearchType: st, Count: count}, nil
}
