// Package partition validates keyword intake and splits it into batches.
package partition

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/kgr-crawler/internal/keyword"
)

// DefaultBatchSize is the largest batch a single worker handles reliably.
const DefaultBatchSize = 30

// Source is the raw keyword intake. At least one of Inline or File must be set.
type Source struct {
	// Inline is a comma-separated keyword list.
	Inline string
	// File is a delimited payload whose first column is the keyword and whose
	// optional second column is a search volume.
	File []byte
}

// Parsed is the keyword list extracted from a Source.
type Parsed struct {
	Keywords []string
	Volumes  map[string]int
}

// Partitioner assigns batch identities to validated intake.
type Partitioner struct {
	batchSize int
	clock     keyword.Clock
}

// New returns a Partitioner. batchSize <= 0 falls back to DefaultBatchSize.
func New(batchSize int, clock keyword.Clock) *Partitioner {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Partitioner{batchSize: batchSize, clock: clock}
}

// BatchSize reports the configured batch size.
func (p *Partitioner) BatchSize() int {
	return p.batchSize
}

// ParseSource extracts keywords (and any volumes) from the source. Order and
// duplicates are preserved.
func ParseSource(src Source) (Parsed, error) {
	if strings.TrimSpace(src.Inline) == "" && len(bytes.TrimSpace(src.File)) == 0 {
		return Parsed{}, &keyword.ValidationError{Field: "keywords", Reason: "keywords or file is required"}
	}
	out := Parsed{Volumes: map[string]int{}}
	for _, kw := range strings.Split(src.Inline, ",") {
		if kw = strings.TrimSpace(kw); kw != "" {
			out.Keywords = append(out.Keywords, kw)
		}
	}
	if len(src.File) > 0 {
		if err := parseDelimited(src.File, &out); err != nil {
			return Parsed{}, err
		}
	}
	if len(out.Keywords) == 0 {
		return Parsed{}, &keyword.ValidationError{Field: "keywords", Reason: "no keywords after trimming"}
	}
	return out, nil
}

func parseDelimited(data []byte, out *Parsed) error {
	reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true
	first := true
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return &keyword.ValidationError{Field: "file", Reason: fmt.Sprintf("unreadable payload: %v", err)}
		}
		if len(record) == 0 {
			continue
		}
		kw := strings.TrimSpace(record[0])
		if first {
			first = false
			if strings.EqualFold(kw, "keyword") || strings.EqualFold(kw, "keywords") {
				continue
			}
		}
		if kw == "" {
			continue
		}
		out.Keywords = append(out.Keywords, kw)
		if len(record) > 1 {
			if vol, ok := parseVolume(record[1]); ok {
				out.Volumes[kw] = vol
			}
		}
	}
}

// EncodeKeywords renders keywords as a single-column payload with a header
// row, readable by ParseSource. Keywords containing commas are quoted.
func EncodeKeywords(keywords []string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"keyword"}); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for _, kw := range keywords {
		if err := w.Write([]string{kw}); err != nil {
			return nil, fmt.Errorf("write keyword: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush keywords: %w", err)
	}
	return buf.Bytes(), nil
}

func parseVolume(raw string) (int, bool) {
	raw = strings.NewReplacer(",", "", " ", "", "_", "").Replace(strings.TrimSpace(raw))
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// Partition splits keywords into ceil(n/B) batches in original order. Batch
// indexes start at 1 and every batch begins Pending.
func (p *Partitioner) Partition(jobID string, keywords []string, volumes map[string]int) (*keyword.Job, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, &keyword.ValidationError{Field: "id", Reason: "job id is required"}
	}
	if len(keywords) == 0 {
		return nil, &keyword.ValidationError{Field: "keywords", Reason: "no keywords after trimming"}
	}
	job := &keyword.Job{
		ID:        jobID,
		Keywords:  append([]string(nil), keywords...),
		Volumes:   volumes,
		CreatedAt: p.now(),
	}
	for start, idx := 0, 1; start < len(keywords); start, idx = start+p.batchSize, idx+1 {
		end := min(start+p.batchSize, len(keywords))
		job.Batches = append(job.Batches, keyword.BatchRef{
			Key:      keyword.BatchKey{JobID: jobID, Index: idx},
			Keywords: append([]string(nil), keywords[start:end]...),
			Status:   keyword.BatchPending,
		})
	}
	return job, nil
}

// PartitionSource parses the source and partitions the result.
func (p *Partitioner) PartitionSource(jobID string, src Source) (*keyword.Job, error) {
	parsed, err := ParseSource(src)
	if err != nil {
		return nil, err
	}
	return p.Partition(jobID, parsed.Keywords, parsed.Volumes)
}

func (p *Partitioner) now() time.Time {
	if p.clock == nil {
		return time.Now().UTC()
	}
	return p.clock.Now()
}
