package main

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/JakeFAU/kgr-crawler/internal/keyword"
	"github.com/JakeFAU/kgr-crawler/internal/partition"
)

type batchFlags struct {
	id        string
	keywords  string
	csvFile   string
	csvData   string
	// csvBase64 marks csvData as base64, as the GitHub dispatcher sends it.
	csvBase64 bool
}

// request turns the one-shot flags into a batch request. The keyword list is
// read from the inline flag and either CSV source, in that order.
func (f batchFlags) request() (keyword.BatchRequest, error) {
	id := strings.TrimSpace(f.id)
	if id == "" {
		return keyword.BatchRequest{}, &keyword.ValidationError{Field: "id", Reason: "batch id is required"}
	}
	src := partition.Source{Inline: f.keywords}
	switch {
	case f.csvFile != "":
		data, err := os.ReadFile(f.csvFile)
		if err != nil {
			return keyword.BatchRequest{}, fmt.Errorf("read csv file: %w", err)
		}
		src.File = data
	case f.csvData != "":
		data, err := decodeCSVData(f.csvData, f.csvBase64)
		if err != nil {
			return keyword.BatchRequest{}, err
		}
		src.File = data
	}
	parsed, err := partition.ParseSource(src)
	if err != nil {
		return keyword.BatchRequest{}, err
	}
	return keyword.BatchRequest{BatchID: id, Keywords: parsed.Keywords}, nil
}

// decodeCSVData returns raw as-is, or its base64 decoding when encoded is set.
func decodeCSVData(raw string, encoded bool) ([]byte, error) {
	if !encoded {
		return []byte(raw), nil
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(raw))
	if err != nil {
		return nil, &keyword.ValidationError{Field: "csv-data", Reason: "invalid base64 payload"}
	}
	return decoded, nil
}
