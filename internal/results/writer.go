// Package results writes and reads the aggregated crawl result document.
package results

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"oliveyoung-crawler/internal/crawl"
)

// Writer persists the aggregated result document as pretty-printed JSON.
// Like the checkpoint store, it writes through a temp file plus rename so a
// reader never observes a half-written document.
type Writer struct {
	path string
}

// NewWriter returns a writer targeting path, creating parent directories as
// needed.
func NewWriter(path string) (*Writer, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("output path is required")
	}
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create output dir %s: %w", dir, err)
		}
	}
	return &Writer{path: path}, nil
}

// Write serializes the document and swaps it into place.
func (w *Writer) Write(ctx context.Context, doc crawl.Document) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result document: %w", err)
	}
	dir := filepath.Dir(w.path)
	tmp, err := os.CreateTemp(dir, ".results-*")
	if err != nil {
		return fmt.Errorf("create results temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write results temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close results temp file: %w", err)
	}
	if err := os.Rename(tmpName, w.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("swap results into place: %w", err)
	}
	return nil
}

// Read loads a previously written result document.
func Read(path string) (crawl.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return crawl.Document{}, fmt.Errorf("read result document %s: %w", path, err)
	}
	var doc crawl.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return crawl.Document{}, fmt.Errorf("decode result document %s: %w", path, err)
	}
	return doc, nil
}
