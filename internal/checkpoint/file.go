// Package checkpoint provides durable stores for crawl run progress.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"oliveyoung-crawler/internal/crawl"
)

// FileStore persists checkpoint state as a JSON file. Saves are atomic from
// the perspective of a concurrent reader: the snapshot is written to a
// temporary file in the same directory and swapped into place with a rename.
type FileStore struct {
	path string
}

// NewFileStore returns a store writing to path, creating parent directories
// as needed.
func NewFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("checkpoint path is required")
	}
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create checkpoint dir %s: %w", dir, err)
		}
	}
	return &FileStore{path: path}, nil
}

// Load reads the checkpoint. A missing or corrupt file yields an empty state
// and nil error so a fresh run can proceed.
func (s *FileStore) Load(ctx context.Context) (crawl.State, error) {
	if err := ctx.Err(); err != nil {
		return crawl.State{}, fmt.Errorf("context canceled: %w", err)
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return crawl.State{}, nil
	}
	var state crawl.State
	if err := json.Unmarshal(data, &state); err != nil {
		return crawl.State{}, nil
	}
	return state, nil
}

// Save writes the checkpoint snapshot atomically.
func (s *FileStore) Save(ctx context.Context, state crawl.State) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}
	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("create checkpoint temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write checkpoint temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close checkpoint temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("swap checkpoint into place: %w", err)
	}
	return nil
}
