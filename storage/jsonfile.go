// Package storage persists listing records. JSONFile writes the JSON
// interchange array; Postgres upserts into a listings table.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/use-agent/appraise/models"
)

// JSONFile keeps the records of a run and rewrites path after every Put,
// so an interrupted run still leaves a valid file.
type JSONFile struct {
	mu      sync.Mutex
	path    string
	records []*models.ListingRecord
}

// NewJSONFile returns a sink writing to path. Existing content is replaced
// on the first Put.
func NewJSONFile(path string) *JSONFile {
	return &JSONFile{path: path}
}

// Path returns the output file.
func (f *JSONFile) Path() string { return f.path }

// Put appends rec and rewrites the file.
func (f *JSONFile) Put(_ context.Context, rec *models.ListingRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return Save(f.path, f.records)
}

// Records returns the records written so far.
func (f *JSONFile) Records() []*models.ListingRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.ListingRecord(nil), f.records...)
}

// Save writes records as an indented UTF-8 JSON array. The file is written
// to a temporary sibling and renamed into place.
func Save(path string, records []*models.ListingRecord) error {
	if records == nil {
		records = []*models.ListingRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: marshal records: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("storage: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("storage: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("storage: replace %s: %w", path, err)
	}
	return nil
}

// Load reads a file written by Save. A missing file yields no records.
func Load(path string) ([]*models.ListingRecord, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	var records []*models.ListingRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("storage: decode %s: %w", path, err)
	}
	return records, nil
}
