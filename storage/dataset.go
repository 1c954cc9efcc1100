package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"immo-scraper/models"
)

// Dataset is an append-only JSON Lines file: one object per record.
// It is safe for concurrent use.
type Dataset struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// NewDataset opens (or creates) the dataset file at path for appending.
// Intermediate directories are created automatically.
func NewDataset(path string) (*Dataset, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("dataset: create dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("dataset: open %q: %w", path, err)
	}
	return &Dataset{path: path, file: f}, nil
}

// Path returns the file the dataset appends to.
func (d *Dataset) Path() string { return d.path }

// Write appends listings.
func (d *Dataset) Write(listings []*models.Listing) error {
	return d.appendAll(len(listings), func(i int) any { return listings[i] })
}

// WriteEvents appends change events.
func (d *Dataset) WriteEvents(events []models.ChangeEvent) error {
	return d.appendAll(len(events), func(i int) any { return events[i] })
}

func (d *Dataset) appendAll(n int, item func(i int) any) error {
	if n == 0 {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	w := bufio.NewWriter(d.file)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i := 0; i < n; i++ {
		if err := enc.Encode(item(i)); err != nil {
			return fmt.Errorf("dataset: encode record %d: %w", i, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("dataset: flush: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (d *Dataset) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.file.Close()
}
