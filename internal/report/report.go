// Package report writes recommendation records as jsonl files, one line per
// resource, one file per (customer, cloud, tenant, region).
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rightsizer/rightsizer/pkg/recommend"
)

// Key identifies one output file.
type Key struct {
	Customer string
	Cloud    string
	Tenant   string
	Region   string
}

func (k Key) filename() string {
	parts := []string{k.Customer, k.Cloud, k.Tenant, k.Region}
	for i, p := range parts {
		if p == "" {
			parts[i] = "default"
		}
	}
	return strings.Join(parts, "_") + ".jsonl"
}

// Writer appends reports to jsonl files under a root directory. File handles
// stay open for the lifetime of the writer; call Close when the scan ends.
type Writer struct {
	dir string

	mu    sync.Mutex
	files map[Key]*os.File
}

// NewWriter creates the output directory if needed.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating reports directory: %w", err)
	}
	return &Writer{dir: dir, files: map[Key]*os.File{}}, nil
}

// Append writes one report as a single jsonl line to the file for key.
func (w *Writer) Append(key Key, r recommend.Report) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, ok := w.files[key]
	if !ok {
		var err error
		f, err = os.OpenFile(filepath.Join(w.dir, key.filename()),
			os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("opening report file: %w", err)
		}
		w.files[key] = f
	}

	line, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	line = append(line, '\n')
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("writing report line: %w", err)
	}
	return nil
}

// Close closes all open report files.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var firstErr error
	for key, f := range w.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(w.files, key)
	}
	return firstErr
}
