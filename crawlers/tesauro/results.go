package tesauro

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/LexiconIndonesia/tesauro-crawler/common/crawler"
)

// ResultsFile is the append-only record list of a run, mirrored to a JSON
// array file that is rewritten in full after every append.
type ResultsFile struct {
	path    string
	mu      sync.Mutex
	records []Record
}

// NewResultsFile starts an empty record list and writes "[]" to path so the
// file is valid from the first moment of the run.
func NewResultsFile(path string) (*ResultsFile, error) {
	f := &ResultsFile{path: path, records: []Record{}}
	if err := f.flush(); err != nil {
		return nil, err
	}
	return f, nil
}

// Append adds rec and rewrites the output file.
func (f *ResultsFile) Append(rec Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.records = append(f.records, rec)
	return f.flush()
}

// Len returns the number of records appended so far.
func (f *ResultsFile) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

func (f *ResultsFile) Path() string {
	return f.path
}

func (f *ResultsFile) flush() error {
	data, err := encodeRecords(f.records)
	if err != nil {
		return err
	}
	if err := crawler.WriteFileAtomic(f.path, data); err != nil {
		return fmt.Errorf("writing %s: %w", f.path, err)
	}
	return nil
}

// encodeRecords renders records as a two-space indented JSON array with
// non-ASCII and HTML characters kept literal.
func encodeRecords(records []Record) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return nil, fmt.Errorf("encoding records: %w", err)
	}
	return buf.Bytes(), nil
}

// ReadResults loads a results file. A missing file is an empty list.
func ReadResults(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Record{}, nil
		}
		return nil, err
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}
