package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// ResultWriter streams records to a JSONL file, one record per line.
// It uses buffered I/O and is safe for concurrent use.
type ResultWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	path   string
}

// NewResultWriter opens path for writing, creating parent directories. If
// appendMode is true, records are added after any existing ones.
func NewResultWriter(path string, appendMode bool) (*ResultWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create result directory: %w", err)
		}
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if appendMode {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open result file: %w", err)
	}

	return &ResultWriter{
		file:   file,
		writer: bufio.NewWriterSize(file, 64*1024),
		path:   path,
	}, nil
}

// Write appends a record. It is buffered until Flush or Close.
func (rw *ResultWriter) Write(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	rw.mu.Lock()
	defer rw.mu.Unlock()

	if _, err := rw.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := rw.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	return nil
}

// Flush writes buffered records and syncs the file to disk.
func (rw *ResultWriter) Flush() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if err := rw.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush result writer: %w", err)
	}
	if err := rw.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync result file: %w", err)
	}
	return nil
}

// Close flushes buffered records and closes the file.
func (rw *ResultWriter) Close() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if err := rw.writer.Flush(); err != nil {
		rw.file.Close()
		return fmt.Errorf("failed to flush on close: %w", err)
	}
	if err := rw.file.Close(); err != nil {
		return fmt.Errorf("failed to close result file: %w", err)
	}
	return nil
}

// Path returns the filesystem path of the result file.
func (rw *ResultWriter) Path() string {
	return rw.path
}

// ResultReader reads records from a JSONL file.
type ResultReader struct {
	file    *os.File
	scanner *bufio.Scanner
	line    int
}

// NewResultReader opens the result file at path. A missing file is
// reported as ErrNotFound.
func NewResultReader(path string) (*ResultReader, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &NotFoundError{ID: path}
		}
		return nil, fmt.Errorf("failed to open result file: %w", err)
	}

	scanner := bufio.NewScanner(file)
	// feature vectors make for long lines
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	return &ResultReader{file: file, scanner: scanner}, nil
}

// Read returns the next record, or io.EOF when none remain. Blank lines
// are skipped.
func (rr *ResultReader) Read() (*Record, error) {
	for rr.scanner.Scan() {
		rr.line++
		line := rr.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("line %d: failed to unmarshal record: %w", rr.line, err)
		}
		return &rec, nil
	}
	if err := rr.scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan result line: %w", err)
	}
	return nil, io.EOF
}

// ReadAll reads every remaining record.
func (rr *ResultReader) ReadAll() ([]Record, error) {
	var records []Record
	for {
		rec, err := rr.Read()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
}

// Close closes the result reader.
func (rr *ResultReader) Close() error {
	if err := rr.file.Close(); err != nil {
		return fmt.Errorf("failed to close result file: %w", err)
	}
	return nil
}

// ReadResults loads every record of the file at path. A missing file yields
// no records and no error, so callers can resume from a file that may not
// exist yet.
func ReadResults(path string) ([]Record, error) {
	rr, err := NewResultReader(path)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	defer rr.Close()
	return rr.ReadAll()
}
