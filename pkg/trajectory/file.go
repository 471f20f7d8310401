package trajectory

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

// FileStore keeps a recording in a CSV file.
type FileStore struct {
	path   string
	header []string

	file   *os.File
	writer *csv.Writer
	reader *csv.Reader
}

// FileOption configures a FileStore.
type FileOption func(*FileStore)

// WithHeader makes the store write columns as a header line when opened for
// write, and skip the first line when opened for read. The header is never
// counted as a row.
func WithHeader(columns ...string) FileOption {
	return func(s *FileStore) {
		s.header = columns
	}
}

// NewFileStore returns a store for the CSV file at path. Nothing is opened
// until OpenForWrite or OpenForRead.
func NewFileStore(path string, opts ...FileOption) *FileStore {
	s := &FileStore{path: path}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the file the store reads and writes.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) OpenForWrite() error {
	if err := s.Close(); err != nil {
		return err
	}

	f, err := os.Create(s.path)
	if err != nil {
		return &ResourceError{Op: "create", Path: s.path, Err: err}
	}
	s.file = f
	s.writer = csv.NewWriter(f)

	if len(s.header) > 0 {
		if err := s.writeRecord(s.header); err != nil {
			return err
		}
	}
	return nil
}

func (s *FileStore) Append(row Row) error {
	if s.writer == nil {
		return ErrNotOpen
	}
	return s.writeRecord(FormatRow(row))
}

// writeRecord flushes after every record so an interrupted recording keeps
// all rows written so far.
func (s *FileStore) writeRecord(rec []string) error {
	return writeRow(s.writer, rec, s.path)
}

// OpenForRead returns an error wrapping ErrNotFound if the file does not exist.
func (s *FileStore) OpenForRead() (int, error) {
	if err := s.Close(); err != nil {
		return 0, err
	}

	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, fmt.Errorf("%s: %w", s.path, ErrNotFound)
	}
	if err != nil {
		return 0, &ResourceError{Op: "open", Path: s.path, Err: err}
	}
	s.file = f

	n, err := countRecords(newRowReader(f))
	if err != nil {
		s.Close()
		return 0, classifyCountError(err, s.path)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		s.Close()
		return 0, &ResourceError{Op: "rewind", Path: s.path, Err: err}
	}
	s.reader = newRowReader(f)

	if len(s.header) > 0 && n > 0 {
		if _, err := s.reader.Read(); err != nil {
			s.Close()
			return 0, classifyCountError(err, s.path)
		}
		n--
	}
	return n, nil
}

func (s *FileStore) NextRow() (Row, error) {
	if s.reader == nil {
		return nil, ErrNotOpen
	}
	return readRow(s.reader, s.path)
}

func (s *FileStore) Close() error {
	if s.file == nil {
		return nil
	}
	if s.writer != nil {
		s.writer.Flush()
	}
	err := s.file.Close()
	s.file = nil
	s.writer = nil
	s.reader = nil
	if err != nil {
		return &ResourceError{Op: "close", Path: s.path, Err: err}
	}
	return nil
}
