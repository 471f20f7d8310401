package trajectory

import (
	"bytes"
	"encoding/csv"
)

// MemoryStore keeps a recording in an in-process buffer, in the same CSV
// encoding a FileStore writes.
type MemoryStore struct {
	buf     bytes.Buffer
	written bool
	writer  *csv.Writer
	reader  *csv.Reader
}

// NewMemoryStore returns an empty, never-written store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) OpenForWrite() error {
	s.reader = nil
	s.buf.Reset()
	s.writer = csv.NewWriter(&s.buf)
	s.written = true
	return nil
}

func (s *MemoryStore) Append(row Row) error {
	if s.writer == nil {
		return ErrNotOpen
	}
	return writeRow(s.writer, FormatRow(row), "memory")
}

// OpenForRead returns ErrNotFound if OpenForWrite was never called.
func (s *MemoryStore) OpenForRead() (int, error) {
	if !s.written {
		return 0, ErrNotFound
	}
	s.writer = nil

	n, err := countRecords(newRowReader(bytes.NewReader(s.buf.Bytes())))
	if err != nil {
		return 0, classifyCountError(err, "memory")
	}
	s.reader = newRowReader(bytes.NewReader(s.buf.Bytes()))
	return n, nil
}

func (s *MemoryStore) NextRow() (Row, error) {
	if s.reader == nil {
		return nil, ErrNotOpen
	}
	return readRow(s.reader, "memory")
}

// Close drops the read and write cursors. The buffered rows are kept so the
// recording can be opened for read again.
func (s *MemoryStore) Close() error {
	if s.writer != nil {
		s.writer.Flush()
	}
	s.writer = nil
	s.reader = nil
	return nil
}
