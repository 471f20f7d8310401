package trajectory

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

func newRowReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // 6-field and 13-field rows may share a file
	cr.LazyQuotes = true
	cr.ReuseRecord = true
	return cr
}

// writeRow writes rec and flushes, so a failure surfaces on the row that
// caused it. path names the storage in errors.
func writeRow(w *csv.Writer, rec []string, path string) error {
	if err := w.Write(rec); err != nil {
		return &ResourceError{Op: "append", Path: path, Err: err}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return &ResourceError{Op: "append", Path: path, Err: err}
	}
	return nil
}

// countRecords consumes r and returns the number of records in it.
func countRecords(r *csv.Reader) (int, error) {
	n := 0
	for {
		_, err := r.Read()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}

// readRow reads and parses the next record. path names the storage in errors.
func readRow(r *csv.Reader, path string) (Row, error) {
	rec, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEndOfData
	}
	var parseErr *csv.ParseError
	if errors.As(err, &parseErr) {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRow, parseErr)
	}
	if err != nil {
		return nil, &ResourceError{Op: "read", Path: path, Err: err}
	}
	return ParseRow(rec)
}

// classifyCountError maps an error from countRecords onto the package errors.
func classifyCountError(err error, path string) error {
	var parseErr *csv.ParseError
	if errors.As(err, &parseErr) {
		return fmt.Errorf("%w: %v", ErrMalformedRow, parseErr)
	}
	return &ResourceError{Op: "scan", Path: path, Err: err}
}
