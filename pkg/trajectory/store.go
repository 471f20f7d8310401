// Package trajectory stores recorded joint trajectories as sequential rows of
// numbers and plays them back in order.
//
// A Store is a rewindable record/playback channel. It is opened either for
// write, which truncates it and positions for appending, or for read, which
// counts the rows once and rewinds so that NextRow returns them in order.
// Rows are persisted as comma-separated numeric fields, one row per line.
//
// Stores are not safe for concurrent use.
package trajectory

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrNotFound is returned by OpenForRead when the recording was never written.
	ErrNotFound = errors.New("recording not found")
	// ErrMalformedRow is returned when a row has a non-numeric field or too
	// few fields to form a joint vector.
	ErrMalformedRow = errors.New("malformed row")
	// ErrEndOfData is returned by NextRow once every row has been read.
	ErrEndOfData = errors.New("end of data")
	// ErrNotOpen is returned when reading or appending without a matching open.
	ErrNotOpen = errors.New("recording not open")
)

// ResourceError reports an I/O failure of the underlying storage.
type ResourceError struct {
	Op   string
	Path string
	Err  error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// Row is one timestep of a recording.
type Row []float64

// Store is a sequential, rewindable row channel.
type Store interface {
	// OpenForWrite discards any previous content and positions for Append.
	OpenForWrite() error
	// Append writes one row after the last appended one.
	Append(row Row) error
	// OpenForRead rewinds, counts the rows and rewinds again.
	OpenForRead() (int, error)
	// NextRow returns the next unread row, or ErrEndOfData.
	NextRow() (Row, error)
	// Close releases the underlying resource. It may be called any number of times.
	Close() error
}

// ParseRow parses textual fields into a Row. A field that is not a finite
// number yields an error wrapping ErrMalformedRow.
func ParseRow(fields []string) (Row, error) {
	row := make(Row, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: field %d %q is not a number", ErrMalformedRow, i, f)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: field %d %q is not finite", ErrMalformedRow, i, f)
		}
		row[i] = v
	}
	return row, nil
}

// FormatRow renders a Row with the shortest representation that parses back
// to the same values.
func FormatRow(row Row) []string {
	fields := make([]string, len(row))
	for i, v := range row {
		fields[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return fields
}
