package trajectory

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backends returns a fresh, never-written store of each kind.
func backends(t *testing.T) map[string]func() Store {
	t.Helper()
	db, err := OpenDatabase(filepath.Join(t.TempDir(), "recordings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	n := 0
	return map[string]func() Store{
		"memory": func() Store { return NewMemoryStore() },
		"file": func() Store {
			return NewFileStore(filepath.Join(t.TempDir(), "episode.csv"))
		},
		"file+header": func() Store {
			return NewFileStore(filepath.Join(t.TempDir(), "episode.csv"), WithHeader(FrameColumns()...))
		},
		"sqlite": func() Store {
			n++
			return NewSQLiteStore(db, fmt.Sprintf("episode_%d", n))
		},
	}
}

func writeRows(t *testing.T, s Store, rows ...Row) {
	t.Helper()
	require.NoError(t, s.OpenForWrite())
	for _, r := range rows {
		require.NoError(t, s.Append(r))
	}
	require.NoError(t, s.Close())
}

func readAll(t *testing.T, s Store) []Row {
	t.Helper()
	var rows []Row
	for {
		row, err := s.NextRow()
		if errors.Is(err, ErrEndOfData) {
			return rows
		}
		require.NoError(t, err)
		rows = append(rows, append(Row(nil), row...))
	}
}

func TestStore_RoundTrip(t *testing.T) {
	rows := []Row{
		{1, 2, 3, 4, 5, 6},
		{0.1, -2.25, 3e-9, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13},
		{-100, 100, 0, 0.5, 12.125, 99.99},
	}

	for name, newStore := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore()
			writeRows(t, s, rows...)

			n, err := s.OpenForRead()
			require.NoError(t, err)
			assert.Equal(t, len(rows), n)
			assert.Equal(t, rows, readAll(t, s))

			// past the end keeps reporting end of data
			_, err = s.NextRow()
			assert.ErrorIs(t, err, ErrEndOfData)
			require.NoError(t, s.Close())
		})
	}
}

func TestStore_ReopenRewinds(t *testing.T) {
	for name, newStore := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore()
			writeRows(t, s, Row{1, 1, 1, 1, 1, 1}, Row{2, 2, 2, 2, 2, 2})

			_, err := s.OpenForRead()
			require.NoError(t, err)
			first, err := s.NextRow()
			require.NoError(t, err)
			assert.Equal(t, 1.0, first[0])

			n, err := s.OpenForRead()
			require.NoError(t, err)
			assert.Equal(t, 2, n)
			assert.Len(t, readAll(t, s), 2)
			require.NoError(t, s.Close())
		})
	}
}

func TestStore_OpenForWriteTruncates(t *testing.T) {
	for name, newStore := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore()
			writeRows(t, s, Row{1, 2, 3, 4, 5, 6}, Row{1, 2, 3, 4, 5, 6})
			writeRows(t, s)

			n, err := s.OpenForRead()
			require.NoError(t, err)
			assert.Zero(t, n)
			_, err = s.NextRow()
			assert.ErrorIs(t, err, ErrEndOfData)
			require.NoError(t, s.Close())
		})
	}
}

func TestStore_NeverWrittenIsNotFound(t *testing.T) {
	for name, newStore := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore()
			_, err := s.OpenForRead()
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_CloseIsIdempotent(t *testing.T) {
	for name, newStore := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore()
			// before any open
			assert.NoError(t, s.Close())
			assert.NoError(t, s.Close())

			writeRows(t, s, Row{1, 2, 3, 4, 5, 6})
			_, err := s.OpenForRead()
			require.NoError(t, err)
			assert.NoError(t, s.Close())
			assert.NoError(t, s.Close())

			_, err = s.NextRow()
			assert.ErrorIs(t, err, ErrNotOpen)
		})
	}
}

func TestStore_AppendRequiresOpenForWrite(t *testing.T) {
	for name, newStore := range backends(t) {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, newStore().Append(Row{1}), ErrNotOpen)
		})
	}
}

func TestParseRow(t *testing.T) {
	row, err := ParseRow([]string{"1", " 2.5", "-3e2 ", "0"})
	require.NoError(t, err)
	assert.Equal(t, Row{1, 2.5, -300, 0}, row)

	_, err = ParseRow([]string{"a", "b", "c", "d", "e", "f"})
	assert.ErrorIs(t, err, ErrMalformedRow)

	_, err = ParseRow([]string{"1", "2", ""})
	assert.ErrorIs(t, err, ErrMalformedRow)

	for _, bad := range []string{"NaN", "nan", "Inf", "-Inf", "+inf", "1e999"} {
		_, err = ParseRow([]string{bad, "2", "3", "4", "5", "6"})
		assert.ErrorIs(t, err, ErrMalformedRow, bad)
	}
}

func TestFormatRow(t *testing.T) {
	assert.Equal(t, []string{"1", "-0.25", "1e-09", "33.333333333333336"},
		FormatRow(Row{1, -0.25, 1e-9, 100.0 / 3}))
}

func TestResourceError(t *testing.T) {
	cause := errors.New("disk on fire")
	var err error = &ResourceError{Op: "open", Path: "x.csv", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.EqualError(t, err, "open x.csv: disk on fire")

	var re *ResourceError
	assert.True(t, errors.As(err, &re))
}
