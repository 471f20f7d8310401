package trajectory

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS recordings (
	name       TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS recording_rows (
	recording TEXT NOT NULL REFERENCES recordings(name) ON DELETE CASCADE,
	seq       INTEGER NOT NULL,
	fields    TEXT NOT NULL,
	PRIMARY KEY (recording, seq)
);`

// OpenDatabase opens (creating if needed) a SQLite recordings database.
func OpenDatabase(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, &ResourceError{Op: "open", Path: path, Err: err}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, &ResourceError{Op: "migrate", Path: path, Err: err}
	}
	return db, nil
}

// RecordingNames lists the recordings in db, oldest first.
func RecordingNames(db *sql.DB) ([]string, error) {
	rows, err := db.Query(`SELECT name FROM recordings ORDER BY created_at, name`)
	if err != nil {
		return nil, &ResourceError{Op: "list", Path: "recordings", Err: err}
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, &ResourceError{Op: "list", Path: "recordings", Err: err}
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// SQLiteStore keeps one named recording in a shared SQLite database. The
// database handle is owned by the caller.
type SQLiteStore struct {
	db   *sql.DB
	name string

	insert *sql.Stmt
	seq    int
	rows   *sql.Rows
}

// NewSQLiteStore returns a store for recording name in db.
func NewSQLiteStore(db *sql.DB, name string) *SQLiteStore {
	return &SQLiteStore{db: db, name: name}
}

func (s *SQLiteStore) OpenForWrite() error {
	if err := s.Close(); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return s.resourceErr("truncate", err)
	}
	_, err = tx.Exec(`DELETE FROM recording_rows WHERE recording = ?`, s.name)
	if err == nil {
		_, err = tx.Exec(`INSERT INTO recordings (name, created_at) VALUES (?, ?)
			ON CONFLICT(name) DO UPDATE SET created_at = excluded.created_at`,
			s.name, time.Now().UnixNano())
	}
	if err != nil {
		return s.resourceErr("truncate", multierr.Append(err, tx.Rollback()))
	}
	if err := tx.Commit(); err != nil {
		return s.resourceErr("truncate", err)
	}

	insert, err := s.db.Prepare(`INSERT INTO recording_rows (recording, seq, fields) VALUES (?, ?, ?)`)
	if err != nil {
		return s.resourceErr("prepare", err)
	}
	s.insert = insert
	s.seq = 0
	return nil
}

func (s *SQLiteStore) Append(row Row) error {
	if s.insert == nil {
		return ErrNotOpen
	}
	if _, err := s.insert.Exec(s.name, s.seq, strings.Join(FormatRow(row), ",")); err != nil {
		return s.resourceErr("append", err)
	}
	s.seq++
	return nil
}

// OpenForRead returns an error wrapping ErrNotFound if the recording was
// never opened for write.
func (s *SQLiteStore) OpenForRead() (int, error) {
	if err := s.Close(); err != nil {
		return 0, err
	}

	var n int
	err := s.db.QueryRow(`SELECT COUNT(r.seq) FROM recordings AS rec
		LEFT JOIN recording_rows AS r ON r.recording = rec.name
		WHERE rec.name = ? GROUP BY rec.name`, s.name).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%s: %w", s.name, ErrNotFound)
	}
	if err != nil {
		return 0, s.resourceErr("count", err)
	}

	rows, err := s.db.Query(`SELECT fields FROM recording_rows WHERE recording = ? ORDER BY seq`, s.name)
	if err != nil {
		return 0, s.resourceErr("query", err)
	}
	s.rows = rows
	return n, nil
}

func (s *SQLiteStore) NextRow() (Row, error) {
	if s.rows == nil {
		return nil, ErrNotOpen
	}
	if !s.rows.Next() {
		if err := s.rows.Err(); err != nil {
			return nil, s.resourceErr("read", err)
		}
		return nil, ErrEndOfData
	}
	var fields string
	if err := s.rows.Scan(&fields); err != nil {
		return nil, s.resourceErr("read", err)
	}
	return ParseRow(strings.Split(fields, ","))
}

// Close releases the read cursor and the prepared insert. The database
// handle stays open.
func (s *SQLiteStore) Close() error {
	var err error
	if s.rows != nil {
		err = multierr.Append(err, s.rows.Close())
		s.rows = nil
	}
	if s.insert != nil {
		err = multierr.Append(err, s.insert.Close())
		s.insert = nil
	}
	if err != nil {
		return s.resourceErr("close", err)
	}
	return nil
}

func (s *SQLiteStore) resourceErr(op string, err error) error {
	return &ResourceError{Op: op, Path: "sqlite:" + s.name, Err: err}
}
