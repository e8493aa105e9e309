package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("recording not found")

const schema = `
	CREATE TABLE IF NOT EXISTS recordings (
		id TEXT PRIMARY KEY,
		createdAt REAL NOT NULL,
		duration REAL NOT NULL DEFAULT 0,
		mimeType TEXT NOT NULL DEFAULT '',
		audio BLOB,
		status TEXT NOT NULL DEFAULT 'pending',
		text TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT ''
	);
`

// Store provides CRUD access to the recordings database.
type Store struct {
	db *sql.DB
}

// Open opens (and creates if necessary) the database at path with WAL
// journaling.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory %s: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// OpenMemory opens an in-memory database, used by tests.
func OpenMemory() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put upserts a recording keyed by id.
func (s *Store) Put(rec Recording) error {
	_, err := s.db.Exec(`
		INSERT INTO recordings (id, createdAt, duration, mimeType, audio, status, text, error, title)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			createdAt = excluded.createdAt,
			duration = excluded.duration,
			mimeType = excluded.mimeType,
			audio = excluded.audio,
			status = excluded.status,
			text = excluded.text,
			error = excluded.error,
			title = excluded.title
	`, rec.ID, timeToUnix(rec.CreatedAt), rec.Duration, rec.MimeType, rec.Audio,
		string(rec.Status), rec.Text, rec.ErrorMessage, rec.Title)
	if err != nil {
		return fmt.Errorf("put recording: %w", err)
	}
	return nil
}

// Get returns the recording with the given id or ErrNotFound.
func (s *Store) Get(id string) (Recording, error) {
	row := s.db.QueryRow(`
		SELECT id, createdAt, duration, mimeType, audio, audio IS NULL, status, text, error, title
		FROM recordings
		WHERE id = ?
	`, id)

	rec, err := scanRecording(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Recording{}, ErrNotFound
		}
		return Recording{}, fmt.Errorf("get recording: %w", err)
	}
	return rec, nil
}

// GetAll returns all recordings, newest first.
func (s *Store) GetAll() ([]Recording, error) {
	rows, err := s.db.Query(`
		SELECT id, createdAt, duration, mimeType, audio, audio IS NULL, status, text, error, title
		FROM recordings
		ORDER BY createdAt DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query recordings: %w", err)
	}
	defer rows.Close()

	var recs []Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recording: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Delete removes a recording. Deleting an absent id is not an error.
func (s *Store) Delete(id string) error {
	if _, err := s.db.Exec(`DELETE FROM recordings WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete recording: %w", err)
	}
	return nil
}

// Clear removes all recordings.
func (s *Store) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM recordings`); err != nil {
		return fmt.Errorf("clear recordings: %w", err)
	}
	return nil
}

// SweepExpiredAudio nulls out the audio blob of recordings created before
// cutoff, preserving transcript text and status. Returns the number of
// recordings reclaimed.
func (s *Store) SweepExpiredAudio(cutoff time.Time) (int, error) {
	res, err := s.db.Exec(`
		UPDATE recordings
		SET audio = NULL
		WHERE createdAt < ? AND audio IS NOT NULL
	`, timeToUnix(cutoff))
	if err != nil {
		return 0, fmt.Errorf("sweep expired audio: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep expired audio: %w", err)
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecording(row rowScanner) (Recording, error) {
	var (
		rec       Recording
		createdAt float64
		audioNull bool
		status    string
	)
	if err := row.Scan(&rec.ID, &createdAt, &rec.Duration, &rec.MimeType,
		&rec.Audio, &audioNull, &status, &rec.Text, &rec.ErrorMessage, &rec.Title); err != nil {
		return Recording{}, err
	}
	// A zero-byte capture is stored as an empty blob, not NULL; the scan
	// must keep that distinct from audio reclaimed by the sweep.
	if !audioNull && rec.Audio == nil {
		rec.Audio = []byte{}
	}
	rec.CreatedAt = timeFromUnix(createdAt)
	rec.Status = Status(status)
	return rec, nil
}

func timeToUnix(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func timeFromUnix(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
