// Package store persists recordings in a local SQLite database.
package store

import (
	"time"

	"github.com/google/uuid"
)

// Status is the transcription state of a recording.
type Status string

const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Recording is the persisted unit of captured audio plus its transcription
// state. Audio is nil once the retention sweep has reclaimed it.
type Recording struct {
	ID           string
	CreatedAt    time.Time
	Duration     float64
	MimeType     string
	Audio        []byte
	Status       Status
	Text         string
	ErrorMessage string
	Title        string
}

// NewRecording wraps a finished capture into a pending recording with a
// fresh id.
func NewRecording(audio []byte, mimeType string, durationSeconds float64, createdAt time.Time) Recording {
	return Recording{
		ID:        uuid.NewString(),
		CreatedAt: createdAt,
		Duration:  durationSeconds,
		MimeType:  mimeType,
		Audio:     audio,
		Status:    StatusPending,
	}
}
