// Package memo coordinates the recording/transcription lifecycle: capture
// toggling, the durability-first save, cancellation, retry, auto-capture and
// background recovery.
package memo

import (
	"context"
	"time"

	"github.com/fmueller/voicebox/internal/capture"
	"github.com/fmueller/voicebox/internal/prefs"
	"github.com/fmueller/voicebox/internal/store"
)

// SessionState is the cross-cutting capture/transcription state shown to the
// presentation layer.
type SessionState string

const (
	SessionIdle                  SessionState = "idle"
	SessionRecording             SessionState = "recording"
	SessionAwaitingTranscription SessionState = "awaiting_transcription"
)

// Presenter receives lifecycle notifications. Implementations render state;
// they never mutate it except through the Orchestrator operations.
type Presenter interface {
	SessionStateChanged(state SessionState)
	RecordingUpdated(rec store.Recording)
	RecordingsChanged()
	Notice(message string)
}

type nopPresenter struct{}

func (nopPresenter) SessionStateChanged(SessionState) {}
func (nopPresenter) RecordingUpdated(store.Recording) {}
func (nopPresenter) RecordingsChanged()               {}
func (nopPresenter) Notice(string)                    {}

// RecordStore is the persistence surface the orchestrator needs.
type RecordStore interface {
	Put(rec store.Recording) error
	Get(id string) (store.Recording, error)
	GetAll() ([]store.Recording, error)
	Delete(id string) error
	Clear() error
	SweepExpiredAudio(cutoff time.Time) (int, error)
}

// Recorder is the single hardware capture session owner.
type Recorder interface {
	Start(ctx context.Context) error
	Stop() (*capture.Result, error)
	Discard()
	Recording() bool
	Elapsed() time.Duration
}

// Transcriber resolves a stored recording to a terminal status and derives
// optional titles.
type Transcriber interface {
	Transcribe(ctx context.Context, id string) error
	GenerateTitle(ctx context.Context, id string)
}

// Settings supplies preferences at decision time.
type Settings interface {
	Load() (prefs.Preferences, error)
}

// Config tunes the lifecycle windows.
type Config struct {
	// GraceWindow is how long after an automatic capture start any user
	// interaction other than the capture control silently discards it.
	GraceWindow time.Duration
	// BackgroundExpiry is the background gap after which a live capture
	// is presumed corrupted and discarded on return.
	BackgroundExpiry time.Duration
	// RetentionAge is how old a recording must be before the sweep
	// reclaims its audio.
	RetentionAge time.Duration
}

func (c Config) withDefaults() Config {
	if c.GraceWindow <= 0 {
		c.GraceWindow = 3 * time.Second
	}
	if c.BackgroundExpiry <= 0 {
		c.BackgroundExpiry = 30 * time.Second
	}
	if c.RetentionAge <= 0 {
		c.RetentionAge = 30 * 24 * time.Hour
	}
	return c
}
