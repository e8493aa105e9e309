package memo

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fmueller/voicebox/internal/capture"
	"github.com/fmueller/voicebox/internal/clipboard"
	"github.com/fmueller/voicebox/internal/handoff"
	"github.com/fmueller/voicebox/internal/logging"
	"github.com/fmueller/voicebox/internal/store"
	"go.uber.org/zap"
)

// Orchestrator ties the capture session, record store and transcription
// client together. All lifecycle state lives here; there are no ambient
// globals.
type Orchestrator struct {
	store       RecordStore
	settings    Settings
	recorder    Recorder
	transcriber Transcriber
	presenter   Presenter
	logger      *zap.Logger
	cfg         Config

	now      func() time.Time
	copyText func(ctx context.Context, text string) error
	sendTo   func(ctx context.Context, target, text string) error

	mu              sync.Mutex
	activeID        string
	cancelRequested bool
	autoStartedAt   time.Time
	backgroundAt    time.Time
	inflight        map[string]context.CancelFunc

	background sync.WaitGroup
}

func NewOrchestrator(
	recordStore RecordStore,
	settings Settings,
	recorder Recorder,
	transcriber Transcriber,
	presenter Presenter,
	logger *zap.Logger,
	cfg Config,
) *Orchestrator {
	if presenter == nil {
		presenter = nopPresenter{}
	}
	return &Orchestrator{
		store:       recordStore,
		settings:    settings,
		recorder:    recorder,
		transcriber: transcriber,
		presenter:   presenter,
		logger:      logging.OrNop(logger),
		cfg:         cfg.withDefaults(),
		now:         time.Now,
		copyText:    clipboard.CopyText,
		sendTo:      handoff.Send,
		inflight:    make(map[string]context.CancelFunc),
	}
}

// ToggleCapture starts a session while idle and stops (and saves and
// transcribes) while recording. It returns the id of the recording a stop
// produced, or "" when a session was started.
func (o *Orchestrator) ToggleCapture(ctx context.Context) (string, error) {
	if o.recorder.Recording() {
		// Hitting the capture control is never an accidental trigger.
		o.clearAutoStart()
		return o.stopAndTranscribe(ctx)
	}
	return "", o.startCapture(ctx, false)
}

// Cancel aborts the current capture or the in-flight transcription of the
// active recording. A cancelled capture is still saved; a cancelled
// transcription reverts to pending.
func (o *Orchestrator) Cancel(ctx context.Context) error {
	if o.recorder.Recording() {
		o.mu.Lock()
		o.cancelRequested = true
		o.autoStartedAt = time.Time{}
		o.mu.Unlock()
		_, err := o.stopAndTranscribe(ctx)
		return err
	}

	o.mu.Lock()
	cancel := o.inflight[o.activeID]
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// Retry re-invokes transcription for an existing recording regardless of its
// current status, clearing the error message first.
func (o *Orchestrator) Retry(ctx context.Context, id string) error {
	o.mu.Lock()
	_, busy := o.inflight[id]
	o.mu.Unlock()
	if busy {
		return nil
	}

	rec, err := o.store.Get(id)
	if err != nil {
		return err
	}

	rec.Status = store.StatusPending
	rec.ErrorMessage = ""
	if err := o.store.Put(rec); err != nil {
		return err
	}

	o.mu.Lock()
	o.activeID = id
	o.mu.Unlock()
	o.presenter.RecordingUpdated(rec)

	return o.transcribe(ctx, id)
}

// Open returns a recording for inspection. A live capture session is stopped
// and saved first, never dropped; its transcription continues in the
// background. Opening counts as a user interaction for the grace window.
func (o *Orchestrator) Open(ctx context.Context, id string) (store.Recording, error) {
	o.NoteInteraction()

	if o.recorder.Recording() {
		savedID, transcribeNeeded, err := o.stopAndSave()
		if err != nil {
			return store.Recording{}, err
		}
		if transcribeNeeded {
			o.background.Add(1)
			go func() {
				defer o.background.Done()
				if err := o.transcribe(context.Background(), savedID); err != nil {
					o.logger.Warn("background transcription failed", zap.String("id", savedID), zap.Error(err))
				}
			}()
		}
	}

	rec, err := o.store.Get(id)
	if err != nil {
		return store.Recording{}, err
	}

	o.mu.Lock()
	o.activeID = id
	o.mu.Unlock()
	o.presenter.RecordingUpdated(rec)
	return rec, nil
}

// Delete removes one recording, cancelling its in-flight transcription if
// any.
func (o *Orchestrator) Delete(id string) error {
	// The row goes first: an in-flight transcription that settles after
	// the cancel sees the recording gone and skips its final persist.
	if err := o.store.Delete(id); err != nil {
		return err
	}

	o.mu.Lock()
	if cancel := o.inflight[id]; cancel != nil {
		cancel()
	}
	o.mu.Unlock()

	o.mu.Lock()
	if o.activeID == id {
		o.activeID = ""
	}
	o.mu.Unlock()

	o.presenter.RecordingsChanged()
	o.presenter.Notice("Recording deleted")
	return nil
}

// Clear removes every recording.
func (o *Orchestrator) Clear() error {
	if err := o.store.Clear(); err != nil {
		return err
	}

	o.mu.Lock()
	for _, cancel := range o.inflight {
		cancel()
	}
	o.mu.Unlock()

	o.mu.Lock()
	o.activeID = ""
	o.mu.Unlock()

	o.presenter.RecordingsChanged()
	o.presenter.Notice("All recordings deleted")
	return nil
}

// Recordings returns the library, newest first.
func (o *Orchestrator) Recordings() ([]store.Recording, error) {
	return o.store.GetAll()
}

// HandleActivate runs when the app becomes active: with the auto-capture
// preference on and no live session, a fresh session is started with the
// grace window armed.
func (o *Orchestrator) HandleActivate(ctx context.Context) error {
	p, err := o.settings.Load()
	if err != nil {
		return err
	}
	if !p.AutoCapture || o.recorder.Recording() {
		return nil
	}
	return o.startCapture(ctx, true)
}

// HandleBackground records when a live capture went to the background.
func (o *Orchestrator) HandleBackground() {
	if !o.recorder.Recording() {
		return
	}
	o.mu.Lock()
	o.backgroundAt = o.now()
	o.mu.Unlock()
}

// HandleForeground recovers from background suspension: a capture that sat
// in the background past the expiry window is presumed corrupted and
// discarded, then auto-capture (if enabled) starts a replacement session.
// Background expiry outranks the grace window; the grace timer is cleared
// before the discard so only the expiry path runs.
func (o *Orchestrator) HandleForeground(ctx context.Context) error {
	o.mu.Lock()
	backgroundAt := o.backgroundAt
	o.backgroundAt = time.Time{}
	o.mu.Unlock()

	if !backgroundAt.IsZero() && o.recorder.Recording() &&
		o.now().Sub(backgroundAt) > o.cfg.BackgroundExpiry {
		o.clearAutoStart()
		o.recorder.Discard()
		o.presenter.SessionStateChanged(SessionIdle)
		o.logger.Info("discarded capture suspended in background",
			zap.Duration("gap", o.now().Sub(backgroundAt)))
	}

	return o.HandleActivate(ctx)
}

// NoteInteraction reports a user action other than the capture control.
// Inside the grace window it silently discards an auto-started session and
// returns true.
func (o *Orchestrator) NoteInteraction() bool {
	o.mu.Lock()
	startedAt := o.autoStartedAt
	o.autoStartedAt = time.Time{}
	o.mu.Unlock()

	if startedAt.IsZero() || !o.recorder.Recording() {
		return false
	}
	if o.now().Sub(startedAt) > o.cfg.GraceWindow {
		return false
	}

	o.recorder.Discard()
	o.presenter.SessionStateChanged(SessionIdle)
	o.logger.Debug("auto-started capture discarded inside grace window")
	return true
}

// SweepRetention reclaims audio blobs older than the retention age.
func (o *Orchestrator) SweepRetention() (int, error) {
	swept, err := o.store.SweepExpiredAudio(o.now().Add(-o.cfg.RetentionAge))
	if err != nil {
		return 0, err
	}
	if swept > 0 {
		o.logger.Info("retention sweep reclaimed audio", zap.Int("recordings", swept))
		o.presenter.RecordingsChanged()
	}
	return swept, nil
}

// State reports the cross-cutting session state.
func (o *Orchestrator) State() SessionState {
	if o.recorder.Recording() {
		return SessionRecording
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.inflight) > 0 {
		return SessionAwaitingTranscription
	}
	return SessionIdle
}

// Elapsed returns the live capture duration, zero when idle.
func (o *Orchestrator) Elapsed() time.Duration {
	return o.recorder.Elapsed()
}

func (o *Orchestrator) startCapture(ctx context.Context, auto bool) error {
	if err := o.recorder.Start(ctx); err != nil {
		if errors.Is(err, capture.ErrPermissionDenied) {
			// Transient notice, no state change.
			o.presenter.Notice("Microphone access denied")
			o.logger.Warn("capture start refused", zap.Error(err))
			return nil
		}
		return err
	}

	o.mu.Lock()
	o.cancelRequested = false
	if auto {
		o.autoStartedAt = o.now()
	} else {
		o.autoStartedAt = time.Time{}
	}
	o.backgroundAt = time.Time{}
	o.mu.Unlock()

	o.presenter.SessionStateChanged(SessionRecording)
	return nil
}

// stopAndSave finalizes the live capture and persists it as pending. The
// save is unconditional and strictly ordered before any transcription
// attempt.
func (o *Orchestrator) stopAndSave() (id string, transcribeNeeded bool, err error) {
	result, err := o.recorder.Stop()
	if err != nil {
		return "", false, err
	}
	if result == nil {
		return "", false, nil
	}

	rec := store.NewRecording(result.Audio, result.MimeType, result.Duration, o.now())
	if err := o.store.Put(rec); err != nil {
		// Storage failures propagate; the session state still settles.
		o.presenter.SessionStateChanged(SessionIdle)
		return "", false, err
	}

	o.mu.Lock()
	o.activeID = rec.ID
	cancelled := o.cancelRequested
	o.cancelRequested = false
	o.mu.Unlock()

	o.presenter.RecordingUpdated(rec)
	o.presenter.RecordingsChanged()

	if cancelled {
		o.presenter.SessionStateChanged(SessionIdle)
		o.presenter.Notice("Recording saved for later")
		return rec.ID, false, nil
	}
	return rec.ID, true, nil
}

func (o *Orchestrator) stopAndTranscribe(ctx context.Context) (string, error) {
	id, transcribeNeeded, err := o.stopAndSave()
	if err != nil || id == "" {
		return "", err
	}
	if !transcribeNeeded {
		return id, nil
	}
	return id, o.transcribe(ctx, id)
}

// transcribe runs one transcription attempt. At most one call per id is in
// flight; concurrent attempts on the same id are dropped.
func (o *Orchestrator) transcribe(ctx context.Context, id string) error {
	o.mu.Lock()
	if _, busy := o.inflight[id]; busy {
		o.mu.Unlock()
		return nil
	}
	tctx, cancel := context.WithCancel(ctx)
	o.inflight[id] = cancel
	o.mu.Unlock()

	o.presenter.SessionStateChanged(SessionAwaitingTranscription)

	err := o.transcriber.Transcribe(tctx, id)

	o.mu.Lock()
	delete(o.inflight, id)
	o.mu.Unlock()
	cancel()

	o.presenter.SessionStateChanged(SessionIdle)
	if err != nil {
		return err
	}

	rec, err := o.store.Get(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Deleted while in flight.
			return nil
		}
		return err
	}

	o.presenter.RecordingUpdated(rec)
	o.presenter.RecordingsChanged()

	switch rec.Status {
	case store.StatusPending:
		o.presenter.Notice("Recording saved for later")
	case store.StatusDone:
		o.afterSuccess(ctx, rec)
	}
	return nil
}

// afterSuccess runs the post-success automation: clipboard copy, target-app
// handoff and title generation. All of it is best-effort.
func (o *Orchestrator) afterSuccess(ctx context.Context, rec store.Recording) {
	if rec.Title == "" {
		o.background.Add(1)
		go func() {
			defer o.background.Done()
			o.transcriber.GenerateTitle(context.Background(), rec.ID)
			if titled, err := o.store.Get(rec.ID); err == nil && titled.Title != "" {
				o.presenter.RecordingUpdated(titled)
			}
		}()
	}

	if err := o.copyText(ctx, rec.Text); err != nil {
		o.logger.Warn("clipboard copy failed; transcript remains on the recording", zap.Error(err))
	} else {
		o.presenter.Notice("Copied to clipboard")
	}

	p, err := o.settings.Load()
	if err != nil || p.TargetApp == "" {
		return
	}
	if err := o.sendTo(ctx, p.TargetApp, rec.Text); err != nil {
		o.logger.Warn("handoff failed", zap.String("target", p.TargetApp), zap.Error(err))
	}
}

func (o *Orchestrator) clearAutoStart() {
	o.mu.Lock()
	o.autoStartedAt = time.Time{}
	o.mu.Unlock()
}

// waitBackground blocks until spawned background work settles; tests use it
// to assert on asynchronous effects.
func (o *Orchestrator) waitBackground() {
	o.background.Wait()
}
