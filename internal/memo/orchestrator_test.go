package memo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fmueller/voicebox/internal/capture"
	"github.com/fmueller/voicebox/internal/prefs"
	"github.com/fmueller/voicebox/internal/store"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu   sync.Mutex
	recs map[string]store.Recording
}

func newMemStore() *memStore {
	return &memStore{recs: make(map[string]store.Recording)}
}

func (s *memStore) Put(rec store.Recording) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[rec.ID] = rec
	return nil
}

func (s *memStore) Get(id string) (store.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return store.Recording{}, store.ErrNotFound
	}
	return rec, nil
}

func (s *memStore) GetAll() ([]store.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Recording, 0, len(s.recs))
	for _, rec := range s.recs {
		out = append(out, rec)
	}
	return out, nil
}

func (s *memStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.recs, id)
	return nil
}

func (s *memStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = make(map[string]store.Recording)
	return nil
}

func (s *memStore) SweepExpiredAudio(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	swept := 0
	for id, rec := range s.recs {
		if rec.CreatedAt.Before(cutoff) && rec.Audio != nil {
			rec.Audio = nil
			s.recs[id] = rec
			swept++
		}
	}
	return swept, nil
}

type stubRecorder struct {
	mu        sync.Mutex
	recording bool
	startErr  error
	stopErr   error
	result    *capture.Result
	discards  int
	starts    int
}

func (r *stubRecorder) Start(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts++
	if r.startErr != nil {
		return r.startErr
	}
	r.recording = true
	return nil
}

func (r *stubRecorder) Stop() (*capture.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return nil, nil
	}
	r.recording = false
	if r.stopErr != nil {
		return nil, r.stopErr
	}
	if r.result != nil {
		return r.result, nil
	}
	return &capture.Result{Audio: []byte("pcm"), MimeType: "audio/wav", Duration: 1.5}, nil
}

func (r *stubRecorder) Discard() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recording = false
	r.discards++
}

func (r *stubRecorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

func (r *stubRecorder) Elapsed() time.Duration { return 0 }

// stubTranscriber applies fn against the shared store; fns mimic the real
// client, which persists the settled recording unless it was deleted.
type stubTranscriber struct {
	mu         sync.Mutex
	fn         func(ctx context.Context, id string) error
	calls      []string
	titleCalls []string
	titleText  string
	store      *memStore
}

func (t *stubTranscriber) Transcribe(ctx context.Context, id string) error {
	t.mu.Lock()
	t.calls = append(t.calls, id)
	fn := t.fn
	t.mu.Unlock()
	if fn != nil {
		return fn(ctx, id)
	}
	return nil
}

func (t *stubTranscriber) GenerateTitle(_ context.Context, id string) {
	t.mu.Lock()
	t.titleCalls = append(t.titleCalls, id)
	title := t.titleText
	st := t.store
	t.mu.Unlock()
	if st == nil || title == "" {
		return
	}
	if rec, err := st.Get(id); err == nil {
		rec.Title = title
		_ = st.Put(rec)
	}
}

func (t *stubTranscriber) transcribeCalls() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.calls...)
}

type fixedSettings struct {
	prefs prefs.Preferences
	err   error
}

func (s fixedSettings) Load() (prefs.Preferences, error) { return s.prefs, s.err }

type recordingPresenter struct {
	mu      sync.Mutex
	states  []SessionState
	notices []string
	updates []store.Recording
	changed int
}

func (p *recordingPresenter) SessionStateChanged(state SessionState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, state)
}

func (p *recordingPresenter) RecordingUpdated(rec store.Recording) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, rec)
}

func (p *recordingPresenter) RecordingsChanged() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changed++
}

func (p *recordingPresenter) Notice(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notices = append(p.notices, message)
}

func (p *recordingPresenter) noticeList() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.notices...)
}

type harness struct {
	orch        *Orchestrator
	store       *memStore
	recorder    *stubRecorder
	transcriber *stubTranscriber
	presenter   *recordingPresenter
	clock       *fakeClock
	copied      *[]string
	sent        *[]string
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newHarness(t *testing.T, p prefs.Preferences) *harness {
	t.Helper()
	st := newMemStore()
	rec := &stubRecorder{}
	tr := &stubTranscriber{store: st}
	pres := &recordingPresenter{}
	clock := &fakeClock{t: time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)}

	orch := NewOrchestrator(st, fixedSettings{prefs: p}, rec, tr, pres, nil, Config{})
	orch.now = clock.now

	copied := []string{}
	sent := []string{}
	orch.copyText = func(_ context.Context, text string) error {
		copied = append(copied, text)
		return nil
	}
	orch.sendTo = func(_ context.Context, target, text string) error {
		sent = append(sent, target+"|"+text)
		return nil
	}

	return &harness{
		orch: orch, store: st, recorder: rec, transcriber: tr,
		presenter: pres, clock: clock, copied: &copied, sent: &sent,
	}
}

func TestToggleCaptureSavesBeforeTranscribing(t *testing.T) {
	t.Parallel()

	h := newHarness(t, prefs.Preferences{APIKey: "sk-test"})
	ctx := context.Background()

	var sawPending bool
	h.transcriber.fn = func(_ context.Context, id string) error {
		rec, err := h.store.Get(id)
		if err != nil {
			return err
		}
		sawPending = rec.Status == store.StatusPending && len(rec.Audio) > 0
		rec.Status = store.StatusDone
		rec.Text = "hello world"
		return h.store.Put(rec)
	}

	id, err := h.orch.ToggleCapture(ctx)
	require.NoError(t, err)
	require.Empty(t, id)
	require.True(t, h.recorder.Recording())

	id, err = h.orch.ToggleCapture(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.True(t, sawPending, "recording must be persisted as pending before any transcription attempt")

	rec, err := h.store.Get(id)
	require.NoError(t, err)
	require.Equal(t, store.StatusDone, rec.Status)
	require.Equal(t, "hello world", rec.Text)
}

func TestToggleCaptureTranscriptionFailureKeepsAudio(t *testing.T) {
	t.Parallel()

	h := newHarness(t, prefs.Preferences{})
	h.transcriber.fn = func(_ context.Context, id string) error {
		rec, err := h.store.Get(id)
		if err != nil {
			return err
		}
		rec.Status = store.StatusError
		rec.ErrorMessage = "no credential configured"
		return h.store.Put(rec)
	}

	_, err := h.orch.ToggleCapture(context.Background())
	require.NoError(t, err)
	id, err := h.orch.ToggleCapture(context.Background())
	require.NoError(t, err)

	rec, err := h.store.Get(id)
	require.NoError(t, err)
	require.Equal(t, store.StatusError, rec.Status)
	require.NotEmpty(t, rec.Audio, "failed transcription must not cost the audio")
}

func TestCancelDuringCaptureSavesWithoutTranscribing(t *testing.T) {
	t.Parallel()

	h := newHarness(t, prefs.Preferences{APIKey: "sk-test"})
	_, err := h.orch.ToggleCapture(context.Background())
	require.NoError(t, err)

	require.NoError(t, h.orch.Cancel(context.Background()))

	require.Empty(t, h.transcriber.transcribeCalls())
	all, err := h.store.GetAll()
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, store.StatusPending, all[0].Status)
	require.NotEmpty(t, all[0].Audio)
	require.Contains(t, h.presenter.noticeList(), "Recording saved for later")
}

func TestCancelInFlightTranscriptionDefers(t *testing.T) {
	t.Parallel()

	h := newHarness(t, prefs.Preferences{APIKey: "sk-test"})
	started := make(chan struct{})
	h.transcriber.fn = func(ctx context.Context, id string) error {
		close(started)
		<-ctx.Done()
		rec, err := h.store.Get(id)
		if err != nil {
			return err
		}
		rec.Status = store.StatusPending
		rec.ErrorMessage = ""
		return h.store.Put(rec)
	}

	_, err := h.orch.ToggleCapture(context.Background())
	require.NoError(t, err)

	done := make(chan string, 1)
	go func() {
		id, err := h.orch.ToggleCapture(context.Background())
		require.NoError(t, err)
		done <- id
	}()

	<-started
	require.NoError(t, h.orch.Cancel(context.Background()))

	var id string
	select {
	case id = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("toggle did not return after cancellation")
	}

	rec, err := h.store.Get(id)
	require.NoError(t, err)
	require.Equal(t, store.StatusPending, rec.Status)
	require.Empty(t, rec.ErrorMessage)
	require.NotEmpty(t, rec.Audio)
	require.Contains(t, h.presenter.noticeList(), "Recording saved for later")
}

func TestRetryResetsStatusBeforeTranscribing(t *testing.T) {
	t.Parallel()

	h := newHarness(t, prefs.Preferences{APIKey: "sk-test"})
	rec := store.NewRecording([]byte("pcm"), "audio/wav", 2, h.clock.now())
	rec.Status = store.StatusError
	rec.ErrorMessage = "API error 503"
	require.NoError(t, h.store.Put(rec))

	var sawReset bool
	h.transcriber.fn = func(_ context.Context, id string) error {
		got, err := h.store.Get(id)
		if err != nil {
			return err
		}
		sawReset = got.Status == store.StatusPending && got.ErrorMessage == ""
		got.Status = store.StatusDone
		got.Text = "retried"
		return h.store.Put(got)
	}

	require.NoError(t, h.orch.Retry(context.Background(), rec.ID))
	require.True(t, sawReset, "retry must clear the failure before reattempting")

	got, err := h.store.Get(rec.ID)
	require.NoError(t, err)
	require.Equal(t, store.StatusDone, got.Status)
}

func TestRetryUnknownRecording(t *testing.T) {
	t.Parallel()

	h := newHarness(t, prefs.Preferences{})
	err := h.orch.Retry(context.Background(), "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSuccessCopiesToClipboardAndHandsOff(t *testing.T) {
	t.Parallel()

	h := newHarness(t, prefs.Preferences{APIKey: "sk-test", TargetApp: "obsidian://new?content="})
	h.transcriber.titleText = "Grocery list for the week"
	h.transcriber.fn = func(_ context.Context, id string) error {
		rec, err := h.store.Get(id)
		if err != nil {
			return err
		}
		rec.Status = store.StatusDone
		rec.Text = "buy milk"
		return h.store.Put(rec)
	}

	_, err := h.orch.ToggleCapture(context.Background())
	require.NoError(t, err)
	id, err := h.orch.ToggleCapture(context.Background())
	require.NoError(t, err)

	h.orch.waitBackground()

	require.Equal(t, []string{"buy milk"}, *h.copied)
	require.Equal(t, []string{"obsidian://new?content=|buy milk"}, *h.sent)
	require.Contains(t, h.presenter.noticeList(), "Copied to clipboard")

	rec, err := h.store.Get(id)
	require.NoError(t, err)
	require.Equal(t, "Grocery list for the week", rec.Title)
}

func TestPermissionDeniedNoticeLeavesStateIdle(t *testing.T) {
	t.Parallel()

	h := newHarness(t, prefs.Preferences{})
	h.recorder.startErr = capture.ErrPermissionDenied

	id, err := h.orch.ToggleCapture(context.Background())
	require.NoError(t, err)
	require.Empty(t, id)
	require.False(t, h.recorder.Recording())
	require.Contains(t, h.presenter.noticeList(), "Microphone access denied")
	require.Equal(t, SessionIdle, h.orch.State())
}

func TestGraceWindowDiscardsAutoCapture(t *testing.T) {
	t.Parallel()

	h := newHarness(t, prefs.Preferences{AutoCapture: true})
	require.NoError(t, h.orch.HandleActivate(context.Background()))
	require.True(t, h.recorder.Recording())

	h.clock.advance(time.Second)
	require.True(t, h.orch.NoteInteraction())
	require.False(t, h.recorder.Recording())
	require.Equal(t, 1, h.recorder.discards)

	all, err := h.store.GetAll()
	require.NoError(t, err)
	require.Empty(t, all, "a grace-window discard never persists anything")
}

func TestGraceWindowExpiresAfterConfiguredDuration(t *testing.T) {
	t.Parallel()

	h := newHarness(t, prefs.Preferences{AutoCapture: true})
	require.NoError(t, h.orch.HandleActivate(context.Background()))

	h.clock.advance(5 * time.Second)
	require.False(t, h.orch.NoteInteraction())
	require.True(t, h.recorder.Recording(), "interaction after the window keeps the session")
}

func TestManualToggleDisarmsGraceWindow(t *testing.T) {
	t.Parallel()

	h := newHarness(t, prefs.Preferences{AutoCapture: true, APIKey: "sk-test"})
	require.NoError(t, h.orch.HandleActivate(context.Background()))

	// Stopping via the capture control is deliberate; the session is kept
	// and saved even inside the grace window.
	h.clock.advance(time.Second)
	id, err := h.orch.ToggleCapture(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.Equal(t, 0, h.recorder.discards)
}

func TestHandleActivateRespectsPreferenceAndLiveSession(t *testing.T) {
	t.Parallel()

	h := newHarness(t, prefs.Preferences{})
	require.NoError(t, h.orch.HandleActivate(context.Background()))
	require.False(t, h.recorder.Recording())

	h2 := newHarness(t, prefs.Preferences{AutoCapture: true})
	_, err := h2.orch.ToggleCapture(context.Background())
	require.NoError(t, err)
	starts := h2.recorder.starts
	require.NoError(t, h2.orch.HandleActivate(context.Background()))
	require.Equal(t, starts, h2.recorder.starts, "a live session must not be replaced")
}

func TestBackgroundExpiryDiscardsStaleCapture(t *testing.T) {
	t.Parallel()

	h := newHarness(t, prefs.Preferences{AutoCapture: true})
	require.NoError(t, h.orch.HandleActivate(context.Background()))

	h.orch.HandleBackground()
	h.clock.advance(time.Minute)

	require.NoError(t, h.orch.HandleForeground(context.Background()))
	require.Equal(t, 1, h.recorder.discards, "expiry discards exactly once; the grace window must not also fire")
	require.True(t, h.recorder.Recording(), "auto-capture starts a replacement session")

	all, err := h.store.GetAll()
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestShortBackgroundGapKeepsCapture(t *testing.T) {
	t.Parallel()

	h := newHarness(t, prefs.Preferences{})
	_, err := h.orch.ToggleCapture(context.Background())
	require.NoError(t, err)

	h.orch.HandleBackground()
	h.clock.advance(5 * time.Second)

	require.NoError(t, h.orch.HandleForeground(context.Background()))
	require.Zero(t, h.recorder.discards)
	require.True(t, h.recorder.Recording())
}

func TestOpenStopsLiveCaptureAndTranscribesInBackground(t *testing.T) {
	t.Parallel()

	h := newHarness(t, prefs.Preferences{APIKey: "sk-test"})
	existing := store.NewRecording([]byte("old"), "audio/wav", 3, h.clock.now())
	existing.Status = store.StatusDone
	existing.Text = "earlier note"
	require.NoError(t, h.store.Put(existing))

	h.transcriber.fn = func(_ context.Context, id string) error {
		rec, err := h.store.Get(id)
		if err != nil {
			return err
		}
		rec.Status = store.StatusDone
		rec.Text = "live note"
		return h.store.Put(rec)
	}

	_, err := h.orch.ToggleCapture(context.Background())
	require.NoError(t, err)

	got, err := h.orch.Open(context.Background(), existing.ID)
	require.NoError(t, err)
	require.Equal(t, "earlier note", got.Text)
	require.False(t, h.recorder.Recording(), "opening a recording ends the live session")

	h.orch.waitBackground()

	all, err := h.store.GetAll()
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, rec := range all {
		require.Equal(t, store.StatusDone, rec.Status)
	}
}

func TestDeleteCancelsInFlightWork(t *testing.T) {
	t.Parallel()

	h := newHarness(t, prefs.Preferences{APIKey: "sk-test"})
	started := make(chan struct{})
	cancelled := make(chan struct{})
	h.transcriber.fn = func(ctx context.Context, id string) error {
		close(started)
		<-ctx.Done()
		defer close(cancelled)
		// Same settling behavior as the real client: revert to pending
		// unless the recording is gone.
		rec, err := h.store.Get(id)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		rec.Status = store.StatusPending
		rec.ErrorMessage = ""
		return h.store.Put(rec)
	}

	_, err := h.orch.ToggleCapture(context.Background())
	require.NoError(t, err)

	done := make(chan struct{})
	var id string
	go func() {
		defer close(done)
		var err error
		id, err = h.orch.ToggleCapture(context.Background())
		require.NoError(t, err)
	}()

	<-started
	all, err := h.store.GetAll()
	require.NoError(t, err)
	require.Len(t, all, 1)

	require.NoError(t, h.orch.Delete(all[0].ID))
	select {
	case <-cancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("in-flight transcription was not cancelled")
	}
	<-done

	_, err = h.store.Get(id)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestClearRemovesEverything(t *testing.T) {
	t.Parallel()

	h := newHarness(t, prefs.Preferences{})
	for i := 0; i < 3; i++ {
		require.NoError(t, h.store.Put(store.NewRecording([]byte("a"), "audio/wav", 1, h.clock.now())))
	}

	require.NoError(t, h.orch.Clear())
	all, err := h.store.GetAll()
	require.NoError(t, err)
	require.Empty(t, all)
	require.Contains(t, h.presenter.noticeList(), "All recordings deleted")
}

func TestSweepRetentionReclaimsOldAudioOnly(t *testing.T) {
	t.Parallel()

	h := newHarness(t, prefs.Preferences{})
	old := store.NewRecording([]byte("old"), "audio/wav", 1, h.clock.now().Add(-40*24*time.Hour))
	old.Status = store.StatusDone
	old.Text = "kept text"
	fresh := store.NewRecording([]byte("fresh"), "audio/wav", 1, h.clock.now())
	require.NoError(t, h.store.Put(old))
	require.NoError(t, h.store.Put(fresh))

	swept, err := h.orch.SweepRetention()
	require.NoError(t, err)
	require.Equal(t, 1, swept)

	got, err := h.store.Get(old.ID)
	require.NoError(t, err)
	require.Nil(t, got.Audio)
	require.Equal(t, "kept text", got.Text)

	got, err = h.store.Get(fresh.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Audio)
}

func TestStateTransitions(t *testing.T) {
	t.Parallel()

	h := newHarness(t, prefs.Preferences{APIKey: "sk-test"})
	require.Equal(t, SessionIdle, h.orch.State())

	_, err := h.orch.ToggleCapture(context.Background())
	require.NoError(t, err)
	require.Equal(t, SessionRecording, h.orch.State())

	_, err = h.orch.ToggleCapture(context.Background())
	require.NoError(t, err)
	require.Equal(t, SessionIdle, h.orch.State())
}

func TestStorageFailurePropagates(t *testing.T) {
	t.Parallel()

	st := &failingStore{memStore: newMemStore(), putErr: errors.New("disk full")}
	rec := &stubRecorder{}
	orch := NewOrchestrator(st, fixedSettings{}, rec, &stubTranscriber{}, nil, nil, Config{})

	_, err := orch.ToggleCapture(context.Background())
	require.NoError(t, err)
	_, err = orch.ToggleCapture(context.Background())
	require.ErrorContains(t, err, "disk full")
}

type failingStore struct {
	*memStore
	putErr error
}

func (s *failingStore) Put(rec store.Recording) error {
	if s.putErr != nil {
		return s.putErr
	}
	return s.memStore.Put(rec)
}
