package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// sliceInterval is the target cadence for pulling audio off the hardware
// stream; chunk sizing is derived from it once at session start.
const sliceInterval = 250 * time.Millisecond

// startupGrace is how long Start watches a fresh session for an immediate
// failure (typically a denied or busy device) before declaring it live.
const defaultStartupGrace = 300 * time.Millisecond

// Result is the output of a finished capture session.
type Result struct {
	Audio    []byte
	MimeType string
	Duration float64
}

// Recorder manages at most one live capture session. Starting while a
// session is active fails with ErrSessionActive; callers implement toggle
// semantics by calling Stop (or Discard) first.
type Recorder struct {
	backend      Backend
	cfg          Config
	startupGrace time.Duration
	now          func() time.Time
	logger       *zap.Logger

	mu     sync.Mutex
	active *session
}

func NewRecorder(backend Backend, cfg Config) *Recorder {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		backend:      backend,
		cfg:          cfg,
		startupGrace: defaultStartupGrace,
		now:          time.Now,
		logger:       logger,
	}
}

// Start begins a new capture session. It fails with ErrPermissionDenied when
// the hardware refuses access and with ErrSessionActive when a session is
// already live; buffered audio is never dropped by Start.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil {
		return ErrSessionActive
	}

	stream, err := r.backend.Start(ctx, r.cfg)
	if err != nil {
		return fmt.Errorf("start capture with backend %s: %w", r.backend.Name(), err)
	}

	sess := newSession(stream, chunkSizeFor(r.cfg), r.now())
	go sess.run()

	// Fast failures (denied device, dead daemon) surface within the grace
	// window instead of at Stop time.
	select {
	case <-sess.done:
		if err := sess.err(); err != nil {
			return err
		}
		return errors.New("capture ended before recording started")
	case <-time.After(r.startupGrace):
	}

	r.active = sess
	r.logger.Debug("recording started", zap.String("backend", r.backend.Name()))
	return nil
}

// Stop finalizes the live session into a Result. Calling Stop while idle is
// a no-op returning nil.
func (r *Recorder) Stop() (*Result, error) {
	r.mu.Lock()
	sess := r.active
	r.active = nil
	r.mu.Unlock()

	if sess == nil {
		return nil, nil
	}

	sess.finish(false)
	audio := sess.audio()
	duration := r.now().Sub(sess.startedAt).Seconds()
	if duration < 0 {
		duration = 0
	}

	if err := sess.err(); err != nil {
		r.logger.Warn("capture stream ended uncleanly", zap.Error(err))
	}

	return &Result{
		Audio:    audio,
		MimeType: r.backend.MimeType(),
		Duration: duration,
	}, nil
}

// Discard releases the live session without producing output. Safe to call
// while idle.
func (r *Recorder) Discard() {
	r.mu.Lock()
	sess := r.active
	r.active = nil
	r.mu.Unlock()

	if sess == nil {
		return
	}
	sess.finish(true)
	r.logger.Debug("recording discarded")
}

// Recording reports whether a capture session is live.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

// Elapsed returns the wall-clock time since the live session started, or
// zero when idle.
func (r *Recorder) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return 0
	}
	return r.now().Sub(r.active.startedAt)
}

func chunkSizeFor(cfg Config) int {
	bytesPerSecond := defaultSampleRate(cfg.SampleRate) * defaultChannels(cfg.Channels) * 2
	size := bytesPerSecond * int(sliceInterval) / int(time.Second)
	if size < 2048 {
		size = 2048
	}
	return size
}

// session accumulates the chunked output of one hardware stream.
type session struct {
	stream    Stream
	chunkSize int
	startedAt time.Time

	mu       sync.Mutex
	buf      bytes.Buffer
	stopping bool
	runErr   error

	done       chan struct{}
	finishOnce sync.Once
}

func newSession(stream Stream, chunkSize int, startedAt time.Time) *session {
	return &session{
		stream:    stream,
		chunkSize: chunkSize,
		startedAt: startedAt,
		done:      make(chan struct{}),
	}
}

func (s *session) run() {
	defer close(s.done)

	chunk := make([]byte, s.chunkSize)
	for {
		n, err := s.stream.Read(chunk)
		if n > 0 {
			s.mu.Lock()
			s.buf.Write(chunk[:n])
			s.mu.Unlock()
		}
		if err == nil {
			continue
		}

		waitErr := s.stream.Wait()

		s.mu.Lock()
		defer s.mu.Unlock()

		if !errors.Is(err, io.EOF) {
			s.runErr = err
			return
		}
		if s.stopping || waitErr == nil {
			return
		}
		if s.buf.Len() == 0 && looksLikePermissionFailure(waitErr) {
			s.runErr = fmt.Errorf("%w: %v", ErrPermissionDenied, waitErr)
			return
		}
		s.runErr = waitErr
		return
	}
}

// finish stops the hardware and waits for the reader to drain. With discard
// set the buffered audio is dropped on the floor.
func (s *session) finish(discard bool) {
	s.finishOnce.Do(func() {
		s.mu.Lock()
		s.stopping = true
		s.mu.Unlock()

		_ = s.stream.Stop()
		<-s.done

		if discard {
			s.mu.Lock()
			s.buf.Reset()
			s.mu.Unlock()
		}
	})
}

func (s *session) audio() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	// An empty (but non-nil) slice marks a zero-byte capture, distinct
	// from audio reclaimed by retention.
	out := make([]byte, s.buf.Len())
	copy(out, s.buf.Bytes())
	return out
}

func (s *session) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runErr
}
