package capture

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
)

// execStream wraps a recorder process writing encoded audio to stdout.
// Stderr is buffered and only inspected after Wait, once the exec copy
// goroutine has finished.
type execStream struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr bytes.Buffer

	mu       sync.Mutex
	stopSent bool

	waitOnce sync.Once
	waitErr  error
}

func startStream(cmd *exec.Cmd) (*execStream, error) {
	s := &execStream{cmd: cmd}
	cmd.Stderr = &s.stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open %s stdout: %w", cmd.Path, err)
	}
	s.stdout = stdout

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", cmd.Path, err)
	}
	return s, nil
}

func (s *execStream) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

// Stop signals the recorder to finish. Callers keep reading until EOF so no
// buffered audio is lost, then call Wait.
func (s *execStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopSent {
		return nil
	}
	if err := s.cmd.Process.Signal(os.Interrupt); err != nil {
		return s.cmd.Process.Kill()
	}
	s.stopSent = true
	return nil
}

func (s *execStream) Wait() error {
	s.waitOnce.Do(func() {
		err := s.cmd.Wait()
		if err == nil {
			return
		}

		s.mu.Lock()
		stopSent := s.stopSent
		s.mu.Unlock()

		// A signal-terminated exit after our own stop request is a
		// clean shutdown, not a failure.
		if stopSent || exitedBySignal(err) {
			return
		}

		if tail := s.stderrTail(); tail != "" {
			s.waitErr = fmt.Errorf("%w (%s)", err, tail)
			return
		}
		s.waitErr = err
	})
	return s.waitErr
}

func (s *execStream) stderrTail() string {
	lines := strings.Split(strings.TrimSpace(s.stderr.String()), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

func exitedBySignal(err error) bool {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	return ok && status.Signaled()
}
