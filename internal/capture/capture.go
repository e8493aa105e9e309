// Package capture owns the hardware audio acquisition: exec-based recorder
// backends stream encoded audio to stdout, and a Recorder accumulates the
// chunks of exactly one live session at a time.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"

	"go.uber.org/zap"
)

var (
	ErrPermissionDenied   = errors.New("microphone access denied")
	ErrNoBackendAvailable = errors.New("no capture backend available")
	ErrSessionActive      = errors.New("capture session already active")
)

type Config struct {
	SampleRate int
	Channels   int
	Input      string
	Logger     *zap.Logger
}

// Stream is one live hardware acquisition. Read drains encoded audio bytes,
// Stop asks the recorder process to finish (Read then runs to EOF), and Wait
// releases the process after EOF, reporting any exit failure.
type Stream interface {
	io.Reader
	Stop() error
	Wait() error
}

type Backend interface {
	Name() string
	Available() bool
	// MimeType is the encoding this backend produces; probed once at
	// selection time, never re-evaluated per chunk.
	MimeType() string
	Start(ctx context.Context, cfg Config) (Stream, error)
}

// SelectBackend picks the preferred backend, or the first available one when
// no preference is given.
func SelectBackend(backends []Backend, preferred string) (Backend, error) {
	if len(backends) == 0 {
		return nil, errors.New("no backends configured")
	}

	if preferred != "" && preferred != "auto" {
		for _, backend := range backends {
			if backend.Name() == preferred {
				if !backend.Available() {
					return nil, fmt.Errorf("requested backend %q is not available", preferred)
				}
				return backend, nil
			}
		}
		return nil, fmt.Errorf("unknown backend %q", preferred)
	}

	for _, backend := range backends {
		if backend.Available() {
			return backend, nil
		}
	}

	return nil, ErrNoBackendAvailable
}

func DefaultBackends(goos string) []Backend {
	switch goos {
	case "linux":
		return []Backend{newPipeWireBackend(), newALSABackend(), newFFMPEGLinuxBackend()}
	case "darwin":
		return []Backend{newFFMPEGMacOSBackend()}
	default:
		return nil
	}
}

func NewBackend(preferred string) (Backend, error) {
	backends := DefaultBackends(runtime.GOOS)
	if len(backends) == 0 {
		return nil, fmt.Errorf("unsupported OS: %s", runtime.GOOS)
	}
	return SelectBackend(backends, preferred)
}

// ListDevices returns per-backend device diagnostics for the devices command.
func ListDevices(ctx context.Context, backend Backend) (string, error) {
	if lister, ok := backend.(deviceLister); ok {
		return lister.ListDevices(ctx)
	}
	return "", fmt.Errorf("%s does not support device listing", backend.Name())
}

type deviceLister interface {
	ListDevices(ctx context.Context) (string, error)
}

func looksLikePermissionFailure(err error) bool {
	if err == nil {
		return false
	}

	message := strings.ToLower(err.Error())
	patterns := []string{
		"permission denied",
		"access denied",
		"cannot open audio device",
		"device or resource busy",
	}
	for _, pattern := range patterns {
		if strings.Contains(message, pattern) {
			return true
		}
	}
	return false
}

func commandAvailable(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func commandOutput(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	trimmed := strings.TrimSpace(string(out))
	if err != nil {
		if trimmed != "" {
			return "", fmt.Errorf("%s %s failed: %w (%s)", name, strings.Join(args, " "), err, trimmed)
		}
		return "", fmt.Errorf("%s %s failed: %w", name, strings.Join(args, " "), err)
	}
	return trimmed, nil
}

func defaultSampleRate(rate int) int {
	if rate <= 0 {
		return 16000
	}
	return rate
}

func defaultChannels(channels int) int {
	if channels <= 0 {
		return 1
	}
	return channels
}
