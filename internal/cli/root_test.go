package cli

import (
	"errors"
	"io"
	"testing"

	"github.com/fmueller/voicebox/internal/capture"
	"github.com/fmueller/voicebox/internal/store"
	"github.com/stretchr/testify/require"
)

func TestCaptureFlowPrintsTranscript(t *testing.T) {
	f := newFixture(t)
	f.trans.fn = transcribeAs(f.store, store.StatusDone, "note to self", "")

	require.NoError(t, f.run())
	require.Contains(t, f.stdout.String(), "note to self")

	recs, err := f.store.GetAll()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, store.StatusDone, recs[0].Status)
}

func TestCaptureFlowWithoutCredentialKeepsRecording(t *testing.T) {
	f := newFixture(t)
	f.trans.fn = transcribeAs(f.store, store.StatusError, "", "no credential configured")

	err := f.run()
	require.Error(t, err)
	require.Contains(t, err.Error(), "no credential configured")
	require.Contains(t, f.stderr.String(), "voicebox retry")

	recs, err := f.store.GetAll()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.NotEmpty(t, recs[0].Audio, "the capture must survive a failed transcription")
}

func TestCaptureFlowPermissionDenied(t *testing.T) {
	f := newFixture(t)
	f.recorder.startErr = capture.ErrPermissionDenied

	require.NoError(t, f.run())
	require.Contains(t, f.stderr.String(), "Microphone access denied")
	require.Zero(t, f.trans.calls)

	recs, err := f.store.GetAll()
	require.NoError(t, err)
	require.Empty(t, recs)
}

func TestCaptureFlowStopsOnWaitFailure(t *testing.T) {
	f := newFixture(t)
	waits := 0
	f.app.waitFn = func(io.Reader, io.Writer, string) error {
		waits++
		if waits == 2 {
			return errors.New("stdin closed")
		}
		return nil
	}

	err := f.run()
	require.Error(t, err)

	// The capture is saved even though the interactive wait broke.
	recs, getErr := f.store.GetAll()
	require.NoError(t, getErr)
	require.Len(t, recs, 1)
}

func TestUnknownCommandFails(t *testing.T) {
	f := newFixture(t)
	err := f.run("definitely-not-a-command")
	require.Error(t, err)
}
