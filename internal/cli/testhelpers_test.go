package cli

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/fmueller/voicebox/internal/capture"
	"github.com/fmueller/voicebox/internal/memo"
	"github.com/fmueller/voicebox/internal/prefs"
	"github.com/fmueller/voicebox/internal/store"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

type stubRecorder struct {
	recording bool
	startErr  error
	result    *capture.Result
}

func (r *stubRecorder) Start(context.Context) error {
	if r.startErr != nil {
		return r.startErr
	}
	r.recording = true
	return nil
}

func (r *stubRecorder) Stop() (*capture.Result, error) {
	if !r.recording {
		return nil, nil
	}
	r.recording = false
	if r.result != nil {
		return r.result, nil
	}
	return &capture.Result{Audio: []byte("pcm"), MimeType: "audio/wav", Duration: 2}, nil
}

func (r *stubRecorder) Discard()               { r.recording = false }
func (r *stubRecorder) Recording() bool        { return r.recording }
func (r *stubRecorder) Elapsed() time.Duration { return 0 }

type scriptedTranscriber struct {
	fn    func(ctx context.Context, id string) error
	calls int
}

func (t *scriptedTranscriber) Transcribe(ctx context.Context, id string) error {
	t.calls++
	if t.fn != nil {
		return t.fn(ctx, id)
	}
	return nil
}

func (t *scriptedTranscriber) GenerateTitle(context.Context, string) {}

type stubTester struct {
	err error
}

func (t stubTester) TestCredential(context.Context, string) error { return t.err }

// transcribeAs returns a transcriber fn that resolves the recording to the
// given terminal state.
func transcribeAs(st memo.RecordStore, status store.Status, text, errMsg string) func(context.Context, string) error {
	return func(_ context.Context, id string) error {
		rec, err := st.Get(id)
		if err != nil {
			return err
		}
		rec.Status = status
		rec.Text = text
		rec.ErrorMessage = errMsg
		return st.Put(rec)
	}
}

type testFixture struct {
	app      *appState
	cmd      *cobra.Command
	store    *store.Store
	settings *prefs.Store
	recorder *stubRecorder
	trans    *scriptedTranscriber
	tester   *stubTester
	stdout   *bytes.Buffer
	stderr   *bytes.Buffer
}

func newFixture(t *testing.T) *testFixture {
	t.Helper()

	st, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	settings := prefs.NewStore(t.TempDir())
	recorder := &stubRecorder{}
	trans := &scriptedTranscriber{}
	tester := &stubTester{}

	cmd, app := newRootCmd()

	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	app.out = stdout
	app.errOut = stderr
	app.in = bytes.NewReader(nil)
	app.noProgress = true
	app.waitFn = func(io.Reader, io.Writer, string) error { return nil }

	orch := memo.NewOrchestrator(st, settings, recorder, trans, newConsolePresenter(stderr), nil, memo.Config{})
	app.openEnvFn = func() (*env, error) {
		return &env{records: st, settings: settings, orch: orch, tester: tester}, nil
	}

	return &testFixture{
		app: app, cmd: cmd, store: st, settings: settings,
		recorder: recorder, trans: trans, tester: tester,
		stdout: stdout, stderr: stderr,
	}
}

func (f *testFixture) run(args ...string) error {
	if args == nil {
		// SetArgs(nil) would fall back to os.Args.
		args = []string{}
	}
	f.cmd.SetArgs(args)
	return f.cmd.Execute()
}

func seedRecording(t *testing.T, st *store.Store, status store.Status, text string, createdAt time.Time) store.Recording {
	t.Helper()

	rec := store.NewRecording([]byte("pcm"), "audio/wav", 3.2, createdAt)
	rec.Status = status
	rec.Text = text
	require.NoError(t, st.Put(rec))
	return rec
}
