package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fmueller/voicebox/internal/capture"
	"github.com/fmueller/voicebox/internal/logging"
	"github.com/fmueller/voicebox/internal/memo"
	"github.com/fmueller/voicebox/internal/platform"
	"github.com/fmueller/voicebox/internal/prefs"
	"github.com/fmueller/voicebox/internal/store"
	"github.com/fmueller/voicebox/internal/transcribe"
	"github.com/fmueller/voicebox/internal/version"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/spf13/cobra"
)

const databaseFileName = "voicebox.db"

// ErrInteractiveRequiresTTY is returned when an interactive capture is
// requested without a terminal on stdin.
var ErrInteractiveRequiresTTY = errors.New("interactive recording requires a terminal; use --immediate or pipe input")

type appState struct {
	verbose    bool
	jsonLogs   bool
	noProgress bool
	dataDir    string
	configDir  string
	backend    string
	input      string
	immediate  bool
	retention  time.Duration

	logger *zap.Logger
	now    func() time.Time
	out    io.Writer
	errOut io.Writer
	in     io.Reader

	openEnvFn func() (*env, error)
	waitFn    func(in io.Reader, out io.Writer, message string) error
}

// env bundles the wired application components for one command invocation.
type env struct {
	records  memo.RecordStore
	settings settingsStore
	orch     *memo.Orchestrator
	tester   credentialTester
	close    func() error
}

type settingsStore interface {
	Load() (prefs.Preferences, error)
	Set(key, value string) error
	Get(key string) (string, error)
}

type credentialTester interface {
	TestCredential(ctx context.Context, apiKey string) error
}

func NewRootCmd() *cobra.Command {
	cmd, _ := newRootCmd()
	return cmd
}

func newRootCmd() (*cobra.Command, *appState) {
	app := &appState{
		backend:   "auto",
		retention: 30 * 24 * time.Hour,
		now:       time.Now,
		out:       os.Stdout,
		errOut:    os.Stderr,
		in:        os.Stdin,
	}
	app.openEnvFn = app.openEnv
	app.waitFn = waitForEnter

	cmd := &cobra.Command{
		Use:           "voicebox",
		Short:         "Capture voice memos and transcribe them with a remote speech-to-text service",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Resolve(),
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			logger, err := logging.New(logging.Options{Verbose: app.verbose, JSON: app.jsonLogs})
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
			app.logger = logger
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runCapture(cmd.Context())
		},
	}

	cmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	bindLoggingFlags(cmd, app)
	bindStorageFlags(cmd, app)
	bindCaptureFlags(cmd, app)
	cmd.Flags().BoolVar(&app.immediate, "immediate", false, "Start recording immediately without waiting for Enter")

	cmd.AddCommand(newRecordCmd(app))
	cmd.AddCommand(newListCmd(app))
	cmd.AddCommand(newShowCmd(app))
	cmd.AddCommand(newRetryCmd(app))
	cmd.AddCommand(newDeleteCmd(app))
	cmd.AddCommand(newClearCmd(app))
	cmd.AddCommand(newSweepCmd(app))
	cmd.AddCommand(newSettingsCmd(app))
	cmd.AddCommand(newDevicesCmd(app))
	cmd.AddCommand(newVersionCmd())

	return cmd, app
}

func bindLoggingFlags(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().BoolVar(&app.verbose, "verbose", app.verbose, "Enable verbose logs")
	cmd.PersistentFlags().BoolVar(&app.jsonLogs, "json", app.jsonLogs, "Enable JSON logging")
	cmd.PersistentFlags().BoolVar(&app.noProgress, "no-progress", app.noProgress, "Disable progress indicators")
}

func bindStorageFlags(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().StringVar(&app.dataDir, "data-dir", app.dataDir, "Directory where recordings are stored")
	cmd.PersistentFlags().StringVar(&app.configDir, "config-dir", app.configDir, "Directory where settings are stored")
}

func bindCaptureFlags(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().StringVar(&app.backend, "backend", app.backend, "Capture backend: auto|pw-record|arecord|ffmpeg")
	cmd.PersistentFlags().StringVar(&app.input, "input", app.input, "Input device (run \"voicebox devices\" to list); e.g. node-ID (pw-record), hw:1,0 (arecord)")
}

// openEnv wires the store, settings, capture backend, transcription client
// and orchestrator together. The returned close func releases the database.
func (a *appState) openEnv() (*env, error) {
	dataDir, err := platform.ResolveDataDir(a.dataDir)
	if err != nil {
		return nil, err
	}

	recordStore, err := store.Open(filepath.Join(dataDir, databaseFileName))
	if err != nil {
		return nil, err
	}

	configDir, err := platform.ResolveConfigDir(a.configDir)
	if err != nil {
		_ = recordStore.Close()
		return nil, err
	}
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		_ = recordStore.Close()
		return nil, fmt.Errorf("create config directory %s: %w", configDir, err)
	}
	settings := prefs.NewStore(configDir)

	backend, err := capture.NewBackend(a.backend)
	if err != nil {
		_ = recordStore.Close()
		return nil, err
	}
	recorder := capture.NewRecorder(backend, capture.Config{Input: a.input, Logger: a.log()})

	client := transcribe.NewClient(recordStore, settings, a.log())
	orch := memo.NewOrchestrator(
		recordStore,
		settings,
		recorder,
		client,
		newConsolePresenter(a.errWriter()),
		a.log(),
		memo.Config{RetentionAge: a.retention},
	)

	return &env{
		records:  recordStore,
		settings: settings,
		orch:     orch,
		tester:   client,
		close:    recordStore.Close,
	}, nil
}

func (a *appState) withEnv(fn func(env *env) error) error {
	env, err := a.openEnvFn()
	if err != nil {
		return err
	}
	defer func() {
		if env.close != nil {
			if err := env.close(); err != nil {
				a.log().Warn("failed to close record store", zap.Error(err))
			}
		}
	}()
	return fn(env)
}

func (a *appState) log() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

func (a *appState) progressEnabled() bool {
	if a.noProgress {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}

func (a *appState) outWriter() io.Writer {
	if a.out == nil {
		return os.Stdout
	}
	return a.out
}

func (a *appState) errWriter() io.Writer {
	if a.errOut == nil {
		return os.Stderr
	}
	return a.errOut
}

func waitForEnter(in io.Reader, out io.Writer, message string) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return ErrInteractiveRequiresTTY
	}

	if message != "" {
		if _, err := fmt.Fprintln(out, message); err != nil {
			return err
		}
	}

	reader := bufio.NewReader(in)
	_, err := reader.ReadString('\n')
	return err
}
