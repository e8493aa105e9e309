package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/fmueller/voicebox/internal/memo"
	"github.com/fmueller/voicebox/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRecordCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a voice memo, save it and transcribe it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runCapture(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&app.immediate, "immediate", app.immediate, "Start recording immediately without waiting for Enter")

	return cmd
}

// runCapture is the interactive capture flow: start on Enter, stop on Enter,
// save, transcribe and report the outcome. The recording survives every
// failure mode after the stop.
func (a *appState) runCapture(ctx context.Context) error {
	return a.withEnv(func(env *env) error {
		// Opportunistic retention pass on the capture path; a failed
		// sweep never blocks recording.
		if _, err := env.orch.SweepRetention(); err != nil {
			a.log().Warn("retention sweep failed", zap.Error(err))
		}

		if !a.immediate && !autoCaptureEnabled(env) {
			if err := a.waitFn(a.in, a.errWriter(), "Press Enter to start recording."); err != nil {
				return err
			}
		}

		if _, err := env.orch.ToggleCapture(ctx); err != nil {
			return err
		}
		if env.orch.State() != memo.SessionRecording {
			// Start was refused with a notice already shown, e.g.
			// microphone access denied.
			return nil
		}

		stopSpinner := startElapsedSpinner(a.progressEnabled(), "Recording", env.orch.Elapsed)
		waitErr := a.waitFn(a.in, a.errWriter(), "Recording... press Enter to stop.")
		stopSpinner()

		if waitErr != nil {
			a.log().Warn("interactive wait failed; saving the capture anyway", zap.Error(waitErr))
		}

		stopProgress := startSpinner(a.progressEnabled(), "Transcribing")
		id, err := env.orch.ToggleCapture(ctx)
		stopProgress()
		if err != nil {
			return err
		}
		if id == "" {
			return waitErr
		}

		if err := a.printOutcome(env, id); err != nil {
			return err
		}
		return waitErr
	})
}

// autoCaptureEnabled reports whether the auto_capture preference skips the
// start prompt.
func autoCaptureEnabled(env *env) bool {
	p, err := env.settings.Load()
	return err == nil && p.AutoCapture
}

// printOutcome renders the terminal state of a recording after a
// transcription attempt.
func (a *appState) printOutcome(env *env, id string) error {
	rec, err := env.records.Get(id)
	if err != nil {
		return err
	}

	switch rec.Status {
	case store.StatusDone:
		fmt.Fprintln(a.outWriter(), rec.Text)
		return nil
	case store.StatusPending:
		fmt.Fprintf(a.outWriter(), "Recording %s saved; transcribe it later with \"voicebox retry %s\".\n", rec.ID, rec.ID)
		return nil
	default:
		fmt.Fprintf(a.errWriter(), "Recording %s is kept; run \"voicebox retry %s\" to try again.\n", rec.ID, rec.ID)
		return errors.New(rec.ErrorMessage)
	}
}
