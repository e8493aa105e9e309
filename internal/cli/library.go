package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newListCmd(app *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved recordings, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.withEnv(func(env *env) error {
				recs, err := env.orch.Recordings()
				if err != nil {
					return err
				}
				if len(recs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No recordings yet.")
					return nil
				}

				for _, rec := range recs {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s  %s  %5s  %s\n",
						statusGlyph(rec.Status),
						rec.ID,
						rec.CreatedAt.Local().Format("2006-01-02 15:04"),
						formatClock(rec.Duration),
						listingLabel(rec),
					)
				}
				return nil
			})
		},
	}
}

func newShowCmd(app *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one recording in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withEnv(func(env *env) error {
				rec, err := env.orch.Open(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "ID:       %s\n", rec.ID)
				fmt.Fprintf(out, "Created:  %s\n", rec.CreatedAt.Local().Format("2006-01-02 15:04:05"))
				fmt.Fprintf(out, "Duration: %s\n", formatClock(rec.Duration))
				fmt.Fprintf(out, "Status:   %s\n", rec.Status)
				if rec.Title != "" {
					fmt.Fprintf(out, "Title:    %s\n", rec.Title)
				}
				if rec.Audio == nil {
					fmt.Fprintln(out, "Audio:    reclaimed by retention sweep")
				}
				if rec.ErrorMessage != "" {
					fmt.Fprintf(out, "Error:    %s\n", rec.ErrorMessage)
				}
				if rec.Text != "" {
					fmt.Fprintf(out, "\n%s\n", rec.Text)
				}
				return nil
			})
		},
	}
}

func newRetryCmd(app *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Transcribe a saved recording again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withEnv(func(env *env) error {
				stopProgress := startSpinner(app.progressEnabled(), "Transcribing")
				err := env.orch.Retry(cmd.Context(), args[0])
				stopProgress()
				if err != nil {
					return err
				}
				return app.printOutcome(env, args[0])
			})
		},
	}
}

func newDeleteCmd(app *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withEnv(func(env *env) error {
				return env.orch.Delete(args[0])
			})
		},
	}
}

func newClearCmd(app *appState) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every recording",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.withEnv(func(env *env) error {
				if !force {
					ok, err := app.confirm("Delete all recordings? [y/N]: ")
					if err != nil {
						return err
					}
					if !ok {
						fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
						return nil
					}
				}
				return env.orch.Clear()
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Skip the confirmation prompt")

	return cmd
}

func newSweepCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Reclaim audio from recordings older than the retention age",
		Long:  "Reclaim audio from recordings older than the retention age. Transcripts, titles and metadata are kept; only the stored audio is removed.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.withEnv(func(env *env) error {
				swept, err := env.orch.SweepRetention()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reclaimed audio from %d recording(s).\n", swept)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&app.retention, "older-than", app.retention, "Minimum age before audio is reclaimed")

	return cmd
}

func (a *appState) confirm(prompt string) (bool, error) {
	fmt.Fprint(a.errWriter(), prompt)

	var line string
	if _, err := fmt.Fscanln(a.in, &line); err != nil {
		return false, nil
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
