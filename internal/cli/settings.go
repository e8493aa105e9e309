package cli

import (
	"fmt"
	"strings"

	"github.com/fmueller/voicebox/internal/prefs"
	"github.com/spf13/cobra"
)

func newSettingsCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Inspect and change settings",
	}

	cmd.AddCommand(newSettingsGetCmd(app))
	cmd.AddCommand(newSettingsSetCmd(app))
	cmd.AddCommand(newSettingsTestCmd(app))

	return cmd
}

func newSettingsGetCmd(app *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "get [key]",
		Short: "Print one setting, or all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withEnv(func(env *env) error {
				if len(args) == 1 {
					value, err := env.settings.Get(args[0])
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), displayValue(args[0], value))
					return nil
				}

				for _, key := range prefs.ValidKeys() {
					value, err := env.settings.Get(key)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", key, displayValue(key, value))
				}
				return nil
			})
		},
	}
}

func newSettingsSetCmd(app *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: fmt.Sprintf("Change a setting (%s)", strings.Join(prefs.ValidKeys(), ", ")),
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return app.withEnv(func(env *env) error {
				return env.settings.Set(args[0], args[1])
			})
		},
	}
}

func newSettingsTestCmd(app *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Verify the configured API credential against the transcription service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.withEnv(func(env *env) error {
				p, err := env.settings.Load()
				if err != nil {
					return err
				}

				stopProgress := startSpinner(app.progressEnabled(), "Testing credential")
				err = env.tester.TestCredential(cmd.Context(), p.APIKey)
				stopProgress()
				if err != nil {
					return fmt.Errorf("credential test failed: %w", err)
				}

				fmt.Fprintln(cmd.OutOrStdout(), "Credential works.")
				return nil
			})
		},
	}
}

// displayValue masks the credential so it never lands in a terminal
// scrollback in full.
func displayValue(key, value string) string {
	if key != prefs.KeyAPIKey || value == "" {
		return value
	}
	if len(value) <= 8 {
		return strings.Repeat("*", len(value))
	}
	return value[:4] + strings.Repeat("*", 4) + value[len(value)-4:]
}
