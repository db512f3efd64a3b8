package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/howl/internal/config"
	"github.com/fakeyudi/howl/internal/profile"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Configure howl (re-run anytime to edit settings)",
	// Bypass the normal PersistentPreRunE so setup works before profile exists.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetup(cmd)
	},
}

// runSetup runs the interactive setup wizard on the command's streams.
func runSetup(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()

	var existing *profile.Profile
	if profile.Exists() {
		if p, err := profile.Load(); err == nil {
			existing = p
		}
	}

	res, err := profile.RunSetup(cmd.InOrStdin(), out, existing)
	if err != nil {
		return fmt.Errorf("setup cancelled: %w", err)
	}
	if err := profile.Save(res.Profile); err != nil {
		return fmt.Errorf("saving profile: %w", err)
	}
	fmt.Fprintln(out, "  ✓ Profile saved.")

	if res.GeminiKey != "" {
		dir, err := config.Dir()
		if err != nil {
			return err
		}
		envFile := filepath.Join(dir, ".env")
		if err := config.SaveSecret(envFile, config.EnvGeminiKey, res.GeminiKey); err != nil {
			fmt.Fprintf(out, "  ⚠ Could not store the API key: %v\n", err)
			fmt.Fprintf(out, "    Set %s in your environment instead.\n", config.EnvGeminiKey)
		} else {
			fmt.Fprintf(out, "  ✓ API key stored in %s\n", envFile)
		}
	}

	fmt.Fprintln(out, "  Setup complete. Run 'howl record' to capture your first guide.")
	fmt.Fprintln(out)
	return nil
}

func init() {
	rootCmd.AddCommand(setupCmd)
}
