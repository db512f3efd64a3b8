package cmd

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/howl/internal/narrate"
	"github.com/fakeyudi/howl/internal/session"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List recorded sessions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := session.NewSessionStore()
		if err != nil {
			return err
		}
		sessions, err := store.List()
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			cmd.Println("no recorded sessions")
			return nil
		}
		if statusLimit > 0 && len(sessions) > statusLimit {
			sessions = sessions[:statusLimit]
		}

		for _, s := range sessions {
			clicks, windows, keys := s.Counts()
			frames, err := s.Frames()
			if err != nil {
				return err
			}
			cmd.Printf("%s\n", s.ID)
			cmd.Printf("  Started: %s\n", s.StartTime.Format(time.RFC3339))
			cmd.Printf("  Duration: %s\n", narrate.FormatDuration(s.Duration()))
			cmd.Printf("  Clicks: %d  Window changes: %d  Keystrokes: %d  Frames: %d\n", clicks, windows, keys, len(frames))
			if apps := s.Applications(); len(apps) > 0 {
				cmd.Printf("  Applications: %s\n", strings.Join(apps, ", "))
			}
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().IntVarP(&statusLimit, "limit", "n", 10, "show at most this many sessions (0 for all)")
	rootCmd.AddCommand(statusCmd)
}
