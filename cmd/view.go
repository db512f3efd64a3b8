package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/howl/internal/guide"
	"github.com/fakeyudi/howl/internal/tui"
)

var plainOutput bool

var viewCmd = &cobra.Command{
	Use:   "view <file>",
	Short: "View an exported guide (markdown, json or html)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("file not found: %s", path)
			}
			return err
		}

		g, err := guide.ParserFor(path).Parse(data)
		if err != nil {
			return err
		}

		if plainOutput || !interactive(cmd) {
			printGuide(cmd.OutOrStdout(), g)
			return nil
		}
		return tui.Run(g, path)
	},
}

// printGuide writes a plain-text rendering of g.
func printGuide(w io.Writer, g *guide.Guide) {
	fmt.Fprintf(w, "## %s\n", g.Title)
	if g.Summary != "" {
		fmt.Fprintf(w, "  %s\n", g.Summary)
	}
	fmt.Fprintf(w, "  Recorded:  %s\n", g.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(w, "  Duration:  %s\n", g.Duration)
	if len(g.Applications) > 0 {
		fmt.Fprintf(w, "  Apps:      %s\n", strings.Join(g.Applications, ", "))
	}
	if g.Author != "" {
		fmt.Fprintf(w, "  Author:    %s\n", g.Author)
	}
	fmt.Fprintln(w)

	if len(g.Prerequisites) > 0 {
		fmt.Fprintln(w, "## Prerequisites")
		for _, p := range g.Prerequisites {
			fmt.Fprintf(w, "  - %s\n", p)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "## Steps")
	if len(g.Steps) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, s := range g.Steps {
		fmt.Fprintf(w, "  %d. %s\n", s.Number, s.Instruction)
		if s.Screenshot != "" {
			fmt.Fprintf(w, "     [%s]\n", s.Screenshot)
		}
	}
	fmt.Fprintln(w)
}

func init() {
	viewCmd.Flags().BoolVar(&plainOutput, "plain", false, "plain text output instead of TUI")
	rootCmd.AddCommand(viewCmd)
}
