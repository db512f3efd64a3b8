package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/howl/internal/guide"
	"github.com/fakeyudi/howl/internal/pipeline"
	"github.com/fakeyudi/howl/internal/session"
	"github.com/fakeyudi/howl/internal/tui"
)

var (
	generateOutput  string
	generateFormat  string
	generateRefine  bool
	generateWhole   bool
	generateNoCache bool
)

var generateCmd = &cobra.Command{
	Use:   "generate [session-id]",
	Short: "Narrate a recording with the AI backend and export the guide",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conf := GetConfig()
		format := generateFormat
		if format == "" {
			format = conf.DefaultFormat
		}
		if !slices.Contains(guide.Formats, format) {
			return fmt.Errorf("%w %q", guide.ErrUnknownFormat, format)
		}

		store, err := session.NewSessionStore()
		if err != nil {
			return err
		}
		s, err := loadSession(store, args)
		if err != nil {
			return err
		}

		n, closeCache, err := newNarrator(!generateNoCache)
		if err != nil {
			return err
		}
		defer closeCache()

		opts := []pipeline.Option{
			pipeline.WithLogger(logger),
			pipeline.WithRefinement(generateRefine || conf.RefineEnabled()),
			pipeline.WithWholeGuide(generateWhole),
			pipeline.WithMergeWindow(conf.MergeWindow()),
		}
		if p := GetProfile(); p != nil && p.Name != "" {
			opts = append(opts, pipeline.WithAuthor(p.Name))
		}
		o := pipeline.New(n, opts...)

		path := outputPath(generateOutput, conf.OutputDir, s, format)
		var partial *pipeline.Result
		run := func(ctx context.Context, report pipeline.ProgressListener) error {
			o.OnProgress(report)
			res, err := o.Generate(ctx, s)
			if err != nil {
				partial = res
				var stepErr *pipeline.StepError
				if errors.As(err, &stepErr) && res != nil {
					logger.Warn("generation stopped early", "step", stepErr.Step, "narrated", len(res.Instructions))
				}
				return err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			return o.Export(ctx, res, path, format)
		}

		if interactive(cmd) {
			err = tui.RunProgress(cmd.Context(), run)
		} else {
			err = run(cmd.Context(), tui.PlainProgress(cmd.OutOrStdout()))
		}
		if err != nil {
			printPartial(cmd.OutOrStdout(), partial)
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Guide written to %s\n", path)
		return nil
	},
}

// printPartial lists the instructions narrated before generation stopped.
// It runs after the progress display has released the terminal.
func printPartial(w io.Writer, res *pipeline.Result) {
	if res == nil || len(res.Instructions) == 0 {
		return
	}
	fmt.Fprintf(w, "Generation stopped after %d of %d steps. Completed instructions:\n", len(res.Instructions), len(res.Steps))
	for _, in := range res.Instructions {
		fmt.Fprintf(w, "  %d. %s\n", in.StepNumber, in.Instruction)
		if in.Screenshot != "" {
			fmt.Fprintf(w, "     [%s]\n", in.Screenshot)
		}
	}
}

// outputPath resolves where the guide is written. An explicit -o wins;
// otherwise the file is named after the recording time inside dir.
func outputPath(explicit, dir string, s *session.Session, format string) string {
	if explicit != "" {
		return explicit
	}
	if dir == "" {
		dir = "."
	}
	name := "guide-" + s.StartTime.Format("20060102-150405") + guide.Ext(format)
	return filepath.Join(dir, name)
}

func init() {
	generateCmd.Flags().StringVarP(&generateOutput, "output", "o", "", "output file (default <output_dir>/guide-<time>.<ext>)")
	generateCmd.Flags().StringVarP(&generateFormat, "format", "f", "", "markdown, json, html or zip (default from config)")
	generateCmd.Flags().BoolVar(&generateRefine, "refine", false, "run a consistency pass over all instructions")
	generateCmd.Flags().BoolVar(&generateWhole, "whole", false, "narrate the whole guide in one backend request")
	generateCmd.Flags().BoolVar(&generateNoCache, "no-cache", false, "skip the narration cache")
	rootCmd.AddCommand(generateCmd)
}
