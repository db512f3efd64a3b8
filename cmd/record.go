package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/howl/internal/capture"
	"github.com/fakeyudi/howl/internal/pipeline"
	"github.com/fakeyudi/howl/internal/platform"
	"github.com/fakeyudi/howl/internal/session"
	"github.com/fakeyudi/howl/internal/tui"
)

var recordFor time.Duration

// newPlatform is swapped out by tests.
var newPlatform = platform.New

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record clicks, typing, window changes and screenshots until Ctrl+C",
	RunE: func(cmd *cobra.Command, args []string) error {
		plat, err := newPlatform()
		if err != nil {
			return fmt.Errorf("cannot record: %w", err)
		}
		store, err := session.NewSessionStore()
		if err != nil {
			return err
		}
		conf := GetConfig()
		rec := capture.NewRecorder(plat, store,
			capture.WithLogger(logger),
			capture.WithWindowPollInterval(conf.WindowPollInterval()),
			capture.WithScreenshotInterval(conf.ScreenshotInterval()),
		)
		o := pipeline.New(nil,
			pipeline.WithRecorder(rec),
			pipeline.WithStore(store),
			pipeline.WithLogger(logger),
		)
		out := cmd.OutOrStdout()
		o.OnProgress(tui.PlainProgress(out))

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if recordFor > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, recordFor)
			defer cancel()
		}

		s, err := o.StartRecording(ctx)
		if err != nil {
			return err
		}

		var frames atomic.Int64
		live := interactive(cmd)
		go func() {
			err := capture.WatchFrames(ctx, s.FramesDir(), func(string) {
				n := frames.Add(1)
				if live {
					fmt.Fprintf(out, "\r  %d frames captured", n)
				}
			})
			if err != nil {
				logger.Debug("frame watcher stopped", "err", err)
			}
		}()
		if recordFor > 0 {
			fmt.Fprintf(out, "Recording for %s. Press Ctrl+C to stop early.\n", recordFor)
		} else {
			fmt.Fprintln(out, "Press Ctrl+C to stop.")
		}

		<-ctx.Done()
		if live {
			fmt.Fprintln(out)
		}
		s, err = o.StopRecording()
		if err != nil {
			return err
		}
		fs, err := s.Frames()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Session %s saved with %d frames. Run 'howl generate' to write the guide.\n", s.ID, len(fs))
		return nil
	},
}

func init() {
	recordCmd.Flags().DurationVarP(&recordFor, "duration", "d", 0, "stop automatically after this long")
	rootCmd.AddCommand(recordCmd)
}
