package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fakeyudi/howl/internal/narrate"
	"github.com/fakeyudi/howl/internal/segment"
	"github.com/fakeyudi/howl/internal/session"
)

var (
	stepsDebug bool
	stepsMerge bool
)

// promptPreview is the --debug dump of what generate would send.
type promptPreview struct {
	Session string        `yaml:"session"`
	Context string        `yaml:"context"`
	Steps   []stepPreview `yaml:"steps"`
}

type stepPreview struct {
	segment.StepCandidate `yaml:",inline"`
	Shortcuts             []string `yaml:"shortcuts,omitempty"`
	Prompt                string   `yaml:"prompt"`
}

var stepsCmd = &cobra.Command{
	Use:   "steps [session-id]",
	Short: "Show the steps detected in a recording without calling the backend",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := session.NewSessionStore()
		if err != nil {
			return err
		}
		s, err := loadSession(store, args)
		if err != nil {
			return err
		}
		steps, err := segment.Segment(s)
		if err != nil {
			return err
		}
		if stepsMerge {
			window := GetConfig().MergeWindow()
			if window <= 0 {
				window = segment.DefaultMergeWindow
			}
			steps = segment.MergeAdjacent(steps, window)
		}

		if stepsDebug {
			preview := promptPreview{Session: s.ID, Context: narrate.ContextPrompt(s)}
			for i, c := range steps {
				req := narrate.Request{Current: c, StepNumber: c.Index}
				if i > 0 {
					req.Previous = &steps[i-1]
				}
				preview.Steps = append(preview.Steps, stepPreview{
					StepCandidate: c,
					Shortcuts:     segment.Shortcuts(c),
					Prompt:        narrate.StepPrompt(req),
				})
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(preview)
		}

		cmd.Printf("%d steps in session %s\n\n", len(steps), s.ID)
		for _, c := range steps {
			cmd.Printf("%3d. [%s] %s\n", c.Index, c.Timestamp.Format("15:04:05"), c.WindowTitle)
			if c.TextEntered != "" {
				cmd.Printf("     typed: %q\n", c.TextEntered)
			}
			if sc := segment.Shortcuts(c); len(sc) > 0 {
				cmd.Printf("     keys:  %s\n", strings.Join(sc, ", "))
			}
		}
		return nil
	},
}

func init() {
	stepsCmd.Flags().BoolVar(&stepsDebug, "debug", false, "dump steps and their backend prompts as YAML")
	stepsCmd.Flags().BoolVar(&stepsMerge, "merge", false, "fold steps that are close together in the same window")
	rootCmd.AddCommand(stepsCmd)
}
