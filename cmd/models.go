package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/howl/internal/narrate"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models offered by the configured backend",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		n, closeCache, err := newNarrator(false)
		if err != nil {
			return err
		}
		defer closeCache()

		lister, ok := narrate.Capability[narrate.ModelLister](n)
		if !ok {
			return fmt.Errorf("backend %q cannot list models", GetConfig().Backend)
		}
		models, err := lister.ListModels(cmd.Context())
		if err != nil {
			return err
		}
		if len(models) == 0 {
			cmd.Println("no models available")
			return nil
		}
		for _, m := range models {
			cmd.Println(m)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}
