package cmd

import (
	"github.com/spf13/cobra"
)

var cacheClearAll bool

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear cached narrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCache()
		if err != nil {
			return err
		}
		defer c.Close()
		n, err := c.Len(cmd.Context())
		if err != nil {
			return err
		}
		cmd.Printf("%d cached narrations\n", n)
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop cached narrations for the configured model (or all with --all)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCache()
		if err != nil {
			return err
		}
		defer c.Close()
		scope := GetConfig().Scope()
		if cacheClearAll {
			scope = ""
		}
		n, err := c.Clear(cmd.Context(), scope)
		if err != nil {
			return err
		}
		cmd.Printf("removed %d cached narrations\n", n)
		return nil
	},
}

func init() {
	cacheClearCmd.Flags().BoolVar(&cacheClearAll, "all", false, "clear every model's narrations")
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
