package main

import (
	"fmt"

	"github.com/aretw0/capture/pkg/runid"
	"github.com/spf13/cobra"
)

var runIDCmd = &cobra.Command{
	Use:   "runid",
	Short: "Print the run id screenshots would be stored under",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.RunID != "" {
			fmt.Fprintln(cmd.OutOrStdout(), cfg.RunID)
			return nil
		}
		id, err := runid.Resolve(cfg.Repo)
		if err != nil {
			return err
		}
		verbose, _ := cmd.Flags().GetBool("verbose")
		if verbose {
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", id.Value, id.Source)
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), id.Value)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runIDCmd)
	runIDCmd.Flags().BoolP("verbose", "v", false, "Also print where the id came from")
}
