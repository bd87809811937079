package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/capture"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of capture",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "capture version %s\n", strings.TrimSpace(capture.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
