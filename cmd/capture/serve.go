package main

import (
	"github.com/aretw0/capture/internal/cli"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Collect screenshots from browsers opened elsewhere",
	Long: `Starts the capture server without launching browsers. The URL each
session must open is printed; the run ends when every session posts /done
or on interrupt.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return execute(cmd, cli.ModeRemote)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	addRunFlags(serveCmd)
}
