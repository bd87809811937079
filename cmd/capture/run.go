package main

import (
	"os"

	"github.com/aretw0/capture/internal/cli"
	"github.com/aretw0/capture/internal/presentation/tui"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Launch browser sessions and collect their screenshots",
	Long: `Starts the capture server, launches one Chrome session per configured
client, points each at the test page and waits until every session posts /done.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return execute(cmd, cli.ModeBrowser)
	},
}

func execute(cmd *cobra.Command, mode cli.Mode) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	_, err = cli.Execute(cmd.Context(), cfg, cli.RunOptions{
		Mode:   mode,
		Out:    cmd.OutOrStdout(),
		Pretty: tui.IsTerminal(os.Stdout),
	})
	return err
}

func init() {
	rootCmd.AddCommand(runCmd)
	addRunFlags(runCmd)
}
