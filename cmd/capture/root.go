package main

import (
	"fmt"
	"os"

	"github.com/aretw0/capture/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture collects screenshots posted by browser test sessions",
	Long: `Capture starts an HTTP endpoint, opens one browser session per configured
client on the test page, and stores every screenshot the page posts under
<output>/<run id>/<session>/<group><n>.png until all sessions are done.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the config file (default ./"+config.DefaultFile+")")
	rootCmd.PersistentFlags().String("repo", "", "Repository whose HEAD names the run")
	rootCmd.PersistentFlags().String("run-id", "", "Explicit run id (overrides the repository HEAD)")
}

// loadConfig reads the config file and applies the flags the user set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("repo") {
		cfg.Repo, _ = flags.GetString("repo")
	}
	if flags.Changed("run-id") {
		cfg.RunID, _ = flags.GetString("run-id")
	}
	if flags.Lookup("host") != nil && flags.Changed("host") {
		cfg.Host, _ = flags.GetString("host")
	}
	if flags.Lookup("port") != nil && flags.Changed("port") {
		cfg.Port, _ = flags.GetInt("port")
	}
	if flags.Lookup("output") != nil && flags.Changed("output") {
		cfg.Output, _ = flags.GetString("output")
	}
	if flags.Lookup("session") != nil && flags.Changed("session") {
		ids, _ := flags.GetStringSlice("session")
		cfg.Sessions = cfg.Sessions[:0]
		for _, id := range ids {
			cfg.Sessions = append(cfg.Sessions, config.Session{ID: id, Headless: true})
		}
	}
	if flags.Lookup("target") != nil && flags.Changed("target") {
		cfg.Target.URL, _ = flags.GetString("target")
		cfg.Target.TestPage = ""
	}
	if flags.Lookup("filter") != nil && flags.Changed("filter") {
		cfg.Target.Filter, _ = flags.GetString("filter")
	}
	if flags.Lookup("metrics") != nil && flags.Changed("metrics") {
		cfg.Metrics, _ = flags.GetBool("metrics")
	}
	if flags.Lookup("mcp-port") != nil && flags.Changed("mcp-port") {
		cfg.MCPPort, _ = flags.GetInt("mcp-port")
	}
	if flags.Lookup("counter") != nil && flags.Changed("counter") {
		cfg.Counter.Backend, _ = flags.GetString("counter")
	}
	if flags.Lookup("redis-addr") != nil && flags.Changed("redis-addr") {
		cfg.Counter.Redis.Addr, _ = flags.GetString("redis-addr")
	}
	if flags.Lookup("log-level") != nil && flags.Changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}
	if flags.Lookup("log-format") != nil && flags.Changed("log-format") {
		cfg.Log.Format, _ = flags.GetString("log-format")
	}
	return cfg, nil
}

// addRunFlags registers the flags shared by run and serve.
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("host", "", "Host the capture server binds")
	cmd.Flags().IntP("port", "p", 0, "Port the capture server binds")
	cmd.Flags().StringP("output", "o", "", "Root directory for screenshots")
	cmd.Flags().StringSliceP("session", "s", nil, "Session ids (repeatable, replaces the configured sessions)")
	cmd.Flags().String("target", "", "Full URL of the test page")
	cmd.Flags().String("filter", "", "Test filter passed to the page")
	cmd.Flags().Bool("metrics", false, "Serve Prometheus metrics on /metrics")
	cmd.Flags().Int("mcp-port", 0, "Serve the MCP status endpoint (SSE) on this port")
	cmd.Flags().String("counter", "", "Sequence counter backend: memory or redis")
	cmd.Flags().String("redis-addr", "", "Redis address for the redis counter")
	cmd.Flags().String("log-level", "", "Log level: debug, info, warn, error")
	cmd.Flags().String("log-format", "", "Log format: text or json")
}
