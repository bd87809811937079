// Package cli glues configuration, adapters and the run controller together
// for the capture command.
package cli

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"strconv"
	"sync"

	"github.com/aretw0/capture/internal/config"
	"github.com/aretw0/capture/internal/logging"
	"github.com/aretw0/capture/internal/presentation/tui"
	"github.com/aretw0/capture/pkg/adapters/mcp"
	"github.com/aretw0/capture/pkg/domain"
	"github.com/aretw0/capture/pkg/runner"
)

// Mode selects how sessions are driven.
type Mode int

const (
	// ModeBrowser launches a local (or remote-debugging) Chrome per session.
	ModeBrowser Mode = iota
	// ModeRemote only ingests; browsers are opened by someone else.
	ModeRemote
)

// RunOptions controls the presentation of a run.
type RunOptions struct {
	Mode Mode
	// Out receives the banner, navigation hints and the summary. Defaults to stdout.
	Out io.Writer
	// Pretty enables terminal colors and markdown rendering.
	Pretty bool
	// OnReady is called with the server URL once sessions can submit.
	OnReady func(serverURL string)
}

// Execute runs one capture from cfg. An interrupt is a clean stop, not an error.
func Execute(ctx context.Context, cfg *config.Config, opts RunOptions) (domain.Status, error) {
	if err := cfg.Validate(); err != nil {
		return domain.Status{}, err
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	opts.Out = &syncWriter{w: opts.Out}

	logger, err := logging.FromConfig(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return domain.Status{}, err
	}

	sm := runner.NewSignalManager(ctx)
	defer sm.Stop()

	runID, err := resolveRunID(cfg, logger)
	if err != nil {
		return domain.Status{}, err
	}

	counter, closeCounter, err := createCounter(sm.Context(), cfg, runID)
	if err != nil {
		return domain.Status{}, err
	}
	defer closeCounter()

	hooks, metrics := createObservability(cfg, logger)

	target := cfg.TargetURL()
	r, err := runner.New(runner.Config{
		Run:            domain.RunContext{RunID: runID, OutputRoot: cfg.Output},
		Host:           cfg.Host,
		Port:           cfg.Port,
		Target:         target,
		Filter:         cfg.Target.Filter,
		Sessions:       cfg.SessionIDs(),
		Parallel:       cfg.Parallel,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}, createLauncher(cfg, opts.Mode, opts.Out, logger),
		runner.WithLogger(logger),
		runner.WithCounter(counter),
		runner.WithCaptureHooks(hooks),
		runner.WithMetrics(metrics),
		runner.WithWriter(createWriter(cfg)),
	)
	if err != nil {
		return domain.Status{}, err
	}

	bgCtx, stopBackground := context.WithCancel(sm.Context())
	var background sync.WaitGroup
	defer background.Wait()
	defer stopBackground()

	background.Add(1)
	go func() {
		defer background.Done()
		select {
		case url := <-r.Ready():
			if opts.Pretty {
				tui.PrintBanner(opts.Out, runID, url, cfg.SessionIDs())
			} else {
				printSystemMessage(opts.Out, "Capture server on %s", url)
			}
			if opts.OnReady != nil {
				opts.OnReady(url)
			}
		case <-bgCtx.Done():
		}
	}()

	if cfg.MCPPort > 0 {
		srv := mcp.NewServer(r.Service(), mcp.WithLogger(logger))
		addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.MCPPort))
		background.Add(1)
		go func() {
			defer background.Done()
			if err := srv.ServeSSE(bgCtx, addr); err != nil {
				logger.Error("MCP Server execution failed", "err", err)
			}
		}()
	}

	status, err := r.Run(sm.Context())
	printSummary(opts, status)

	if errors.Is(err, context.Canceled) && sm.Interrupted() {
		logger.Info("Run interrupted", "active", status.Active)
		return status, nil
	}
	return status, err
}

func printSummary(opts RunOptions, st domain.Status) {
	md := tui.SummaryMarkdown(st)
	if opts.Pretty {
		if out, err := tui.NewRenderer()(md); err == nil {
			md = out
		}
	}
	io.WriteString(opts.Out, md)
}
