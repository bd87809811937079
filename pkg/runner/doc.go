/*
Package runner implements the run controller of a capture run.

It binds the ingestion endpoint, launches one browser session per configured
client, points every session at the test page and waits until all of them have
reported completion. The listener is always bound before any session is told
where to send its screenshots.

# Key Components

  - Runner: Owns the HTTP server, the ingestion service and the session launch.
  - NavigationURL: Builds the test page URL carrying the capture parameters.
  - SignalManager: Turns SIGINT/SIGTERM into context cancellation for the CLI.

# Usage

	r, err := runner.New(runner.Config{
		Run:      domain.RunContext{RunID: id, OutputRoot: "screenshots"},
		Port:     4300,
		Target:   "http://localhost:4200/tests",
		Sessions: []string{"chrome"},
	}, chromedp.NewLauncher())
	if err != nil {
		log.Fatal(err)
	}

	status, err := r.Run(ctx)
*/
package runner
