package domain

// RunContext identifies one run. It is resolved once at startup and never mutated.
type RunContext struct {
	RunID      string
	OutputRoot string
}

// SessionStats counts the outcomes recorded for one session.
type SessionStats struct {
	State      SessionState `json:"state"`
	Stored     int          `json:"stored"`
	Duplicates int          `json:"duplicates"`
	Failures   int          `json:"failures"`
}

// Status is a read-only snapshot of the run.
type Status struct {
	RunID      string                  `json:"run_id"`
	OutputRoot string                  `json:"output_root"`
	Configured []string                `json:"configured"`
	Active     []string                `json:"active"`
	Complete   bool                    `json:"complete"`
	Sessions   map[string]SessionStats `json:"sessions"`
}
