package domain

// SessionState tracks a session through Active -> Closing -> Closed.
type SessionState string

const (
	SessionActive  SessionState = "active"  // Accepts submissions
	SessionClosing SessionState = "closing" // Removed from the registry, handle being closed
	SessionClosed  SessionState = "closed"  // Terminal
)
