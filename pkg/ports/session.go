package ports

import "context"

// Session is the automation handle of one capture client.
// The session registry owns every Session; other components only borrow it.
type Session interface {
	// Navigate points the session at the given URL.
	Navigate(ctx context.Context, url string) error

	// Capture takes a screenshot of the current page and returns the image bytes.
	Capture(ctx context.Context) ([]byte, error)

	// Close releases the underlying automation resources. It is called exactly once.
	Close() error
}

// Launcher creates sessions.
type Launcher interface {
	// Launch starts a new session identified by id.
	Launch(ctx context.Context, id string) (Session, error)
}

// LauncherFunc adapts a function to the Launcher interface.
type LauncherFunc func(ctx context.Context, id string) (Session, error)

// Launch calls f(ctx, id).
func (f LauncherFunc) Launch(ctx context.Context, id string) (Session, error) {
	return f(ctx, id)
}
