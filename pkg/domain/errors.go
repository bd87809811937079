package domain

import (
	"errors"
	"fmt"
)

// ErrUnknownSession is returned when a request references a session that is not registered.
var ErrUnknownSession = errors.New("unknown session")

// ErrDuplicateSession is returned when a session ID is registered twice.
var ErrDuplicateSession = errors.New("session already registered")

// ErrDuplicateArtifact marks a submission rejected because it equals the previous one.
// It is an expected outcome, not a failure.
var ErrDuplicateArtifact = errors.New("duplicate artifact")

// ErrEmptyArtifact is returned when neither the request nor the session produced image bytes.
var ErrEmptyArtifact = errors.New("empty artifact")

// ErrInvalidName is returned when a run, session or group name cannot be used as a path segment.
var ErrInvalidName = errors.New("invalid name")

// ErrIO wraps directory creation and file write failures.
var ErrIO = errors.New("artifact i/o failure")

// ListenError is returned when the ingestion endpoint cannot bind its address.
// It is fatal to the run and carries a message meant for the user.
type ListenError struct {
	URL string
	Err error
}

func (e *ListenError) Error() string {
	return fmt.Sprintf("capture server failed on %s. It is either in use or you do not have permission", e.URL)
}

func (e *ListenError) Unwrap() error {
	return e.Err
}
