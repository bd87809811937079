package domain

import "path/filepath"

// Artifact is a captured image submitted by a session.
// It lives only for the duration of one submission.
type Artifact struct {
	SessionID string
	Group     string
	Data      []byte
}

// Verdict is the answer of the deduplicator.
type Verdict int

const (
	VerdictAccepted Verdict = iota
	VerdictDuplicate
)

func (v Verdict) String() string {
	if v == VerdictDuplicate {
		return "duplicate"
	}
	return "accepted"
}

// Outcome is the result of a submission as reported to the caller.
type Outcome string

const (
	OutcomeStored    Outcome = "stored"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailed    Outcome = "failed"
)

// Destination is the on-disk location allocated to an accepted artifact.
type Destination struct {
	Dir  string
	File string
	Seq  int64
}

// Path joins the directory and the file name.
func (d Destination) Path() string {
	return filepath.Join(d.Dir, d.File)
}

// Receipt describes what happened to one submission.
type Receipt struct {
	SessionID   string
	Group       string
	Outcome     Outcome
	Destination Destination
	Bytes       int
}
