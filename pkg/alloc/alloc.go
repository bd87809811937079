// Package alloc derives collision-free destinations for accepted artifacts.
//
// Layout: <outputRoot>/<runID>/<sessionID>/<group><seq>.png
//
// Sequence numbers come from a run-scoped counter keyed by the file stem of the
// group, so every session submitting under the same group shares one numbering.
package alloc

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/aretw0/capture/pkg/domain"
	"github.com/aretw0/capture/pkg/ports"
)

// maxStemLen bounds the group part of a file name.
const maxStemLen = 100

var (
	unsafeChars   = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
	safeSegment   = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
	trailingDigit = regexp.MustCompile(`[0-9]$`)
)

// Allocator hands out destinations under one output root.
type Allocator struct {
	root    string
	counter ports.SequenceCounter
}

// New creates an Allocator writing under root.
func New(root string, counter ports.SequenceCounter) *Allocator {
	return &Allocator{root: root, counter: counter}
}

// Root returns the output root.
func (a *Allocator) Root() string {
	return a.root
}

// Allocate reserves the next destination for group within the session directory.
// The sequence number is the post-increment value of the group counter.
func (a *Allocator) Allocate(ctx context.Context, runID, sessionID, group string) (domain.Destination, error) {
	if err := ValidateSegment(runID); err != nil {
		return domain.Destination{}, fmt.Errorf("run id: %w", err)
	}
	if err := ValidateSegment(sessionID); err != nil {
		return domain.Destination{}, fmt.Errorf("session id: %w", err)
	}

	stem := Stem(group)
	seq, err := a.counter.Next(ctx, stem)
	if err != nil {
		return domain.Destination{}, fmt.Errorf("failed to allocate sequence for %q: %w", stem, err)
	}

	return domain.Destination{
		Dir:  filepath.Join(a.root, runID, sessionID),
		File: fmt.Sprintf("%s%d%s", stem, seq, domain.ImageExt),
		Seq:  seq,
	}, nil
}

// ValidateSegment checks that name can be used verbatim as one path segment.
func ValidateSegment(name string) error {
	if name == "" || name == "." || name == ".." || !safeSegment.MatchString(name) {
		return fmt.Errorf("%w: %q", domain.ErrInvalidName, name)
	}
	return nil
}

// Stem turns a caller-supplied group into a safe file name prefix.
// Unsafe characters become '_'. A stem never ends with a digit, so
// "<stem><seq>" cannot be produced by two different stems.
func Stem(group string) string {
	if group == "" {
		group = domain.DefaultGroup
	}
	s := unsafeChars.ReplaceAllString(group, "_")
	if len(s) > maxStemLen {
		s = s[:maxStemLen]
	}
	if s == "." || s == ".." {
		s = "_"
	}
	if trailingDigit.MatchString(s) {
		s += "_"
	}
	return s
}
