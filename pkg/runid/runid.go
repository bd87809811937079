// Package runid resolves the identifier of a capture run.
//
// The identifier is the short hash of the HEAD commit of the repository under
// test, so screenshots of the same revision land in the same directory. Outside
// a repository (or before the first commit) a random UUID is used instead.
package runid

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/google/uuid"
)

// ShortHashLen is the number of hex digits kept from the commit hash.
const ShortHashLen = 8

// Source tells where a run id came from.
type Source string

const (
	SourceGit  Source = "git"
	SourceUUID Source = "uuid"
)

// ID is a resolved run identifier.
type ID struct {
	Value  string
	Source Source
}

func (id ID) String() string {
	return id.Value
}

type options struct {
	dirtySuffix bool
	newUUID     func() string
}

// Option configures Resolve.
type Option func(*options)

// WithDirtySuffix appends "-dirty" when the worktree has uncommitted changes.
func WithDirtySuffix() Option {
	return func(o *options) {
		o.dirtySuffix = true
	}
}

// WithUUIDFunc replaces the fallback generator.
func WithUUIDFunc(fn func() string) Option {
	return func(o *options) {
		o.newUUID = fn
	}
}

// Resolve returns the run id for the repository containing dir.
// Errors other than "not a repository" and "no commits yet" are returned.
func Resolve(dir string, opts ...Option) (ID, error) {
	o := options{newUUID: uuid.NewString}
	for _, opt := range opts {
		opt(&o)
	}

	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{
		DetectDotGit: true,
	})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return ID{Value: o.newUUID(), Source: SourceUUID}, nil
	}
	if err != nil {
		return ID{}, fmt.Errorf("open repository: %w", err)
	}

	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return ID{Value: o.newUUID(), Source: SourceUUID}, nil
	}
	if err != nil {
		return ID{}, fmt.Errorf("get HEAD: %w", err)
	}

	value := head.Hash().String()[:ShortHashLen]
	if o.dirtySuffix {
		dirty, err := isDirty(repo)
		if err != nil {
			return ID{}, err
		}
		if dirty {
			value += "-dirty"
		}
	}
	return ID{Value: value, Source: SourceGit}, nil
}

func isDirty(repo *git.Repository) (bool, error) {
	wt, err := repo.Worktree()
	if errors.Is(err, git.ErrIsBareRepository) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return false, fmt.Errorf("worktree status: %w", err)
	}
	return !status.IsClean(), nil
}
