package archive

import (
	"errors"
	"fmt"
)

var (
	// ErrCorruptArchive marks a member whose bytes could not be read.
	ErrCorruptArchive = errors.New("corrupt archive member")
	// ErrUnsupportedNesting marks an archive found inside an archive.
	ErrUnsupportedNesting = errors.New("nested archive not supported")
	// ErrEmptyArtifact marks an artifact with no bytes. The run still
	// completes with no records.
	ErrEmptyArtifact = errors.New("empty artifact")
	// ErrUnreadableArtifact aborts a run: no member could be opened at all.
	ErrUnreadableArtifact = errors.New("unreadable artifact")
)

// CorruptArchiveError reports one unreadable member. Unpacking continues
// with the next member.
type CorruptArchiveError struct {
	Entry string
	Err   error
}

func (e *CorruptArchiveError) Error() string {
	return fmt.Sprintf("corrupt archive member %q: %v", e.Entry, e.Err)
}

func (e *CorruptArchiveError) Unwrap() []error {
	return []error{ErrCorruptArchive, e.Err}
}

// UnsupportedNestingError reports an archive member that is itself an archive.
type UnsupportedNestingError struct {
	Entry string
}

func (e *UnsupportedNestingError) Error() string {
	return fmt.Sprintf("nested archive %q not supported", e.Entry)
}

func (e *UnsupportedNestingError) Unwrap() error {
	return ErrUnsupportedNesting
}

// EmptyArtifactError reports an artifact that carried no content.
type EmptyArtifactError struct {
	Entry string
}

func (e *EmptyArtifactError) Error() string {
	return fmt.Sprintf("artifact %q is empty", e.Entry)
}

func (e *EmptyArtifactError) Unwrap() error {
	return ErrEmptyArtifact
}
