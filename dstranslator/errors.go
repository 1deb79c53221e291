package dstranslator

import (
	"errors"
	"fmt"
)

var (
	// ErrEventNotFound indicates a cancel target that doesn't exist as a
	// pending event - already fired, already cancelled, or never created.
	// All three read the same to the user; logs carry the distinction.
	ErrEventNotFound = errors.New("event not found")

	// ErrEmptySourceText indicates a translation was requested for a
	// message with no translatable content.
	ErrEmptySourceText = errors.New("nothing to translate")
)

// UsageError indicates malformed command input - a missing reply target,
// a bad date format, a timestamp in the past. The Hint is sent to the
// invoking channel verbatim, and the error never propagates further.
type UsageError struct {
	Hint string
}

func (e UsageError) Error() string {
	return e.Hint
}

func usageError(format string, args ...any) UsageError {
	return UsageError{Hint: fmt.Sprintf(format, args...)}
}

// ProviderError wraps a failed translation provider call - auth, quota,
// network, timeout, or a response the JSON extractor couldn't make sense
// of. The user sees a single generic notice; the wrapped error goes to
// the logs.
type ProviderError struct {
	Err error
}

func (e ProviderError) Error() string {
	return fmt.Sprintf("translation provider: %s", e.Err)
}

func (e ProviderError) Unwrap() error {
	return e.Err
}
