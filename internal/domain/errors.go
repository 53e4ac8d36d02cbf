package domain

import "errors"

var (
	// ErrInvariant marks a structural contract violation. It is never retried or swallowed.
	ErrInvariant = errors.New("invariant violation")

	// ErrTransient marks a remote failure that the next scheduled tick may retry.
	ErrTransient = errors.New("transient remote failure")
)

// IsTransient reports whether err is worth retrying on the next tick.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
