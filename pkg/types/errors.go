package types

import "errors"

// Error categories. Component errors wrap one of these so callers can
// branch with errors.Is.
var (
	// ErrInput is returned when the chosen file is missing or not an image.
	// It is raised before any network call.
	ErrInput = errors.New("invalid input")

	// ErrValidation is returned when an operation is refused locally.
	// No state is mutated.
	ErrValidation = errors.New("validation failed")

	// ErrNetwork marks a failed call to a collaborator. The session state
	// is unchanged and the call may be retried.
	ErrNetwork = errors.New("network request failed")

	// ErrStaleResult marks a deferred result whose context was superseded.
	// Callers drop it without telling the user.
	ErrStaleResult = errors.New("stale result discarded")
)
