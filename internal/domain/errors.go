package domain

import "errors"

// Error taxonomy shared by every layer. Callers wrap these with fmt.Errorf and
// test for them with errors.Is.
var (
	// ErrNotFound marks a missing room, appliance or canonical device. Never
	// retried automatically.
	ErrNotFound = errors.New("not found")

	// ErrTransientIO marks a network or storage failure that may succeed later.
	ErrTransientIO = errors.New("transient i/o failure")

	// ErrPrecondition marks a request that is invalid in the current state, such
	// as away mode while the door is unlocked.
	ErrPrecondition = errors.New("precondition failed")

	// ErrTimeout marks an external capability that did not answer in time.
	ErrTimeout = errors.New("timed out")
)
