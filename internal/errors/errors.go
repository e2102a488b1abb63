package errors

import "errors"

// Centralized sentinel errors for the application. Services return these
// recognizable errors without coupling callers to implementation details;
// boundaries (the CLI surface, the dev server) check them with errors.Is and
// map them to the appropriate user-facing behavior.

var (
	// ErrNotFound signifies that a requested resource could not be located.
	ErrNotFound = errors.New("resource not found")

	// ErrValidation signifies that input data failed business rule validation.
	ErrValidation = errors.New("validation failed")

	// ErrUnauthenticated signifies that no authenticated identity is
	// available. A submit in this state is blocked locally, before any
	// network call; the surface routes the user to the sign-in flow.
	ErrUnauthenticated = errors.New("not authenticated")

	// ErrQuotaExceeded signifies that the user's tier has no message
	// allowance left. Blocked locally; the surface routes the user to the
	// upgrade flow.
	ErrQuotaExceeded = errors.New("message allowance exhausted")

	// ErrTurnInProgress signifies that a submit arrived while a previous
	// turn was still streaming. The send control is supposed to be disabled
	// until the open turn seals, so callers treat this as a no-op.
	ErrTurnInProgress = errors.New("a turn is already in progress")

	// ErrClosed signifies that the owning surface has been dismissed and
	// its session torn down.
	ErrClosed = errors.New("session closed")
)
