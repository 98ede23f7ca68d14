package store

import "errors"

// Repository error kinds. Repositories surface these without retrying;
// callers decide whether a kind is benign in their context (e.g. the worker
// treats ErrStateTransitionFailed during claim as "another worker won").
var (
	// ErrNotFound signals that the target row is absent.
	ErrNotFound = errors.New("not found")

	// ErrNoFeed signals an insert referencing a feed that does not exist.
	ErrNoFeed = errors.New("referenced feed does not exist")

	// ErrNoPost signals an insert referencing a post that does not exist.
	ErrNoPost = errors.New("referenced post does not exist")

	// ErrAlreadyExists signals a unique-constraint conflict on explicit
	// creation. GetOrCreate resolves the conflict instead of surfacing it.
	ErrAlreadyExists = errors.New("already exists")

	// ErrStateTransitionFailed signals that a CAS update matched zero rows.
	// Normal under concurrency.
	ErrStateTransitionFailed = errors.New("state transition failed")

	// ErrIntegrityViolation signals a constraint violation not covered by a
	// more specific kind.
	ErrIntegrityViolation = errors.New("integrity violation")
)
