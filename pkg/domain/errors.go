package domain

import "errors"

var (
	// ErrMalformedGraph is returned when a node set fails structural validation
	// (empty text or label, unresolved leadsTo, zero or multiple roots).
	ErrMalformedGraph = errors.New("malformed question graph")

	// ErrLoadFailure is returned when a partition cannot be fetched. It is retryable.
	ErrLoadFailure = errors.New("partition load failed")

	// ErrDanglingReference is returned when the current node of a session is
	// missing from its loaded node set.
	ErrDanglingReference = errors.New("dangling node reference")

	// ErrSubmissionInvalid is returned when a response fails the pre-persist shape check.
	ErrSubmissionInvalid = errors.New("submission validation failed")

	// ErrCyclicGraph is returned when a choice path revisits a node.
	ErrCyclicGraph = errors.New("cyclic question graph")

	// ErrSessionNotFound is returned when a session ID cannot be found in the store.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNodeNotFound is returned when a node ID does not exist.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNodeReferenced is returned when deleting a question other choices lead to.
	ErrNodeReferenced = errors.New("question is still referenced")

	// ErrResponseNotFound is returned when a response ID does not exist.
	ErrResponseNotFound = errors.New("response not found")

	// ErrInvalidTransition is returned when an operation is not allowed in the
	// session's current phase.
	ErrInvalidTransition = errors.New("invalid session transition")

	// ErrStaleLoad is returned when a partition load finished after the session
	// was re-targeted to another stage or range.
	ErrStaleLoad = errors.New("stale partition load discarded")

	// ErrUnknownStage is returned for a stage type or range outside the catalog.
	ErrUnknownStage = errors.New("unknown stage")

	// ErrInvalidStatus is returned for an unknown review status or a disallowed change.
	ErrInvalidStatus = errors.New("invalid review status")

	// ErrInvalidChoice is returned when an answer does not match any choice.
	ErrInvalidChoice = errors.New("invalid choice")

	// ErrSessionExists is returned when starting a session with an ID in use.
	ErrSessionExists = errors.New("session already exists")
)
