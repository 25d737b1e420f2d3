package agent

import "errors"

// Model backend errors. Both end a session with a failure report.
var (
	// ErrBlocked is returned when the backend refused the request (safety block).
	ErrBlocked = errors.New("model response blocked")

	// ErrNoCandidates is returned when the backend returned no candidates.
	ErrNoCandidates = errors.New("model returned no candidates")
)

// Configuration errors. These are the only errors Run returns.
var (
	ErrNilBackend      = errors.New("agent backend cannot be nil")
	ErrNilRegistry     = errors.New("agent tool registry cannot be nil")
	ErrInvalidMaxTurns = errors.New("max turns must be at least 1")
)
