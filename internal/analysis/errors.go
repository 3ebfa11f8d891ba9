package analysis

import "errors"

// Pipeline error kinds. Callers match them with errors.Is.
var (
	// ErrValidation signals a malformed domain; no record is created.
	ErrValidation = errors.New("invalid domain")
	// ErrUnauthenticated signals a missing principal; no record is created.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrUnreachable signals a failed reachability check.
	ErrUnreachable = errors.New("domain unreachable")
	// ErrUnsupportedSite signals that the crawling provider cannot handle the site.
	ErrUnsupportedSite = errors.New("site not supported by crawler")
	// ErrProvider signals any other crawler or summarizer failure.
	ErrProvider = errors.New("provider failure")
	// ErrPersistence signals a record store write failure.
	ErrPersistence = errors.New("persistence failure")
)

// Record store errors.
var (
	// ErrNotFound signals that the requested record does not exist.
	ErrNotFound = errors.New("analysis record not found")
	// ErrTerminal signals an attempt to mutate a record that already reached a terminal status.
	ErrTerminal = errors.New("analysis record already terminal")
)
