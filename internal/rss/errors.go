package rss

import "fmt"

// ValidationError reports input the engine refuses to act on: disallowed
// schemes, private-network targets, malformed request bodies.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// FetchError reports a network-level failure: connection errors, non-2xx
// statuses, timeouts, or a response exceeding the size ceiling.
type FetchError struct {
	URL    string
	Reason string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Reason)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError reports a document whose root structure is neither an RSS 2.0
// channel nor an Atom feed.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse: %s: %v", e.Reason, e.Err)
	}
	return "parse: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// RateLimitError reports a caller that exhausted its fixed window.
type RateLimitError struct {
	Identity string
}

func (e *RateLimitError) Error() string {
	return "rate limit exceeded for " + e.Identity
}

// PersistenceError reports a storage write failure. The enclosing operation
// commits nothing when one is returned.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
