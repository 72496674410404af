package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrDomainNotFound is returned when a domain frontier record does not exist.
	ErrDomainNotFound = errors.New("domain frontier not found")
	// ErrAlreadyCompleted is returned when completing a URL that is already completed.
	ErrAlreadyCompleted = errors.New("url already completed")
	// ErrMalformedTask is returned when a task payload carries no usable URL.
	ErrMalformedTask = errors.New("malformed task")
	// ErrQueueClosed is returned by task sources that have been shut down.
	ErrQueueClosed = errors.New("queue closed")
)

// FetchError describes a failed page fetch.
type FetchError struct {
	URL        string
	StatusCode int
	Reason     string
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %s", e.URL, e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Reason)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
