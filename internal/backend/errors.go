package backend

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidBaseURL    = errors.New("backend: invalid base url")
	ErrNetwork           = errors.New("backend: network error")
	ErrServer            = errors.New("backend: server error")
	ErrInvalidAllocation = errors.New("backend: invalid allocation response")
	ErrBodyTooLarge      = errors.New("backend: response body exceeds limit")
)

// NetworkError is a transport failure such as a refused connection, a timeout,
// or a body over the configured limit.
type NetworkError struct {
	Op  string
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("backend: %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// ServerError is any response whose status is not 200.
type ServerError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *ServerError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend: %s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("backend: %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *ServerError) Is(target error) bool { return target == ErrServer }
