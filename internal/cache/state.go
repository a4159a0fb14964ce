package cache

import (
	"errors"
	"fmt"
)

var (
	ErrFetchPanicked = errors.New("cache: fetch panicked")
	ErrInvalidKey    = errors.New("cache: invalid trigger key")
)

// Status is the lifecycle position of one slot.
type Status int

const (
	StatusAbsent Status = iota
	StatusPending
	StatusReady
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	default:
		return "absent"
	}
}

// Trigger selects a slot. A higher Rev for the same Key supersedes older fetches.
type Trigger struct {
	Key string
	Rev uint64
}

func (t Trigger) String() string {
	return fmt.Sprintf("%s@%d", t.Key, t.Rev)
}

// State is a snapshot of one slot.
type State[T any] struct {
	Trigger Trigger
	Status  Status
	Value   T
	Err     error
}

func (s State[T]) Pending() bool { return s.Status == StatusPending }
func (s State[T]) Ready() bool   { return s.Status == StatusReady }
func (s State[T]) Failed() bool  { return s.Status == StatusFailed }

// Stats counts slot activity since construction.
type Stats struct {
	Fetches   uint64
	Coalesced uint64
	Discarded uint64
}
