package creation

import "errors"

var (
	ErrRejected     = errors.New("creation: action rejected")
	ErrClosed       = errors.New("creation: gate closed")
	ErrUnsupported  = errors.New("creation: protocol has no create form")
	ErrInvalidDraft = errors.New("creation: invalid draft record")
)

// Phase is the gate lifecycle position.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAllocating
	PhaseAllocated
	PhaseSubmitting
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAllocating:
		return "allocating"
	case PhaseAllocated:
		return "allocated"
	case PhaseSubmitting:
		return "submitting"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

const (
	OpAllocate = "allocate"
	OpSubmit   = "submit"
)
