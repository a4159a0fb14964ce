package record

import (
	"errors"
	"fmt"

	"github.com/danmuck/dmapctl/internal/protocol"
)

var (
	ErrSchemaMismatch = errors.New("record: schema mismatch")
	ErrUnsupported    = errors.New("record: unsupported protocol")
	ErrKindMismatch   = errors.New("record: record kind does not match protocol")
	ErrInvalidField   = errors.New("record: invalid field")
)

// DecodeError reports where a payload diverged from the protocol schema.
// Index is -1 when the payload itself is not a sequence of objects.
type DecodeError struct {
	Protocol protocol.Key
	Index    int
	Field    string
	Reason   string
}

func (e *DecodeError) Error() string {
	switch {
	case e.Index < 0:
		return fmt.Sprintf("record: schema mismatch protocol=%s: %s", e.Protocol, e.Reason)
	case e.Field == "":
		return fmt.Sprintf("record: schema mismatch protocol=%s index=%d: %s", e.Protocol, e.Index, e.Reason)
	default:
		return fmt.Sprintf("record: schema mismatch protocol=%s index=%d field=%s: %s", e.Protocol, e.Index, e.Field, e.Reason)
	}
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrSchemaMismatch
}
