package protocol

import "errors"

var (
	ErrNotFound          = errors.New("protocol: not found")
	ErrDescriptorExists  = errors.New("protocol: descriptor already registered")
	ErrInvalidDescriptor = errors.New("protocol: invalid descriptor")
)
