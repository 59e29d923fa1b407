package hnsw

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfRange is returned when a node id does not reference a stored vector.
	ErrOutOfRange = errors.New("node id out of range")
	// ErrDuplicateNodeInLayer signals a broken insertion invariant: a node was
	// connected twice at the same layer.
	ErrDuplicateNodeInLayer = errors.New("node already present in layer")
	// ErrInvalidParameter is returned for caller contract violations (k <= 0, ef <= 0, bad config).
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrInvalidState is returned when restored or imported graph data breaks an index invariant.
	ErrInvalidState = errors.New("invalid index state")
)

// OutOfRangeError carries the offending id and the store size.
type OutOfRangeError struct {
	ID  uint32
	Len int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("node id %d out of range (%d vectors)", e.ID, e.Len)
}

func (e *OutOfRangeError) Unwrap() error { return ErrOutOfRange }

// DuplicateNodeError reports which node was connected twice and where.
type DuplicateNodeError struct {
	ID    uint32
	Level int
}

func (e *DuplicateNodeError) Error() string {
	return fmt.Sprintf("node %d already present in layer %d", e.ID, e.Level)
}

func (e *DuplicateNodeError) Unwrap() error { return ErrDuplicateNodeInLayer }

// InvalidParameterError names the rejected parameter.
type InvalidParameterError struct {
	Name  string
	Value any
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %s: %v", e.Name, e.Value)
}

func (e *InvalidParameterError) Unwrap() error { return ErrInvalidParameter }

func invalidStatef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}
