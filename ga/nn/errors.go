package nn

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks invalid topologies and incompatible crossover parents.
	// It is fatal to the operation that returned it.
	ErrConfiguration = errors.New("invalid network configuration")

	// ErrSerialization marks malformed serialized networks and genomes.
	ErrSerialization = errors.New("malformed serialized genome")
)

// SerializationError describes why a serialized network could not be decoded.
// Line is 1-based for the text format and 0 when not applicable.
type SerializationError struct {
	Line   int
	Reason string
	Err    error
}

func (e *SerializationError) Error() string {
	msg := "malformed serialized genome"
	if e.Line > 0 {
		msg = fmt.Sprintf("%s: line %d", msg, e.Line)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is makes errors.Is(err, ErrSerialization) match every SerializationError.
func (e *SerializationError) Is(target error) bool {
	return target == ErrSerialization
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

func serializationErrorf(line int, err error, format string, args ...any) *SerializationError {
	return &SerializationError{Line: line, Reason: fmt.Sprintf(format, args...), Err: err}
}
