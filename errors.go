package pagan

import (
	"errors"

	"github.com/andreyvit/pagan/engine"
)

type (
	StreamOpenError  = engine.StreamOpenError
	UnknownTypeError = engine.UnknownTypeError
	DecodeError      = engine.DecodeError
	OutOfBoundsError = engine.OutOfBoundsError
	EncodeError      = engine.EncodeError
	WriteError       = engine.WriteError
)

var (
	ErrNoStream          = engine.ErrNoStream
	ErrNoField           = engine.ErrNoField
	ErrStreamInUse       = engine.ErrStreamInUse
	ErrProcessedTooLarge = engine.ErrProcessedTooLarge
	ErrNotObject         = errors.New("not an object")
	ErrNotFunc           = errors.New("not a function")
)

// ImmutableViewError is returned by every assignment through a View.
type ImmutableViewError struct {
	Name string
}

func (e *ImmutableViewError) Error() string {
	return "can't assign to object"
}
