package kv

import (
	"errors"
	"fmt"

	"github.com/eigerco/kvlayer/internal/engine"
)

var (
	ErrUseAfterClose   = errors.New("kv: handle is closed")
	ErrInvalidArgument = errors.New("kv: invalid argument")
	ErrIndexOutOfRange = errors.New("kv: index out of range")
	ErrOpenFailure     = errors.New("kv: open failed")
	ErrEngineFailure   = errors.New("kv: engine failure")
	ErrIteratorInvalid = errors.New("kv: cursor is not positioned")
)

// OpenError carries the engine's open-time error unmodified.
type OpenError struct {
	Path string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("open %s: %v", e.Path, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

func (e *OpenError) Is(target error) bool { return target == ErrOpenFailure }

// EngineError is any other failure reported by the engine.
type EngineError struct {
	Op  string
	Err error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

func (e *EngineError) Is(target error) bool { return target == ErrEngineFailure }

// engineErr maps an engine error onto the taxonomy. A released or unknown
// pointer means the handle was closed underneath the caller.
func engineErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, engine.ErrInvalidPtr):
		return fmt.Errorf("%s: %w", op, ErrUseAfterClose)
	case errors.Is(err, engine.ErrNotPositioned):
		return fmt.Errorf("%s: %w", op, ErrIteratorInvalid)
	case errors.Is(err, engine.ErrOwnerMismatch), errors.Is(err, engine.ErrBadArgument):
		return fmt.Errorf("%s: %w: %w", op, ErrInvalidArgument, err)
	}
	return &EngineError{Op: op, Err: err}
}
