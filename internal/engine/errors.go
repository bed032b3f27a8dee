package engine

import "github.com/cockroachdb/errors"

var (
	ErrInvalidPtr    = errors.New("engine: invalid or released pointer")
	ErrLockHeld      = errors.New("engine: store is already open in this process")
	ErrNotPositioned = errors.New("engine: cursor is not positioned")
	ErrOwnerMismatch = errors.New("engine: object belongs to a different database")
	ErrBadArgument   = errors.New("engine: bad argument")
)
