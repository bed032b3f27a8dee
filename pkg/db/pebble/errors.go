package pebble

import (
	"errors"

	"github.com/eigerco/kvlayer/pkg/kv"
)

var (
	ErrClosed          = kv.ErrUseAfterClose
	ErrNotFound        = errors.New("kv-store: key not found")
	ErrBatchDone       = errors.New("kv-store: batch already committed or closed")
	ErrIteratorInvalid = errors.New("kv-store: iterator is not positioned")
)

const (
	ErrInIteratorCreation = "failed to create iterator: %w"
	ErrIteratorValue      = "failed to read iterator value: %w"
)
