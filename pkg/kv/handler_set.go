package kv

import (
	"errors"
	"sync"
	"weak"

	"github.com/eigerco/kvlayer/pkg/log"
	"github.com/eigerco/kvlayer/pkg/metrics"
)

// HandlerSet is the registry of a parent's live children. Once closed it stays
// empty and rejects new children.
type HandlerSet struct {
	mu       sync.Mutex
	closed   bool
	children map[*handle]struct{}
	// pending counts spawns whose engine object exists but is not registered yet.
	pending int
	drained sync.Cond
}

func newHandlerSet() *HandlerSet {
	s := &HandlerSet{children: make(map[*handle]struct{})}
	s.drained.L = &s.mu
	return s
}

// spawn creates a child through create and registers it. Creation runs
// outside the lock; a set closed in the meantime gets the child released
// again and the caller sees ErrUseAfterClose. create may return a nil handle
// when there is nothing to register.
func (s *HandlerSet) spawn(create func() (*handle, error)) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrUseAfterClose
	}
	s.pending++
	s.mu.Unlock()

	h, err := create()

	s.mu.Lock()
	defer func() {
		s.pending--
		if s.pending == 0 {
			s.drained.Broadcast()
		}
		s.mu.Unlock()
	}()
	if err != nil || h == nil {
		return err
	}
	if s.closed {
		// h has no parent yet, so closing it does not call back into s.
		if cerr := h.Close(); cerr != nil {
			return errors.Join(ErrUseAfterClose, cerr)
		}
		return ErrUseAfterClose
	}
	h.parent = weak.Make(s)
	s.children[h] = struct{}{}
	return nil
}

func (s *HandlerSet) unregister(h *handle) {
	s.mu.Lock()
	delete(s.children, h)
	s.mu.Unlock()
}

// Len returns the number of live children.
func (s *HandlerSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.children)
}

// closeAll marks the set closed, waits for in-flight spawns, then closes every
// child it held. Closing order is unspecified.
func (s *HandlerSet) closeAll() error {
	s.mu.Lock()
	s.closed = true
	for s.pending > 0 {
		s.drained.Wait()
	}
	children := s.children
	s.children = nil
	s.mu.Unlock()

	var errs []error
	for h := range children {
		log.Handles.Debug().Stringer("kind", h.kind).Msg("force closing child")
		metrics.ForcedCloses.WithLabelValues(h.kind.String()).Inc()
		if err := h.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
