// Package runstate re-architects the source's process-wide keep_running
// global into an explicitly shared, reference-passed handle (see
// SPEC_FULL.md's RUNSTATE section).
package runstate

import "sync/atomic"

// State is the process-wide cooperative shutdown flag. Any worker may
// call Stop; every worker reads Running on its own cadence. The zero value
// reports Running() == false; New returns a live State.
type State struct {
	running atomic.Bool
}

// New returns a State in the running condition.
func New() *State {
	s := &State{}
	s.running.Store(true)
	return s
}

// Running reports whether workers should keep going.
func (s *State) Running() bool { return s.running.Load() }

// Stop requests cooperative shutdown. Idempotent.
func (s *State) Stop() { s.running.Store(false) }
