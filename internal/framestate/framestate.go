// Package framestate holds the most recently rendered frame for a streamer to
// pick up.
package framestate

import (
	"sync"

	"github.com/itsdarik/resonate/huestream"
)

// State is a single-slot, last-write-wins frame buffer. It keeps no history:
// a reader always observes the newest complete frame, and frames written
// between two reads are never seen.
type State struct {
	mu    sync.Mutex
	frame huestream.Frame
}

// New creates a State holding an all-off frame with n channels.
func New(n int, space huestream.ColorSpace) *State {
	s := &State{}
	s.frame.Space = space
	s.frame.Reset(n)
	return s
}

// Write replaces the held frame with a copy of f.
func (s *State) Write(f *huestream.Frame) {
	s.mu.Lock()
	s.frame = *f
	s.mu.Unlock()
}

// Snapshot returns a copy of the held frame.
func (s *State) Snapshot() huestream.Frame {
	s.mu.Lock()
	f := s.frame
	s.mu.Unlock()
	return f
}

// AcquireFrame calls f with the held frame while holding the lock. f must not
// block or retain the pointer.
func (s *State) AcquireFrame(f func(*huestream.Frame)) {
	s.mu.Lock()
	f(&s.frame)
	s.mu.Unlock()
}

// Reset turns every channel of the held frame off, keeping its channel count
// and color space.
func (s *State) Reset() {
	s.AcquireFrame(func(f *huestream.Frame) {
		f.Reset(f.Count)
	})
}
