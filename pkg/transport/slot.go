package transport

import (
	"sync/atomic"

	"posebridge/pkg/protocol"
)

// Slot holds the most recently published pose. Store swaps in a fully
// built value, so a concurrent Load sees either the old or the new pose.
type Slot struct {
	p atomic.Pointer[protocol.Pose]
}

// Load returns the latest pose, or the zero pose if nothing was stored.
func (s *Slot) Load() protocol.Pose {
	if p := s.p.Load(); p != nil {
		return *p
	}
	return protocol.Pose{}
}

func (s *Slot) Store(pose protocol.Pose) {
	s.p.Store(&pose)
}

// LatestPose makes a Slot usable as a pose source on its own.
func (s *Slot) LatestPose() protocol.Pose {
	return s.Load()
}
