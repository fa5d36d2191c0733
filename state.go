package qrscan

import (
	"fmt"
)

// Phase is the lifecycle phase of a Controller.
type Phase int

const (
	Idle Phase = iota
	Starting
	Running
	Stopping
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// State is a snapshot of a controller, for rendering buttons and status.
type State struct {
	// Incremented on every change. Callbacks can arrive out of order from
	// different goroutines, a lower Seq is older.
	Seq uint64

	Phase Phase

	// Why the last start failed. Only set in phase Failed.
	Reason error

	// ID of the current camera session, empty without a session.
	SessionID string

	TorchCapable bool
	TorchOn      bool
}

// Running returns whether a camera session is live and decoding.
func (s State) Running() bool {
	return s.Phase == Running
}

// String returns a short human-readable description of the state.
func (s State) String() string {
	switch s.Phase {
	case Failed:
		return fmt.Sprintf("failed: %v", s.Reason)
	case Running:
		torch := "no torch"
		if s.TorchCapable {
			torch = "torch off"
			if s.TorchOn {
				torch = "torch on"
			}
		}
		return fmt.Sprintf("running (session %s, %s)", s.SessionID, torch)
	}
	return s.Phase.String()
}
