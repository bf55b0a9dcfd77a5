package graph

import "errors"

// ErrInterrupted is returned (wrapped in *InterruptError) when a node routes
// with Interrupted(). Callers should use errors.As to recover the payload and
// resume point, checkpoint whatever else they need, and call
// ResumeFromCheckpoint once new input is available.
var ErrInterrupted = errors.New("graph: workflow interrupted")

// InterruptError carries the data a suspended run needs to hand back to its
// caller: what the interrupting node wants to show, and where to pick back up.
type InterruptError struct {
	// RunID identifies the suspended run.
	RunID string

	// NodeID is the node that raised the interrupt.
	NodeID string

	// Payload is whatever the node attached via Interrupted(payload, ...).
	Payload any

	// Resume is the node ID execution continues at once resumed.
	Resume string
}

func (e *InterruptError) Error() string {
	return "graph: run " + e.RunID + " interrupted at node " + e.NodeID
}

func (e *InterruptError) Unwrap() error {
	return ErrInterrupted
}
