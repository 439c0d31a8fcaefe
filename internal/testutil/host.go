// Package testutil provides deterministic collaborators for tests and the
// scenario harness.
package testutil

import (
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/linkgate/internal/engine"
)

// Notice is one feedback message delivered to a session.
type Notice struct {
	Session  uuid.UUID
	Feedback engine.Feedback
}

// RecordingHost is an engine.Host that keeps every notice in order.
//
// Thread-safety: all methods are safe for concurrent use, so tests may
// inspect it while the coordinator runs.
type RecordingHost struct {
	mu      sync.Mutex
	notices []Notice
}

// NewRecordingHost creates an empty recording host.
func NewRecordingHost() *RecordingHost {
	return &RecordingHost{}
}

// Notify implements engine.Host.
func (h *RecordingHost) Notify(id uuid.UUID, fb engine.Feedback) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notices = append(h.notices, Notice{Session: id, Feedback: fb})
}

// Notices returns a copy of all notices so far.
func (h *RecordingHost) Notices() []Notice {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Notice(nil), h.notices...)
}

// Kinds returns the feedback kinds delivered to one session, in order.
func (h *RecordingHost) Kinds(id uuid.UUID) []engine.FeedbackKind {
	h.mu.Lock()
	defer h.mu.Unlock()

	kinds := []engine.FeedbackKind{}
	for _, n := range h.notices {
		if n.Session == id {
			kinds = append(kinds, n.Feedback.Kind)
		}
	}
	return kinds
}

// Drain returns all notices so far and forgets them.
func (h *RecordingHost) Drain() []Notice {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.notices
	h.notices = nil
	return out
}
