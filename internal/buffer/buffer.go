// Package buffer accumulates raw tap events per device-local session until
// the upload client ships them to the backend.
package buffer

import (
	"sync"

	"aura/internal/event"
)

// Buffer is a session-keyed event accumulator. The serial read loop and
// the retry sweep share it, so every operation holds the single map lock.
type Buffer struct {
	mu       sync.Mutex
	sessions map[int][]event.Tap
}

// New returns an empty buffer.
func New() *Buffer {
	return &Buffer{sessions: make(map[int][]event.Tap)}
}

// Append adds a tap to its session's bucket, creating the bucket if absent.
// Arrival order is preserved; the reconciler interprets the sequence.
func (b *Buffer) Append(t event.Tap) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions[t.SessionID] = append(b.sessions[t.SessionID], t)
}

// Snapshot returns a copy of the accumulated sequence without removing it.
func (b *Buffer) Snapshot(sessionID int) []event.Tap {
	b.mu.Lock()
	defer b.mu.Unlock()
	src := b.sessions[sessionID]
	if len(src) == 0 {
		return nil
	}
	out := make([]event.Tap, len(src))
	copy(out, src)
	return out
}

// Clear removes a session's bucket.
func (b *Buffer) Clear(sessionID int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, sessionID)
}

// Len reports how many events a session has buffered.
func (b *Buffer) Len(sessionID int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions[sessionID])
}
