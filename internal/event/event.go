// Package event defines the tap events emitted by classroom NFC gateways
// and the serial frame format they arrive in.
package event

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind is the closed set of tap event types a gateway can emit.
type Kind string

const (
	SessionStart   Kind = "session_start"
	AttendanceMark Kind = "attendance_mark"
	SessionEnd     Kind = "session_end"
)

// FramePrefix marks serial lines that carry an event payload. Everything
// else on the wire is device log chatter.
const FramePrefix = "[RX] "

// Tap is a single card-read notification. SessionID is the device-local
// session counter; the backend mints its own durable identity.
type Tap struct {
	Kind      Kind   `json:"type"`
	UID       string `json:"uid"`
	SessionID int    `json:"session_id"`
}

type wireTap struct {
	Type      string `json:"type"`
	UID       string `json:"uid"`
	SessionID int    `json:"session_id"`
}

// UnmarshalJSON decodes a wire event, rejecting unknown types so the
// reconciler only ever switches over the closed Kind set.
func (t *Tap) UnmarshalJSON(data []byte) error {
	var w wireTap
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch Kind(w.Type) {
	case SessionStart, AttendanceMark, SessionEnd:
	default:
		return fmt.Errorf("unknown event type %q", w.Type)
	}
	t.Kind = Kind(w.Type)
	t.UID = w.UID
	t.SessionID = w.SessionID
	return nil
}

// MarshalJSON emits the gateway wire shape.
func (t Tap) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireTap{Type: string(t.Kind), UID: t.UID, SessionID: t.SessionID})
}

// ParseLine decodes one serial line. ok is false for diagnostic lines
// without the frame prefix; err is set when a prefixed line carries bad
// JSON (the caller logs and drops it, never aborts the read loop).
func ParseLine(line string) (tap Tap, ok bool, err error) {
	if !strings.HasPrefix(line, FramePrefix) {
		return Tap{}, false, nil
	}
	raw := strings.TrimSpace(strings.TrimPrefix(line, FramePrefix))
	if err := json.Unmarshal([]byte(raw), &tap); err != nil {
		return Tap{}, false, fmt.Errorf("bad event frame: %w", err)
	}
	return tap, true, nil
}
