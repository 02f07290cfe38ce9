package event

import (
	"encoding/json"
	"testing"
)

func TestParseLine(t *testing.T) {
	tap, ok, err := ParseLine(`[RX] {"type":"attendance_mark","uid":"STU42","session_id":3}`)
	if err != nil || !ok {
		t.Fatalf("ParseLine: ok=%v err=%v", ok, err)
	}
	if tap.Kind != AttendanceMark || tap.UID != "STU42" || tap.SessionID != 3 {
		t.Fatalf("unexpected tap: %+v", tap)
	}
}

func TestParseLineIgnoresChatter(t *testing.T) {
	for _, line := range []string{
		"NRF ready, waiting for taps",
		"[INFO] gateway boot",
		"",
	} {
		if _, ok, err := ParseLine(line); ok || err != nil {
			t.Fatalf("line %q: ok=%v err=%v, want ignored", line, ok, err)
		}
	}
}

func TestParseLineBadJSON(t *testing.T) {
	if _, ok, err := ParseLine(`[RX] {not json`); ok || err == nil {
		t.Fatalf("bad JSON should be reported, got ok=%v err=%v", ok, err)
	}
}

func TestUnmarshalRejectsUnknownKind(t *testing.T) {
	var tap Tap
	if err := json.Unmarshal([]byte(`{"type":"card_wave","uid":"X","session_id":1}`), &tap); err == nil {
		t.Fatal("unknown event type should not decode")
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	in := Tap{Kind: SessionStart, UID: "TEACH1", SessionID: 7}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	var out Tap
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: %+v != %+v", out, in)
	}
}
