package buffer

import (
	"sync"
	"testing"

	"aura/internal/event"
)

func TestAppendSnapshotClear(t *testing.T) {
	b := New()
	b.Append(event.Tap{Kind: event.SessionStart, UID: "T1", SessionID: 5})
	b.Append(event.Tap{Kind: event.AttendanceMark, UID: "S1", SessionID: 5})
	b.Append(event.Tap{Kind: event.AttendanceMark, UID: "S9", SessionID: 6})

	snap := b.Snapshot(5)
	if len(snap) != 2 {
		t.Fatalf("snapshot len = %d, want 2", len(snap))
	}
	if snap[0].UID != "T1" || snap[1].UID != "S1" {
		t.Fatalf("arrival order not preserved: %+v", snap)
	}
	if b.Len(5) != 2 {
		t.Fatalf("snapshot must not drain the bucket")
	}

	// Mutating the snapshot must not leak into the buffer.
	snap[0].UID = "mutated"
	if b.Snapshot(5)[0].UID != "T1" {
		t.Fatal("snapshot aliases internal storage")
	}

	b.Clear(5)
	if b.Snapshot(5) != nil || b.Len(5) != 0 {
		t.Fatal("clear did not remove the bucket")
	}
	if b.Len(6) != 1 {
		t.Fatal("clear removed an unrelated bucket")
	}
}

func TestConcurrentAppend(t *testing.T) {
	b := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Append(event.Tap{Kind: event.AttendanceMark, UID: "S", SessionID: 1})
				_ = b.Snapshot(1)
			}
		}()
	}
	wg.Wait()
	if got := b.Len(1); got != 800 {
		t.Fatalf("lost appends: got %d, want 800", got)
	}
}
