package seriallink

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

// fakePort feeds canned gateway output and records written commands.
type fakePort struct {
	io.Reader
	writes bytes.Buffer
}

func (f *fakePort) Write(p []byte) (int, error) { return f.writes.Write(p) }
func (f *fakePort) Close() error                { return nil }

func TestReadLineFraming(t *testing.T) {
	port := &fakePort{Reader: strings.NewReader("boot ok\r\n[RX] {\"type\":\"session_end\",\"uid\":\"T\",\"session_id\":1}\n")}
	l := NewLink(port)

	line, err := l.ReadLine()
	if err != nil || line != "boot ok" {
		t.Fatalf("first line = %q err=%v", line, err)
	}
	line, err = l.ReadLine()
	if err != nil || !strings.HasPrefix(line, "[RX] ") {
		t.Fatalf("second line = %q err=%v", line, err)
	}
}

func TestReadLinePartialFrame(t *testing.T) {
	// No newline yet: the reader must yield instead of blocking or
	// returning a half line.
	l := NewLink(&idlePort{data: []byte("[RX] {\"ty")})
	line, err := l.ReadLine()
	if err != nil || line != "" {
		t.Fatalf("partial frame returned %q err=%v, want empty", line, err)
	}
}

// idlePort returns its data once, then behaves like an idle port (0, nil).
type idlePort struct{ data []byte }

func (r *idlePort) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, nil
	}
	n := copy(p, r.data)
	r.data = nil
	return n, nil
}
func (*idlePort) Write(p []byte) (int, error) { return len(p), nil }
func (*idlePort) Close() error                { return nil }

func TestSendCommands(t *testing.T) {
	port := &fakePort{Reader: strings.NewReader("")}
	l := NewLink(port)

	if err := l.SendCacheSet([]string{"AA11", "BB22"}); err != nil {
		t.Fatal(err)
	}
	if err := l.SendClearSession(12); err != nil {
		t.Fatal(err)
	}

	got := port.writes.String()
	want := "CACHE_SET {\"teachers\":[\"AA11\",\"BB22\"]}\nCLEAR_SESSION 12\n"
	if got != want {
		t.Fatalf("commands = %q, want %q", got, want)
	}
}
