// Package seriallink owns the serial connection to a classroom NFC gateway:
// port discovery, line framing, and the two outbound device commands.
package seriallink

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

// DefaultBaud is the fixed gateway link rate.
const DefaultBaud = 115200

// settleDelay lets the gateway finish its reset chatter after the port
// opens; whatever arrived meanwhile is discarded.
const settleDelay = 2 * time.Second

// Link is a single open gateway connection. The read side is consumed by
// exactly one loop; writes are serialized so the retry sweep can send
// CLEAR_SESSION while the reader holds the link.
type Link struct {
	port    io.ReadWriteCloser
	writeMu sync.Mutex
	pending []byte
	scratch [256]byte
}

// Open opens the named port at the given baud rate, waits for the gateway
// to settle, and flushes any buffered garbage.
func Open(device string, baud int) (*Link, error) {
	if baud <= 0 {
		baud = DefaultBaud
	}
	port, err := serial.Open(device, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", device, err)
	}
	if err := port.SetReadTimeout(20 * time.Millisecond); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	time.Sleep(settleDelay)
	_ = port.ResetInputBuffer()
	_ = port.ResetOutputBuffer()
	return &Link{port: port}, nil
}

// NewLink wraps an already-open stream. Used by tests and by callers that
// manage the port themselves.
func NewLink(rw io.ReadWriteCloser) *Link {
	return &Link{port: rw}
}

// ReadLine returns the next complete line from the gateway, trimmed of
// whitespace. It returns ("", nil) when no full line is buffered yet so the
// caller's loop can interleave other work instead of blocking.
func (l *Link) ReadLine() (string, error) {
	for {
		if i := bytes.IndexByte(l.pending, '\n'); i >= 0 {
			line := strings.TrimSpace(string(l.pending[:i]))
			l.pending = l.pending[i+1:]
			return line, nil
		}
		n, err := l.port.Read(l.scratch[:])
		if n > 0 {
			l.pending = append(l.pending, l.scratch[:n]...)
			continue
		}
		if err != nil {
			return "", err
		}
		return "", nil
	}
}

// SendCacheSet pushes the full teacher UID list to the gateway so it can
// validate session-start taps offline.
func (l *Link) SendCacheSet(uids []string) error {
	payload, err := json.Marshal(struct {
		Teachers []string `json:"teachers"`
	}{Teachers: uids})
	if err != nil {
		return err
	}
	return l.writeLine("CACHE_SET " + string(payload))
}

// SendClearSession acknowledges a successful upload so the gateway purges
// its local copy of the session.
func (l *Link) SendClearSession(sessionID int) error {
	return l.writeLine(fmt.Sprintf("CLEAR_SESSION %d", sessionID))
}

func (l *Link) writeLine(cmd string) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if _, err := l.port.Write([]byte(cmd + "\n")); err != nil {
		return fmt.Errorf("write %q: %w", cmd, err)
	}
	return nil
}

// Close releases the port.
func (l *Link) Close() error {
	return l.port.Close()
}
