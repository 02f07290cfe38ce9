// Package uploader ships buffered tap-event batches to the backend
// ingestion endpoint and retries failed sessions until they land.
package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"aura/internal/buffer"
	"aura/internal/event"
)

// Commander is the device-side acknowledgment the client sends after a
// successful upload. Implemented by seriallink.Link.
type Commander interface {
	SendClearSession(sessionID int) error
}

// Client posts session batches to the backend. Failed sessions are parked
// in a pending set and re-attempted by the sweep; there is no retry cap,
// the backend's upserts make repeats harmless.
type Client struct {
	baseURL  string
	deviceID string
	token    string
	http     *http.Client
	buf      *buffer.Buffer
	link     Commander

	interval  time.Duration
	mu        sync.Mutex
	pending   map[int][]event.Tap
	lastSweep time.Time
}

// New builds a client. timeout bounds each POST; retryInterval paces the
// sweep. link may be nil when no gateway is attached (replay tooling).
func New(baseURL, deviceID, token string, buf *buffer.Buffer, link Commander, timeout, retryInterval time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if retryInterval <= 0 {
		retryInterval = 10 * time.Second
	}
	return &Client{
		baseURL:  baseURL,
		deviceID: deviceID,
		token:    token,
		http:     &http.Client{Timeout: timeout},
		buf:      buf,
		link:     link,
		interval: retryInterval,
		pending:  make(map[int][]event.Tap),
	}
}

type sessionPayload struct {
	DeviceID  string      `json:"device_id"`
	SessionID int         `json:"session_id"`
	Events    []event.Tap `json:"events"`
}

// Upload posts one session's accumulated events. An empty session is
// trivially successful and makes no network call. On success the gateway
// is told to purge its copy and the session leaves both the live buffer
// and the pending set; any transport or server failure leaves the events
// intact and returns an error for the sweep to retry.
func (c *Client) Upload(ctx context.Context, sessionID int) error {
	events := c.buf.Snapshot(sessionID)
	if len(events) == 0 {
		c.mu.Lock()
		events = append([]event.Tap(nil), c.pending[sessionID]...)
		c.mu.Unlock()
	}
	if len(events) == 0 {
		c.mu.Lock()
		delete(c.pending, sessionID)
		c.mu.Unlock()
		return nil
	}

	body, err := json.Marshal(sessionPayload{DeviceID: c.deviceID, SessionID: sessionID, Events: events})
	if err != nil {
		return fmt.Errorf("encode session %d: %w", sessionID, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/iot/session/upload/", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upload session %d: %w", sessionID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("upload session %d: backend status %d", sessionID, resp.StatusCode)
	}

	// The HTTP leg succeeded; a failed acknowledgment only means the
	// gateway re-sends a batch the backend will upsert away.
	if c.link != nil {
		if err := c.link.SendClearSession(sessionID); err != nil {
			log.Printf("[GATEWAY] CLEAR_SESSION %d failed: %v", sessionID, err)
		}
	}

	c.buf.Clear(sessionID)
	c.mu.Lock()
	delete(c.pending, sessionID)
	c.mu.Unlock()
	return nil
}

// MarkPending snapshots a session into the retry set after a failed upload.
// An empty snapshot is a no-op: nothing enters the retry set, and any copy
// already held is kept.
func (c *Client) MarkPending(sessionID int) {
	snap := c.buf.Snapshot(sessionID)
	if len(snap) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[sessionID] = snap
}

// Pending lists the session ids awaiting retry.
func (c *Client) Pending() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]int, 0, len(c.pending))
	for id := range c.pending {
		ids = append(ids, id)
	}
	return ids
}

// Sweep re-attempts every pending session once.
func (c *Client) Sweep(ctx context.Context) {
	for _, sid := range c.Pending() {
		log.Printf("[RETRY] session %d", sid)
		if err := c.Upload(ctx, sid); err != nil {
			log.Printf("[RETRY] session %d still failing: %v", sid, err)
		} else {
			log.Printf("[RETRY] session %d uploaded", sid)
		}
	}
}

// MaybeSweep runs the sweep when the retry interval has elapsed and there
// is anything to retry. Called on every read-loop iteration so it never
// blocks the next serial read.
func (c *Client) MaybeSweep(ctx context.Context) {
	c.mu.Lock()
	due := len(c.pending) > 0 && time.Since(c.lastSweep) >= c.interval
	if due {
		c.lastSweep = time.Now()
	}
	c.mu.Unlock()
	if due {
		c.Sweep(ctx)
	}
}
