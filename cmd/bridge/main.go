// The bridge daemon sits between a classroom NFC gateway on a serial
// port and the backend ingestion API: it buffers tap events per session,
// ships each session upstream on session_end, and retries failed uploads
// until they land.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aura/internal/buffer"
	"aura/internal/config"
	"aura/internal/event"
	"aura/internal/seriallink"
	"aura/internal/uploader"
)

func main() {
	cfg := config.Load()
	log.Printf("=== AURA Bridge ===")
	log.Printf("backend: %s, device: %s", cfg.BackendURL, cfg.DeviceID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("[BRIDGE] exiting...")
		cancel()
	}()

	device := cfg.SerialPort
	if device == "" {
		var err error
		device, err = seriallink.SelectPort(os.Stdin, os.Stdout)
		if err != nil {
			log.Fatalf("[ERROR] %v", err)
		}
	}

	log.Printf("[INFO] opening %s @ %d", device, cfg.BaudRate)
	link, err := seriallink.Open(device, cfg.BaudRate)
	if err != nil {
		log.Fatalf("[ERROR] %v", err)
	}
	defer link.Close()

	token := cfg.APIToken
	if token == "" {
		if t, err := registerDevice(ctx, cfg.BackendURL, cfg.DeviceID); err != nil {
			log.Printf("[WARN] device registration failed: %v", err)
		} else {
			token = t
		}
	}

	buf := buffer.New()
	up := uploader.New(cfg.BackendURL, cfg.DeviceID, token, buf, link, cfg.UploadTimeout, cfg.RetryInterval)

	log.Println("[BRIDGE] listening for gateway events...")
	runLoop(ctx, link, buf, up)
}

// runLoop is the single sequential read loop. Every iteration also gives
// the retry sweep a chance to run, so a dead backend never stalls reads
// and buffered sessions eventually drain.
func runLoop(ctx context.Context, link *seriallink.Link, buf *buffer.Buffer, up *uploader.Client) {
	for ctx.Err() == nil {
		up.MaybeSweep(ctx)

		line, err := link.ReadLine()
		if err != nil {
			log.Printf("[ERROR] serial read failed: %v", err)
			time.Sleep(time.Second)
			continue
		}
		if line == "" {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		log.Printf("[SER] %s", line)
		tap, ok, err := event.ParseLine(line)
		if err != nil {
			log.Printf("[ERROR] %v", err)
			continue
		}
		if !ok {
			continue
		}

		buf.Append(tap)
		log.Printf("[SESS] session %d: %s %s", tap.SessionID, tap.Kind, tap.UID)

		if tap.Kind == event.SessionEnd {
			log.Printf("[SESS] session_end -> uploading %d", tap.SessionID)
			if err := up.Upload(ctx, tap.SessionID); err != nil {
				log.Printf("[UPLOAD] %v", err)
				up.MarkPending(tap.SessionID)
			} else {
				log.Printf("[UPLOAD] session %d uploaded", tap.SessionID)
			}
		}
	}
}

// registerDevice obtains a bearer token from the backend. Failure is not
// fatal: deployments without AUTH_REQUIRED accept anonymous uploads.
func registerDevice(ctx context.Context, baseURL, deviceID string) (string, error) {
	body, _ := json.Marshal(map[string]string{"device_id": deviceID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/devices/register", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("register returned status %d", resp.StatusCode)
	}
	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.AccessToken, nil
}
