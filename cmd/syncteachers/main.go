// syncteachers pushes the current teacher NFC UID list to a gateway over
// USB so it can validate session-start taps offline.
package main

import (
	"context"
	"log"
	"os"

	"aura/internal/config"
	"aura/internal/ingest"
	"aura/internal/seriallink"
	"aura/internal/store"
)

func main() {
	cfg := config.Load()
	log.Println("=== AURA Teacher Sync ===")

	db, err := store.NewDB(cfg.DatabaseURL, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	repo := ingest.NewRepository(db.Client)
	uids, err := repo.TeacherUIDs(context.Background())
	if err != nil {
		log.Fatalf("load teacher UIDs: %v", err)
	}
	log.Printf("[INFO] %d teachers found: %v", len(uids), uids)

	device := cfg.SerialPort
	if device == "" {
		device, err = seriallink.SelectPort(os.Stdin, os.Stdout)
		if err != nil {
			log.Fatalf("[ERROR] %v", err)
		}
	}

	log.Printf("[INFO] using port %s", device)
	link, err := seriallink.Open(device, cfg.BaudRate)
	if err != nil {
		log.Fatalf("[ERROR] %v", err)
	}
	defer link.Close()

	if err := link.SendCacheSet(uids); err != nil {
		log.Fatalf("[ERROR] CACHE_SET send failed: %v", err)
	}
	log.Println("[DONE] teacher sync complete")
}
