// Package store holds the Postgres and Redis connection plumbing shared
// by the server and the CLI tools.
package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB is the shared Postgres handle. The ingest repository and the schema
// migration run directly over Client.
type DB struct {
	Client *sql.DB
}

// NewDB opens a pooled connection through the pgx stdlib driver and
// verifies it with a ping. Pool sizes come from configuration; zero or
// negative values fall back to defaults sized for a handful of
// classroom bridges.
func NewDB(connString string, maxOpen, maxIdle int) (*DB, error) {
	if maxOpen <= 0 {
		maxOpen = 10
	}
	if maxIdle <= 0 {
		maxIdle = 5
	}
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(time.Hour)
	return &DB{Client: db}, db.PingContext(context.Background())
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}
