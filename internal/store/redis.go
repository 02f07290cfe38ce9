package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis carries the client backing the notification queue between the
// server and the worker.
type Redis struct {
	Client *redis.Client
}

// NewRedis dials Redis. Timeouts stay short so an unreachable Redis
// degrades the health check instead of hanging requests; blocking queue
// reads extend their own deadline per command.
func NewRedis(addr string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Redis{Client: client}
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}
