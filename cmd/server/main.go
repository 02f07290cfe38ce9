package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"aura/internal/auth"
	"aura/internal/config"
	"aura/internal/event"
	"aura/internal/httpmiddleware"
	"aura/internal/ingest"
	"aura/internal/notify"
	"aura/internal/queue"
	"aura/internal/store"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.Migrate(context.Background(), db.Client); err != nil {
		return err
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
	}

	repo := ingest.NewRepository(db.Client)
	svc := ingest.NewService(repo, notify.NewDispatcher(q))

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	r.POST("/v1/devices/register", func(c *gin.Context) {
		var req struct {
			DeviceID string `json:"device_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
			return
		}
		token, exp, err := auth.IssueDeviceToken(req.DeviceID, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.DeviceTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "token issue failed"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"access_token": token, "expires_at": exp.Unix()})
	})

	api := r.Group("/api")
	if cfg.AuthRequired {
		api.Use(auth.DeviceAuth(cfg.JWTSigningKey, cfg.JWTIssuer))
	}

	api.POST("/iot/session/upload/", func(c *gin.Context) {
		var req struct {
			DeviceID string `json:"device_id"`
			// Device-local correlation value; the backend mints its own
			// durable session identity.
			SessionID int         `json:"session_id"`
			Events    []event.Tap `json:"events"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
			return
		}

		ctx := c.Request.Context()
		if cfg.IngestMode == config.ModeReview {
			res, err := svc.Stage(ctx, req.DeviceID, req.Events)
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "success", "pending_session": res.PendingID, "students": res.Students})
			return
		}

		res, err := svc.Reconcile(ctx, req.DeviceID, req.Events)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "success", "session": res.SessionID, "records": res.Records})
	})

	api.GET("/iot/pending/", func(c *gin.Context) {
		pending, err := svc.ListPendingOpen(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "success", "pending": pending})
	})

	api.GET("/iot/pending/:id", func(c *gin.Context) {
		pending, students, err := svc.Review(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "success", "pending": pending, "students": students})
	})

	api.POST("/iot/pending/:id/finalize", func(c *gin.Context) {
		res, err := svc.Finalize(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "success", "session": res.SessionID, "records": res.Records})
	})

	api.GET("/devices", func(c *gin.Context) {
		devices, err := svc.Devices(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		now := time.Now()
		type deviceStatus struct {
			ingest.Device
			Online bool `json:"online"`
		}
		out := make([]deviceStatus, 0, len(devices))
		for _, d := range devices {
			out = append(out, deviceStatus{Device: d, Online: d.Online(now)})
		}
		c.JSON(http.StatusOK, gin.H{"status": "success", "devices": out})
	})

	api.GET("/sessions/:id/attendance", func(c *gin.Context) {
		rows, err := svc.SessionAttendance(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "success", "attendance": rows})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("starting server on :%s (ingest mode %s)", cfg.HTTPPort, cfg.IngestMode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced shutdown: %v", err)
	}
	log.Println("server exited")
	return nil
}

// CORS middleware for the review UI and dashboard
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Device-ID")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}

// respondError maps the ingest error taxonomy onto HTTP statuses.
// Precondition failures carry their reason; anything unexpected stays a
// generic 500 so internals don't leak.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ingest.ErrMissingFields),
		errors.Is(err, ingest.ErrNoSessionStart),
		errors.Is(err, ingest.ErrUnknownTeacher),
		errors.Is(err, ingest.ErrNoAssignment):
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
	case errors.Is(err, ingest.ErrPendingNotFound):
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": err.Error()})
	case errors.Is(err, ingest.ErrAlreadyFinalized):
		c.JSON(http.StatusConflict, gin.H{"status": "error", "message": err.Error()})
	default:
		log.Printf("[API] internal error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "internal error"})
	}
}
