package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aura_sessions_committed_total",
		Help: "Durable sessions created from gateway uploads.",
	})
	attendanceUpserts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aura_attendance_upserts_total",
		Help: "Attendance rows written (inserts and idempotent updates).",
	})
	uploadsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aura_uploads_rejected_total",
		Help: "Uploads rejected before any durable write.",
	}, []string{"reason"})
	pendingStaged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aura_pending_staged_total",
		Help: "Uploads staged for teacher review.",
	})
	pendingFinalized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aura_pending_finalized_total",
		Help: "Pending sessions converted into durable sessions.",
	})
)
