package ingest

import "errors"

// Precondition failures abort a batch before any session write. The
// handler maps them to 4xx responses with the error text as the reason.
var (
	ErrMissingFields    = errors.New("missing device_id or events")
	ErrNoSessionStart   = errors.New("no session_start event")
	ErrUnknownTeacher   = errors.New("invalid teacher card")
	ErrNoAssignment     = errors.New("teacher has no class/subject assigned")
	ErrPendingNotFound  = errors.New("pending session not found")
	ErrAlreadyFinalized = errors.New("pending session already finalized")
)
