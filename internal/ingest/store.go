package ingest

import (
	"context"
	"time"
)

// Store is the durable persistence the reconciler runs against. The
// Postgres Repository implements it; tests use an in-memory fake.
//
// Lookup methods return (nil, nil) when the row does not exist.
type Store interface {
	UpsertDevice(ctx context.Context, deviceID, name string, heartbeat time.Time, eventCount int) error
	ListDevices(ctx context.Context) ([]Device, error)

	TeacherByUID(ctx context.Context, uid string) (*Teacher, error)
	TeacherByID(ctx context.Context, id int64) (*Teacher, error)
	// Assignments returns a teacher's subject codes and class group names
	// in assignment order.
	Assignments(ctx context.Context, teacherID int64) (subjects, classes []string, err error)
	TeacherUIDs(ctx context.Context) ([]string, error)
	StudentByUID(ctx context.Context, uid string) (*Student, error)

	CreateSession(ctx context.Context, s Session) error
	CloseSession(ctx context.Context, sessionID string, end time.Time) error
	UpsertAttendance(ctx context.Context, row AttendanceRow) error
	ListAttendance(ctx context.Context, sessionID string) ([]AttendanceRow, error)

	CreatePending(ctx context.Context, p PendingSession) error
	AddPendingStudent(ctx context.Context, row PendingStudent) error
	GetPending(ctx context.Context, tempID string) (*PendingSession, []PendingStudent, error)
	ListPending(ctx context.Context, openOnly bool) ([]PendingSession, error)
	// FinalizePending converts a staged session into a durable Session plus
	// one Attendance row per staged student, atomically with the
	// finalized-flag check-and-set. Returns ErrPendingNotFound or
	// ErrAlreadyFinalized as appropriate.
	FinalizePending(ctx context.Context, tempID string, end time.Time, source string) (*Session, int, error)
}
