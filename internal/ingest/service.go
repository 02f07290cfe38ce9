// Package ingest turns batches of hardware tap events into durable
// sessions and attendance records. It is the authoritative state machine
// between the classroom gateways and the reporting side of the system.
package ingest

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"aura/internal/event"
)

// Hooks are the best-effort notification points fired after a batch
// commits. Implementations go through the mail queue; a nil Hooks
// disables notifications entirely.
type Hooks interface {
	SessionStarted(ctx context.Context, s Session, t Teacher) error
	SessionEnded(ctx context.Context, s Session, t Teacher) error
	UploadConfirmed(ctx context.Context, t Teacher, classGroup string) error
	HeadNotified(ctx context.Context, t Teacher, classGroup string) error
}

// Service resolves identity and commits attendance. One instance serves
// all concurrent requests; the store is the only shared mutable state.
type Service struct {
	store Store
	hooks Hooks
	now   func() time.Time
}

// NewService builds a reconciler over the given store. hooks may be nil.
func NewService(store Store, hooks Hooks) *Service {
	return &Service{store: store, hooks: hooks, now: time.Now}
}

// Result is the outcome of a committed batch.
type Result struct {
	SessionID string
	Records   int
}

// StageResult is the outcome of a staged batch.
type StageResult struct {
	PendingID string
	Students  int
}

// batchIdentity is what steps 1-4 of reconciliation resolve: the teacher
// who started the session and their assigned subject and class.
type batchIdentity struct {
	teacher Teacher
	subject string
	class   string
}

// firstAssigned is the assignment policy: a teacher's first subject and
// first class. A teacher with multiple assignments cannot disambiguate
// via a hardware tap alone; this is a product decision, kept in one place
// so a smarter policy can replace it without touching the reconciler.
func firstAssigned(subjects, classes []string) (subject, class string, err error) {
	if len(subjects) == 0 || len(classes) == 0 {
		return "", "", ErrNoAssignment
	}
	return subjects[0], classes[0], nil
}

// resolveBatch runs the hard preconditions shared by the direct and the
// staged ingestion paths. The device upsert happens first, before any
// identity check, so a rejected batch still refreshes the heartbeat.
func (s *Service) resolveBatch(ctx context.Context, deviceID string, events []event.Tap) (*batchIdentity, error) {
	if deviceID == "" || len(events) == 0 {
		uploadsRejected.WithLabelValues("missing_fields").Inc()
		return nil, ErrMissingFields
	}

	if err := s.store.UpsertDevice(ctx, deviceID, deviceID, s.now(), len(events)); err != nil {
		return nil, fmt.Errorf("upsert device %s: %w", deviceID, err)
	}

	var teacherUID string
	for _, ev := range events {
		if ev.Kind == event.SessionStart {
			teacherUID = ev.UID
			break
		}
	}
	if teacherUID == "" {
		uploadsRejected.WithLabelValues("no_session_start").Inc()
		return nil, ErrNoSessionStart
	}

	teacher, err := s.store.TeacherByUID(ctx, teacherUID)
	if err != nil {
		return nil, fmt.Errorf("teacher lookup: %w", err)
	}
	if teacher == nil {
		uploadsRejected.WithLabelValues("unknown_teacher").Inc()
		return nil, ErrUnknownTeacher
	}

	subjects, classes, err := s.store.Assignments(ctx, teacher.ID)
	if err != nil {
		return nil, fmt.Errorf("assignment lookup: %w", err)
	}
	subject, class, err := firstAssigned(subjects, classes)
	if err != nil {
		uploadsRejected.WithLabelValues("no_assignment").Inc()
		return nil, err
	}

	return &batchIdentity{teacher: *teacher, subject: subject, class: class}, nil
}

func mintSessionID(subjectCode string, now time.Time) string {
	return fmt.Sprintf("S_%s_%s", subjectCode, now.UTC().Format("20060102_150405"))
}

func mintPendingID(now time.Time) string {
	return "IOT_" + now.UTC().Format("20060102_150405")
}

// Reconcile commits one uploaded batch directly into durable records.
// Preconditions fail fast before any session write; once the session row
// exists the batch is considered committed and later failures (individual
// student lookups, closing, notifications) are logged, not rolled back.
func (s *Service) Reconcile(ctx context.Context, deviceID string, events []event.Tap) (*Result, error) {
	ident, err := s.resolveBatch(ctx, deviceID, events)
	if err != nil {
		return nil, err
	}

	start := s.now()
	sess := Session{
		SessionID:   mintSessionID(ident.subject, start),
		SubjectCode: ident.subject,
		ClassGroup:  ident.class,
		TeacherID:   ident.teacher.ID,
		StartTime:   start,
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session %s: %w", sess.SessionID, err)
	}
	sessionsCommitted.Inc()
	s.fire(ctx, "session_start", func() error { return s.hooks.SessionStarted(ctx, sess, ident.teacher) })

	// Past this point the session exists: keep whatever we can capture.
	marked := make(map[int64]bool)
	for _, ev := range events {
		if ev.Kind != event.AttendanceMark {
			continue
		}
		student, err := s.store.StudentByUID(ctx, ev.UID)
		if err != nil {
			log.Printf("[INGEST] student lookup %q: %v", ev.UID, err)
			continue
		}
		if student == nil {
			// Unenrolled or noisy card read; not an error.
			continue
		}
		row := AttendanceRow{
			SessionID: sess.SessionID,
			StudentID: student.ID,
			Present:   true,
			Timestamp: s.now(),
			Source:    SourceIoT,
			DeviceID:  deviceID,
		}
		if err := s.store.UpsertAttendance(ctx, row); err != nil {
			log.Printf("[INGEST] attendance upsert %s/%d: %v", sess.SessionID, student.ID, err)
			continue
		}
		attendanceUpserts.Inc()
		marked[student.ID] = true
	}

	end := s.now()
	if err := s.store.CloseSession(ctx, sess.SessionID, end); err != nil {
		log.Printf("[INGEST] close session %s: %v", sess.SessionID, err)
	}
	sess.EndTime = &end

	s.fire(ctx, "session_end", func() error { return s.hooks.SessionEnded(ctx, sess, ident.teacher) })
	s.fire(ctx, "teacher_upload", func() error { return s.hooks.UploadConfirmed(ctx, ident.teacher, ident.class) })
	s.fire(ctx, "head_upload", func() error { return s.hooks.HeadNotified(ctx, ident.teacher, ident.class) })

	return &Result{SessionID: sess.SessionID, Records: len(marked)}, nil
}

// Stage resolves a batch exactly like Reconcile but parks it as a
// pending session for teacher review instead of committing attendance.
// Duplicate marks are kept; de-duplication happens at finalize time via
// the attendance upsert.
func (s *Service) Stage(ctx context.Context, deviceID string, events []event.Tap) (*StageResult, error) {
	ident, err := s.resolveBatch(ctx, deviceID, events)
	if err != nil {
		return nil, err
	}

	pending := PendingSession{
		TempID:      mintPendingID(s.now()),
		TeacherID:   ident.teacher.ID,
		SubjectCode: ident.subject,
		ClassGroup:  ident.class,
		DeviceID:    deviceID,
		CreatedAt:   s.now(),
	}
	if err := s.store.CreatePending(ctx, pending); err != nil {
		return nil, fmt.Errorf("create pending %s: %w", pending.TempID, err)
	}
	pendingStaged.Inc()

	count := 0
	for _, ev := range events {
		if ev.Kind != event.AttendanceMark {
			continue
		}
		student, err := s.store.StudentByUID(ctx, ev.UID)
		if err != nil {
			log.Printf("[INGEST] student lookup %q: %v", ev.UID, err)
			continue
		}
		if student == nil {
			continue
		}
		row := PendingStudent{
			ID:        uuid.NewString(),
			TempID:    pending.TempID,
			StudentID: student.ID,
			Present:   true,
			Timestamp: s.now(),
		}
		if err := s.store.AddPendingStudent(ctx, row); err != nil {
			log.Printf("[INGEST] stage student %s/%d: %v", pending.TempID, student.ID, err)
			continue
		}
		count++
	}

	return &StageResult{PendingID: pending.TempID, Students: count}, nil
}

// Review returns a staged session and its rows for teacher inspection.
func (s *Service) Review(ctx context.Context, tempID string) (*PendingSession, []PendingStudent, error) {
	pending, rows, err := s.store.GetPending(ctx, tempID)
	if err != nil {
		return nil, nil, err
	}
	if pending == nil {
		return nil, nil, ErrPendingNotFound
	}
	return pending, rows, nil
}

// ListPendingOpen lists unfinalized staged sessions.
func (s *Service) ListPendingOpen(ctx context.Context) ([]PendingSession, error) {
	return s.store.ListPending(ctx, true)
}

// Finalize commits a staged session. The store performs the finalized
// check-and-set, session creation, and attendance inserts in one
// transaction, so a concurrent second finalize gets ErrAlreadyFinalized
// instead of a second commit.
func (s *Service) Finalize(ctx context.Context, tempID string) (*Result, error) {
	sess, records, err := s.store.FinalizePending(ctx, tempID, s.now(), SourceRFID)
	if err != nil {
		return nil, err
	}
	pendingFinalized.Inc()

	// The pending row only carries the teacher id; resolve the full record
	// so the notifications have a name and an address to go to.
	teacher := Teacher{ID: sess.TeacherID}
	if t, err := s.store.TeacherByID(ctx, sess.TeacherID); err != nil {
		log.Printf("[INGEST] teacher lookup %d: %v", sess.TeacherID, err)
	} else if t != nil {
		teacher = *t
	}
	s.fire(ctx, "session_end", func() error { return s.hooks.SessionEnded(ctx, *sess, teacher) })
	s.fire(ctx, "teacher_upload", func() error { return s.hooks.UploadConfirmed(ctx, teacher, sess.ClassGroup) })

	return &Result{SessionID: sess.SessionID, Records: records}, nil
}

// Devices lists known gateways for the status endpoint.
func (s *Service) Devices(ctx context.Context) ([]Device, error) {
	return s.store.ListDevices(ctx)
}

// SessionAttendance exposes committed rows to the read-only collaborators.
func (s *Service) SessionAttendance(ctx context.Context, sessionID string) ([]AttendanceRow, error) {
	return s.store.ListAttendance(ctx, sessionID)
}

// TeacherUIDs lists teacher card UIDs for the gateway cache sync.
func (s *Service) TeacherUIDs(ctx context.Context) ([]string, error) {
	return s.store.TeacherUIDs(ctx)
}

// fire is the named best-effort policy around notification hooks: any
// failure is logged and swallowed so the attendance-recording path never
// fails because a mail server is unreachable.
func (s *Service) fire(ctx context.Context, name string, fn func() error) {
	if s.hooks == nil {
		return
	}
	if err := fn(); err != nil {
		log.Printf("[NOTIFY] %s hook failed: %v", name, err)
	}
}
