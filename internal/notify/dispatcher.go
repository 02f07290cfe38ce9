package notify

import (
	"context"
	"encoding/json"
	"time"

	"aura/internal/ingest"
	"aura/internal/queue"
)

// MessageType tags notification jobs on the queue.
const MessageType = "notify"

// Job kinds.
const (
	KindSessionStart  = "session_start"
	KindSessionEnd    = "session_end"
	KindTeacherUpload = "teacher_upload"
	KindHeadUpload    = "head_upload"
)

// Job is one queued notification, carrying everything the worker needs so
// it never has to reach back into the store.
type Job struct {
	Kind         string     `json:"kind"`
	SessionID    string     `json:"session_id,omitempty"`
	SubjectCode  string     `json:"subject_code,omitempty"`
	ClassGroup   string     `json:"class_group,omitempty"`
	TeacherName  string     `json:"teacher_name,omitempty"`
	TeacherEmail string     `json:"teacher_email,omitempty"`
	StartTime    *time.Time `json:"start_time,omitempty"`
	EndTime      *time.Time `json:"end_time,omitempty"`
}

// Dispatcher publishes notification jobs to the queue. It implements
// ingest.Hooks; the reconciler wraps every call in its best-effort
// policy, so publish failures surface as errors and go no further.
type Dispatcher struct {
	q queue.Queue
}

// NewDispatcher builds a dispatcher over the given queue.
func NewDispatcher(q queue.Queue) *Dispatcher {
	return &Dispatcher{q: q}
}

var _ ingest.Hooks = (*Dispatcher)(nil)

func (d *Dispatcher) publish(ctx context.Context, job Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return d.q.Publish(ctx, queue.Message{Type: MessageType, Body: body})
}

// SessionStarted queues the session-start mail to the teacher.
func (d *Dispatcher) SessionStarted(ctx context.Context, s ingest.Session, t ingest.Teacher) error {
	return d.publish(ctx, Job{
		Kind:         KindSessionStart,
		SessionID:    s.SessionID,
		SubjectCode:  s.SubjectCode,
		ClassGroup:   s.ClassGroup,
		TeacherName:  t.Name,
		TeacherEmail: t.Email,
		StartTime:    &s.StartTime,
	})
}

// SessionEnded queues the session-end mail to the teacher.
func (d *Dispatcher) SessionEnded(ctx context.Context, s ingest.Session, t ingest.Teacher) error {
	return d.publish(ctx, Job{
		Kind:         KindSessionEnd,
		SessionID:    s.SessionID,
		SubjectCode:  s.SubjectCode,
		ClassGroup:   s.ClassGroup,
		TeacherName:  t.Name,
		TeacherEmail: t.Email,
		EndTime:      s.EndTime,
	})
}

// UploadConfirmed queues the upload confirmation to the teacher.
func (d *Dispatcher) UploadConfirmed(ctx context.Context, t ingest.Teacher, classGroup string) error {
	return d.publish(ctx, Job{
		Kind:         KindTeacherUpload,
		ClassGroup:   classGroup,
		TeacherName:  t.Name,
		TeacherEmail: t.Email,
	})
}

// HeadNotified queues the department-head submission notice.
func (d *Dispatcher) HeadNotified(ctx context.Context, t ingest.Teacher, classGroup string) error {
	return d.publish(ctx, Job{
		Kind:        KindHeadUpload,
		ClassGroup:  classGroup,
		TeacherName: t.Name,
	})
}
