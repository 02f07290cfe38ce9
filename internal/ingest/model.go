package ingest

import "time"

// heartbeatWindow is how fresh a device heartbeat must be for the device
// to count as online.
const heartbeatWindow = 90 * time.Second

// Attendance sources recorded on each row.
const (
	SourceIoT  = "IOT"
	SourceRFID = "RFID"
)

// Device is a classroom gateway, upserted on every upload.
type Device struct {
	DeviceID      string         `json:"device_id"`
	Name          string         `json:"name"`
	LastHeartbeat *time.Time     `json:"last_heartbeat,omitempty"`
	Meta          map[string]any `json:"meta,omitempty"`
}

// Online reports whether the device heartbeat is fresher than 90 seconds.
func (d Device) Online(now time.Time) bool {
	if d.LastHeartbeat == nil {
		return false
	}
	return now.Sub(*d.LastHeartbeat) < heartbeatWindow
}

// Teacher is a card-to-account binding.
type Teacher struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	UID   string `json:"nfc_uid"`
}

// Student is a card-to-enrollment binding.
type Student struct {
	ID         int64  `json:"id"`
	StudentID  string `json:"student_id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	ClassGroup string `json:"class_group"`
	UID        string `json:"nfc_uid"`
}

// Session is one committed lecture period. EndTime is nil while open.
type Session struct {
	SessionID   string     `json:"session_id"`
	SubjectCode string     `json:"subject_code"`
	ClassGroup  string     `json:"class_group"`
	TeacherID   int64      `json:"teacher_id"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	Cancelled   bool       `json:"cancelled"`
}

// AttendanceRow is one student's mark within a session. Unique per
// (session, student); repeated taps upsert the same row.
type AttendanceRow struct {
	SessionID      string    `json:"session_id"`
	StudentID      int64     `json:"student_id"`
	Present        bool      `json:"present"`
	VerifiedByFace bool      `json:"verified_by_face"`
	Timestamp      time.Time `json:"timestamp"`
	Source         string    `json:"source"`
	DeviceID       string    `json:"device_id,omitempty"`
}

// PendingSession is a staged upload awaiting teacher review. Its temp_id
// becomes the durable session id at finalize time.
type PendingSession struct {
	TempID      string    `json:"temp_id"`
	TeacherID   int64     `json:"teacher_id"`
	SubjectCode string    `json:"subject_code"`
	ClassGroup  string    `json:"class_group"`
	DeviceID    string    `json:"device_id"`
	CreatedAt   time.Time `json:"created_at"`
	Finalized   bool      `json:"finalized"`
}

// PendingStudent is one staged mark. Unlike AttendanceRow there is no
// uniqueness constraint; duplicates across a batch are kept as-is.
type PendingStudent struct {
	ID        string    `json:"id"`
	TempID    string    `json:"temp_id"`
	StudentID int64     `json:"student_id"`
	Present   bool      `json:"present"`
	Timestamp time.Time `json:"timestamp"`
}
