package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Repository persists ingestion data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

var _ Store = (*Repository)(nil)

// UpsertDevice refreshes a gateway's heartbeat and metadata, creating the
// row on first contact. An existing name is never overwritten.
func (r *Repository) UpsertDevice(ctx context.Context, deviceID, name string, heartbeat time.Time, eventCount int) error {
	if deviceID == "" {
		return errors.New("device id required")
	}
	meta, _ := json.Marshal(map[string]any{"last_event_count": eventCount})
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (device_id, name, last_heartbeat, meta)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (device_id) DO UPDATE SET
			name = COALESCE(NULLIF(devices.name, ''), EXCLUDED.name),
			last_heartbeat = EXCLUDED.last_heartbeat,
			meta = COALESCE(devices.meta, '{}'::jsonb) || EXCLUDED.meta
	`, deviceID, name, heartbeat, meta)
	return err
}

// ListDevices returns all known gateways.
func (r *Repository) ListDevices(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT device_id, COALESCE(name, ''), last_heartbeat, meta
		FROM devices ORDER BY device_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Device
	for rows.Next() {
		var d Device
		var meta []byte
		if err := rows.Scan(&d.DeviceID, &d.Name, &d.LastHeartbeat, &meta); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &d.Meta)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// TeacherByUID resolves a teacher card binding. Returns (nil, nil) when
// the UID is unknown.
func (r *Repository) TeacherByUID(ctx context.Context, uid string) (*Teacher, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(email, ''), nfc_uid
		FROM teachers WHERE nfc_uid = $1
	`, uid)
	var t Teacher
	if err := row.Scan(&t.ID, &t.Name, &t.Email, &t.UID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// TeacherByID resolves a teacher by primary key. Returns (nil, nil) when
// absent.
func (r *Repository) TeacherByID(ctx context.Context, id int64) (*Teacher, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(email, ''), COALESCE(nfc_uid, '')
		FROM teachers WHERE id = $1
	`, id)
	var t Teacher
	if err := row.Scan(&t.ID, &t.Name, &t.Email, &t.UID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// Assignments returns a teacher's subject codes and class names in
// assignment order.
func (r *Repository) Assignments(ctx context.Context, teacherID int64) ([]string, []string, error) {
	subjects, err := r.stringList(ctx, `
		SELECT s.code FROM teacher_subjects ts
		JOIN subjects s ON s.id = ts.subject_id
		WHERE ts.teacher_id = $1 ORDER BY ts.position, s.code
	`, teacherID)
	if err != nil {
		return nil, nil, err
	}
	classes, err := r.stringList(ctx, `
		SELECT c.name FROM teacher_classes tc
		JOIN class_groups c ON c.id = tc.class_group_id
		WHERE tc.teacher_id = $1 ORDER BY tc.position, c.name
	`, teacherID)
	if err != nil {
		return nil, nil, err
	}
	return subjects, classes, nil
}

// TeacherUIDs lists every non-empty teacher card UID.
func (r *Repository) TeacherUIDs(ctx context.Context) ([]string, error) {
	return r.stringList(ctx, `
		SELECT nfc_uid FROM teachers
		WHERE nfc_uid IS NOT NULL AND nfc_uid <> '' ORDER BY nfc_uid
	`)
}

func (r *Repository) stringList(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// StudentByUID resolves a student card binding. Returns (nil, nil) when
// the UID is unknown.
func (r *Repository) StudentByUID(ctx context.Context, uid string) (*Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, student_id, name, COALESCE(email, ''), COALESCE(class_group, ''), nfc_uid
		FROM students WHERE nfc_uid = $1
	`, uid)
	var s Student
	if err := row.Scan(&s.ID, &s.StudentID, &s.Name, &s.Email, &s.ClassGroup, &s.UID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// CreateSession inserts a new session. The unique constraint on
// session_id surfaces identity collisions as an error instead of a
// silent overwrite.
func (r *Repository) CreateSession(ctx context.Context, s Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, subject_code, class_group, teacher_id, start_time, end_time, cancelled)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, s.SessionID, s.SubjectCode, s.ClassGroup, s.TeacherID, s.StartTime, s.EndTime, s.Cancelled)
	return err
}

// CloseSession stamps end_time, after which the reconciler treats the
// session as immutable.
func (r *Repository) CloseSession(ctx context.Context, sessionID string, end time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET end_time = $2 WHERE session_id = $1
	`, sessionID, end)
	return err
}

// UpsertAttendance writes a mark keyed by (session, student); a repeated
// tap updates the existing row, last write wins.
func (r *Repository) UpsertAttendance(ctx context.Context, row AttendanceRow) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance (session_id, student_id, present, verified_by_face, ts, source, device_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id, student_id) DO UPDATE SET
			present = EXCLUDED.present,
			verified_by_face = EXCLUDED.verified_by_face,
			ts = EXCLUDED.ts,
			source = EXCLUDED.source,
			device_id = EXCLUDED.device_id
	`, row.SessionID, row.StudentID, row.Present, row.VerifiedByFace, row.Timestamp, row.Source, row.DeviceID)
	return err
}

// ListAttendance returns a session's committed rows, newest first.
func (r *Repository) ListAttendance(ctx context.Context, sessionID string) ([]AttendanceRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT session_id, student_id, present, verified_by_face, ts, source, COALESCE(device_id, '')
		FROM attendance WHERE session_id = $1 ORDER BY ts DESC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AttendanceRow
	for rows.Next() {
		var a AttendanceRow
		if err := rows.Scan(&a.SessionID, &a.StudentID, &a.Present, &a.VerifiedByFace, &a.Timestamp, &a.Source, &a.DeviceID); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CreatePending stages an upload for review.
func (r *Repository) CreatePending(ctx context.Context, p PendingSession) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pending_sessions (temp_id, teacher_id, subject_code, class_group, device_id, created_at, finalized)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE)
	`, p.TempID, p.TeacherID, p.SubjectCode, p.ClassGroup, p.DeviceID, p.CreatedAt)
	return err
}

// AddPendingStudent appends one staged mark. No uniqueness constraint:
// duplicates survive until finalize collapses them.
func (r *Repository) AddPendingStudent(ctx context.Context, row PendingStudent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pending_students (id, temp_id, student_id, present, ts)
		VALUES ($1, $2, $3, $4, $5)
	`, row.ID, row.TempID, row.StudentID, row.Present, row.Timestamp)
	return err
}

// GetPending returns a staged session and its rows, (nil, nil, nil) when
// absent.
func (r *Repository) GetPending(ctx context.Context, tempID string) (*PendingSession, []PendingStudent, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT temp_id, teacher_id, subject_code, class_group, device_id, created_at, finalized
		FROM pending_sessions WHERE temp_id = $1
	`, tempID)
	var p PendingSession
	if err := row.Scan(&p.TempID, &p.TeacherID, &p.SubjectCode, &p.ClassGroup, &p.DeviceID, &p.CreatedAt, &p.Finalized); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, temp_id, student_id, present, ts
		FROM pending_students WHERE temp_id = $1 ORDER BY ts
	`, tempID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	var students []PendingStudent
	for rows.Next() {
		var s PendingStudent
		if err := rows.Scan(&s.ID, &s.TempID, &s.StudentID, &s.Present, &s.Timestamp); err != nil {
			return nil, nil, err
		}
		students = append(students, s)
	}
	return &p, students, rows.Err()
}

// ListPending returns staged sessions, optionally only unfinalized ones.
func (r *Repository) ListPending(ctx context.Context, openOnly bool) ([]PendingSession, error) {
	query := `
		SELECT temp_id, teacher_id, subject_code, class_group, device_id, created_at, finalized
		FROM pending_sessions
	`
	if openOnly {
		query += ` WHERE NOT finalized`
	}
	query += ` ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PendingSession
	for rows.Next() {
		var p PendingSession
		if err := rows.Scan(&p.TempID, &p.TeacherID, &p.SubjectCode, &p.ClassGroup, &p.DeviceID, &p.CreatedAt, &p.Finalized); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// FinalizePending converts a staged session into durable records. The
// finalized flag flips inside the same transaction that writes the
// session and attendance rows, so finalize commits at most once.
func (r *Repository) FinalizePending(ctx context.Context, tempID string, end time.Time, source string) (*Session, int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback()

	var p PendingSession
	err = tx.QueryRowContext(ctx, `
		UPDATE pending_sessions SET finalized = TRUE
		WHERE temp_id = $1 AND NOT finalized
		RETURNING teacher_id, subject_code, class_group, device_id, created_at
	`, tempID).Scan(&p.TeacherID, &p.SubjectCode, &p.ClassGroup, &p.DeviceID, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err := r.db.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM pending_sessions WHERE temp_id = $1)
		`, tempID).Scan(&exists); err != nil {
			return nil, 0, err
		}
		if exists {
			return nil, 0, ErrAlreadyFinalized
		}
		return nil, 0, ErrPendingNotFound
	}
	if err != nil {
		return nil, 0, err
	}

	sess := Session{
		SessionID:   tempID,
		SubjectCode: p.SubjectCode,
		ClassGroup:  p.ClassGroup,
		TeacherID:   p.TeacherID,
		StartTime:   p.CreatedAt,
		EndTime:     &end,
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (session_id, subject_code, class_group, teacher_id, start_time, end_time, cancelled)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE)
	`, sess.SessionID, sess.SubjectCode, sess.ClassGroup, sess.TeacherID, sess.StartTime, sess.EndTime); err != nil {
		return nil, 0, fmt.Errorf("finalize %s: %w", tempID, err)
	}

	// Duplicate staged marks collapse to one row per student, last tap
	// winning, matching the direct path's upsert semantics.
	res, err := tx.ExecContext(ctx, `
		INSERT INTO attendance (session_id, student_id, present, verified_by_face, ts, source, device_id)
		SELECT DISTINCT ON (student_id) $1, student_id, present, FALSE, ts, $2, $3
		FROM pending_students WHERE temp_id = $4
		ORDER BY student_id, ts DESC
	`, sess.SessionID, source, p.DeviceID, tempID)
	if err != nil {
		return nil, 0, fmt.Errorf("finalize %s attendance: %w", tempID, err)
	}
	records, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return nil, 0, err
	}
	return &sess, int(records), nil
}
