package store

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations are applied in order at startup; every statement is
// idempotent so repeated boots are safe.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS devices (
		device_id      TEXT PRIMARY KEY,
		name           TEXT,
		last_heartbeat TIMESTAMPTZ,
		meta           JSONB
	)`,
	`CREATE TABLE IF NOT EXISTS teachers (
		id      BIGSERIAL PRIMARY KEY,
		name    TEXT NOT NULL,
		email   TEXT,
		nfc_uid TEXT UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS subjects (
		id   BIGSERIAL PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS class_groups (
		id   BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS teacher_subjects (
		teacher_id BIGINT NOT NULL REFERENCES teachers(id) ON DELETE CASCADE,
		subject_id BIGINT NOT NULL REFERENCES subjects(id) ON DELETE CASCADE,
		position   INT NOT NULL DEFAULT 0,
		PRIMARY KEY (teacher_id, subject_id)
	)`,
	`CREATE TABLE IF NOT EXISTS teacher_classes (
		teacher_id     BIGINT NOT NULL REFERENCES teachers(id) ON DELETE CASCADE,
		class_group_id BIGINT NOT NULL REFERENCES class_groups(id) ON DELETE CASCADE,
		position       INT NOT NULL DEFAULT 0,
		PRIMARY KEY (teacher_id, class_group_id)
	)`,
	`CREATE TABLE IF NOT EXISTS students (
		id          BIGSERIAL PRIMARY KEY,
		student_id  TEXT NOT NULL UNIQUE,
		name        TEXT NOT NULL,
		email       TEXT,
		class_group TEXT,
		nfc_uid     TEXT UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		session_id   TEXT PRIMARY KEY,
		subject_code TEXT NOT NULL,
		class_group  TEXT NOT NULL,
		teacher_id   BIGINT REFERENCES teachers(id) ON DELETE SET NULL,
		start_time   TIMESTAMPTZ NOT NULL,
		end_time     TIMESTAMPTZ,
		cancelled    BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS attendance (
		session_id       TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
		student_id       BIGINT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
		present          BOOLEAN NOT NULL DEFAULT TRUE,
		verified_by_face BOOLEAN NOT NULL DEFAULT FALSE,
		ts               TIMESTAMPTZ NOT NULL,
		source           TEXT NOT NULL,
		device_id        TEXT,
		PRIMARY KEY (session_id, student_id)
	)`,
	`CREATE TABLE IF NOT EXISTS pending_sessions (
		temp_id      TEXT PRIMARY KEY,
		teacher_id   BIGINT NOT NULL REFERENCES teachers(id) ON DELETE CASCADE,
		subject_code TEXT NOT NULL,
		class_group  TEXT NOT NULL,
		device_id    TEXT,
		created_at   TIMESTAMPTZ NOT NULL,
		finalized    BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS pending_students (
		id         TEXT PRIMARY KEY,
		temp_id    TEXT NOT NULL REFERENCES pending_sessions(temp_id) ON DELETE CASCADE,
		student_id BIGINT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
		present    BOOLEAN NOT NULL DEFAULT TRUE,
		ts         TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_class_subject ON sessions (class_group, subject_code, start_time)`,
	`CREATE INDEX IF NOT EXISTS idx_attendance_student ON attendance (student_id)`,
	`CREATE INDEX IF NOT EXISTS idx_pending_open ON pending_sessions (finalized, created_at)`,
}

// Migrate applies the schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
