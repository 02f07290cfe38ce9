package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// memStore is an in-memory Store with the same semantics the Postgres
// repository gets from its constraints: unique session ids, attendance
// upserted per (session, student), finalize-once pending sessions.
type memStore struct {
	mu sync.Mutex

	devices  map[string]Device
	teachers map[string]Teacher
	subjects map[int64][]string
	classes  map[int64][]string
	students map[string]Student

	sessions   map[string]Session
	attendance map[string]map[int64]AttendanceRow

	pending         map[string]PendingSession
	pendingStudents map[string][]PendingStudent

	calls []string
}

func newMemStore() *memStore {
	return &memStore{
		devices:         make(map[string]Device),
		teachers:        make(map[string]Teacher),
		subjects:        make(map[int64][]string),
		classes:         make(map[int64][]string),
		students:        make(map[string]Student),
		sessions:        make(map[string]Session),
		attendance:      make(map[string]map[int64]AttendanceRow),
		pending:         make(map[string]PendingSession),
		pendingStudents: make(map[string][]PendingStudent),
	}
}

func (m *memStore) addTeacher(uid string, id int64, email string, subjects, classes []string) {
	m.teachers[uid] = Teacher{ID: id, Name: "t" + uid, Email: email, UID: uid}
	m.subjects[id] = subjects
	m.classes[id] = classes
}

func (m *memStore) addStudent(uid string, id int64) {
	m.students[uid] = Student{ID: id, StudentID: fmt.Sprintf("stud_%04d", id), Name: "s" + uid, UID: uid}
}

func (m *memStore) UpsertDevice(_ context.Context, deviceID, name string, heartbeat time.Time, eventCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "UpsertDevice")
	hb := heartbeat
	d, ok := m.devices[deviceID]
	if !ok {
		d = Device{DeviceID: deviceID, Name: name}
	}
	d.LastHeartbeat = &hb
	d.Meta = map[string]any{"last_event_count": eventCount}
	m.devices[deviceID] = d
	return nil
}

func (m *memStore) ListDevices(context.Context) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Device, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, d)
	}
	return out, nil
}

func (m *memStore) TeacherByUID(_ context.Context, uid string) (*Teacher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "TeacherByUID")
	if t, ok := m.teachers[uid]; ok {
		return &t, nil
	}
	return nil, nil
}

func (m *memStore) TeacherByID(_ context.Context, id int64) (*Teacher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.teachers {
		if t.ID == id {
			return &t, nil
		}
	}
	return nil, nil
}

func (m *memStore) Assignments(_ context.Context, teacherID int64) ([]string, []string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subjects[teacherID], m.classes[teacherID], nil
}

func (m *memStore) TeacherUIDs(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for uid := range m.teachers {
		out = append(out, uid)
	}
	return out, nil
}

func (m *memStore) StudentByUID(_ context.Context, uid string) (*Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.students[uid]; ok {
		return &s, nil
	}
	return nil, nil
}

func (m *memStore) CreateSession(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[s.SessionID]; exists {
		return fmt.Errorf("duplicate session id %s", s.SessionID)
	}
	m.sessions[s.SessionID] = s
	return nil
}

func (m *memStore) CloseSession(_ context.Context, sessionID string, end time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("no session %s", sessionID)
	}
	s.EndTime = &end
	m.sessions[sessionID] = s
	return nil
}

func (m *memStore) UpsertAttendance(_ context.Context, row AttendanceRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attendance[row.SessionID] == nil {
		m.attendance[row.SessionID] = make(map[int64]AttendanceRow)
	}
	m.attendance[row.SessionID][row.StudentID] = row
	return nil
}

func (m *memStore) ListAttendance(_ context.Context, sessionID string) ([]AttendanceRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AttendanceRow
	for _, row := range m.attendance[sessionID] {
		out = append(out, row)
	}
	return out, nil
}

func (m *memStore) CreatePending(_ context.Context, p PendingSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.pending[p.TempID]; exists {
		return fmt.Errorf("duplicate pending id %s", p.TempID)
	}
	m.pending[p.TempID] = p
	return nil
}

func (m *memStore) AddPendingStudent(_ context.Context, row PendingStudent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingStudents[row.TempID] = append(m.pendingStudents[row.TempID], row)
	return nil
}

func (m *memStore) GetPending(_ context.Context, tempID string) (*PendingSession, []PendingStudent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pending[tempID]
	if !ok {
		return nil, nil, nil
	}
	rows := append([]PendingStudent(nil), m.pendingStudents[tempID]...)
	return &p, rows, nil
}

func (m *memStore) ListPending(_ context.Context, openOnly bool) ([]PendingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []PendingSession
	for _, p := range m.pending {
		if openOnly && p.Finalized {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *memStore) FinalizePending(_ context.Context, tempID string, end time.Time, source string) (*Session, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pending[tempID]
	if !ok {
		return nil, 0, ErrPendingNotFound
	}
	if p.Finalized {
		return nil, 0, ErrAlreadyFinalized
	}
	p.Finalized = true
	m.pending[tempID] = p

	sess := Session{
		SessionID:   tempID,
		SubjectCode: p.SubjectCode,
		ClassGroup:  p.ClassGroup,
		TeacherID:   p.TeacherID,
		StartTime:   p.CreatedAt,
		EndTime:     &end,
	}
	if _, exists := m.sessions[tempID]; exists {
		return nil, 0, fmt.Errorf("duplicate session id %s", tempID)
	}
	m.sessions[tempID] = sess

	rows := make(map[int64]AttendanceRow)
	for _, ps := range m.pendingStudents[tempID] {
		rows[ps.StudentID] = AttendanceRow{
			SessionID: tempID,
			StudentID: ps.StudentID,
			Present:   ps.Present,
			Timestamp: ps.Timestamp,
			Source:    source,
			DeviceID:  p.DeviceID,
		}
	}
	m.attendance[tempID] = rows
	return &sess, len(rows), nil
}

var _ Store = (*memStore)(nil)
