package notify

import (
	"fmt"
	"time"
)

// Email content builders: pure functions from a job to a (subject, body)
// pair.

func fmtTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02 15:04")
}

// BuildEmail maps a job to its subject and HTML body. ok is false for
// unknown kinds, which the worker drops.
func BuildEmail(job Job) (subject, html string, ok bool) {
	switch job.Kind {
	case KindSessionStart:
		return "AURA — Session Started", fmt.Sprintf(
			"<p>Hello %s,</p><p>Your session <b>%s</b> (%s, %s) started at %s.</p>",
			job.TeacherName, job.SessionID, job.SubjectCode, job.ClassGroup, fmtTime(job.StartTime)), true
	case KindSessionEnd:
		return "AURA — Session Ended", fmt.Sprintf(
			"<p>Hello %s,</p><p>Session <b>%s</b> ended at %s. Attendance has been recorded.</p>",
			job.TeacherName, job.SessionID, fmtTime(job.EndTime)), true
	case KindTeacherUpload:
		return "AURA — Attendance Uploaded", fmt.Sprintf(
			"<p>Hello %s,</p><p>Attendance for <b>%s</b> was uploaded at %s.</p>",
			job.TeacherName, job.ClassGroup, time.Now().Format("2006-01-02 15:04")), true
	case KindHeadUpload:
		return "AURA — Teacher Submission", fmt.Sprintf(
			"<p>%s submitted attendance for <b>%s</b> at %s.</p>",
			job.TeacherName, job.ClassGroup, time.Now().Format("2006-01-02 15:04")), true
	}
	return "", "", false
}

// Recipients decides who a job goes to. Department heads come from
// configuration; everything else goes to the teacher on the job.
func Recipients(job Job, headEmails []string) []string {
	if job.Kind == KindHeadUpload {
		return headEmails
	}
	if job.TeacherEmail == "" {
		return nil
	}
	return []string{job.TeacherEmail}
}
