package models

import "time"

// Mark bounds and the pass threshold.
const (
	MinMark  = 1
	MaxMark  = 10
	PassMark = 6
)

// EvaluationRecord is an immutable exam result. Records are append-only.
type EvaluationRecord struct {
	ID        uint64    `db:"id" json:"id"`
	CourseID  uint64    `db:"course_id" json:"course_id"`
	Student   string    `db:"student" json:"student"`
	Evaluator string    `db:"evaluator" json:"evaluator"`
	Mark      uint8     `db:"mark" json:"mark"`
	Timestamp time.Time `db:"evaluated_at" json:"timestamp"`
}

// Passed reports whether the mark clears the pass threshold.
func (r EvaluationRecord) Passed() bool {
	return r.Mark >= PassMark
}

// EvaluateRequest records a student's mark.
type EvaluateRequest struct {
	Student string `json:"student" validate:"required,address"`
	Mark    int    `json:"mark"`
}

// CourseResults partitions evaluated students by outcome.
type CourseResults struct {
	CourseID    uint64   `json:"course_id"`
	Passed      []string `json:"passed"`
	Failed      []string `json:"failed"`
	PassedCount uint64   `json:"passed_count"`
}

// CertificateRequest finalises a course with the given certificate URI.
type CertificateRequest struct {
	URI string `json:"uri" validate:"required,max=2048"`
}

// CertificateResult summarises a finalisation run.
type CertificateResult struct {
	CourseID       uint64   `json:"course_id"`
	URI            string   `json:"uri"`
	UnsoldBurned   uint64   `json:"unsold_burned"`
	Revoked        []string `json:"revoked"`
	Certified      []string `json:"certified"`
	PassedStudents uint64   `json:"passed_students"`
}
