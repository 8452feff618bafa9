package models

import (
	"time"

	id "registrar/pkg/domain"
)

// EnrollmentStatus represents the lifecycle of an enrollment attempt.
// PENDING is the only non-terminal status; a record never re-enters it.
type EnrollmentStatus string

const (
	StatusPending           EnrollmentStatus = "PENDING"
	StatusEnrolled          EnrollmentStatus = "ENROLLED"
	StatusRejectedCapacity  EnrollmentStatus = "REJECTED_CAPACITY"
	StatusRejectedDuplicate EnrollmentStatus = "REJECTED_DUPLICATE"
	StatusFailed            EnrollmentStatus = "FAILED"
)

// IsValid reports whether the status is one of the known values.
func (s EnrollmentStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusEnrolled, StatusRejectedCapacity, StatusRejectedDuplicate, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
func (s EnrollmentStatus) IsTerminal() bool {
	return s.IsValid() && s != StatusPending
}

// EnrollmentRecord captures one enrollment attempt. Once the status leaves
// PENDING the record is immutable.
type EnrollmentRecord struct {
	ID         id.RecordID
	StudentID  id.StudentID
	CourseID   id.CourseID
	Status     EnrollmentStatus
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// Clone returns an independent copy so stores can hand out records without
// aliasing their internal state.
func (r *EnrollmentRecord) Clone() *EnrollmentRecord {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}

// CourseInfo is the read-side view of a course served by the catalog
// collaborator. The seat guard is the sole authority for mutation; this
// struct only seeds it.
type CourseInfo struct {
	ID       id.CourseID
	Capacity int
	Enrolled int
	Students []id.StudentID
}

// CourseSnapshot is a point-in-time copy of guard-owned course state,
// exposed for tests and metrics. Mutating it has no effect on the guard.
type CourseSnapshot struct {
	ID       id.CourseID
	Capacity int
	Enrolled int
	Students map[id.StudentID]struct{}
}

// ItemOutcome is the per-student result of a batch enrollment.
type ItemOutcome struct {
	StudentID id.StudentID
	Record    *EnrollmentRecord
	Err       error
}

// BatchResult aggregates a batch enrollment run. Per-item failures are
// captured here, never thrown out of the batch call.
type BatchResult struct {
	Processed int
	Succeeded int
	Failed    int
	Outcomes  []ItemOutcome
}
