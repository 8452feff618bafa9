// Package domain defines the typed identifiers shared across the registrar
// core. IDs are distinct types over uuid.UUID so a StudentID can never be
// passed where a CourseID is expected.
package domain

import (
	"github.com/google/uuid"

	dErrors "registrar/pkg/domain-errors"
)

type (
	// StudentID identifies a student across enrollment and sync flows.
	StudentID uuid.UUID

	// CourseID identifies a course. Cross-course lock ordering is defined
	// over the lexicographic order of the underlying UUID bytes.
	CourseID uuid.UUID

	// RecordID identifies an enrollment record.
	RecordID uuid.UUID
)

// parseUUID enforces the shared invariant: IDs must be valid, non-empty,
// non-nil UUIDs. Enforced at trust boundaries, not deep in services.
func parseUUID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id is required")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "id is not a valid UUID")
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be the nil UUID")
	}
	return parsed, nil
}

// ParseStudentID parses and validates a student ID from its string form.
func ParseStudentID(raw string) (StudentID, error) {
	parsed, err := parseUUID(raw)
	if err != nil {
		return StudentID{}, err
	}
	return StudentID(parsed), nil
}

// ParseCourseID parses and validates a course ID from its string form.
func ParseCourseID(raw string) (CourseID, error) {
	parsed, err := parseUUID(raw)
	if err != nil {
		return CourseID{}, err
	}
	return CourseID(parsed), nil
}

// ParseRecordID parses and validates a record ID from its string form.
func ParseRecordID(raw string) (RecordID, error) {
	parsed, err := parseUUID(raw)
	if err != nil {
		return RecordID{}, err
	}
	return RecordID(parsed), nil
}

// NewStudentID returns a fresh random student ID.
func NewStudentID() StudentID { return StudentID(uuid.New()) }

// NewCourseID returns a fresh random course ID.
func NewCourseID() CourseID { return CourseID(uuid.New()) }

// NewRecordID returns a fresh random record ID.
func NewRecordID() RecordID { return RecordID(uuid.New()) }

func (id StudentID) String() string { return uuid.UUID(id).String() }
func (id CourseID) String() string  { return uuid.UUID(id).String() }
func (id RecordID) String() string  { return uuid.UUID(id).String() }

func (id StudentID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id CourseID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id RecordID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }

// Less defines the global total order used for multi-course lock
// acquisition. Any code path that holds more than one course guard must
// acquire them in this order.
func (id CourseID) Less(other CourseID) bool {
	return id.String() < other.String()
}
