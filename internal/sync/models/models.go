package models

import (
	"time"

	enrollment "registrar/internal/enrollment/models"
	id "registrar/pkg/domain"
)

// Classification is the per-record verdict of a reconciliation comparison.
type Classification int

const (
	// ClassCreate: no target record exists for the source's primary key.
	ClassCreate Classification = iota
	// ClassNoOp: the target exists and matches the source materially.
	ClassNoOp
	// ClassConflict: the target exists and differs materially.
	ClassConflict
	// ClassInvalid: the source fails field validation, regardless of
	// target state.
	ClassInvalid
	// ClassIntegrityViolation: the source references a course that cannot
	// be resolved. Checked after validation.
	ClassIntegrityViolation
)

func (c Classification) String() string {
	switch c {
	case ClassCreate:
		return "create"
	case ClassNoOp:
		return "noop"
	case ClassConflict:
		return "conflict"
	case ClassInvalid:
		return "invalid"
	case ClassIntegrityViolation:
		return "integrity_violation"
	default:
		return "unknown"
	}
}

// MergeFunc combines a conflicting source/target pair into the record that
// should win. Supplied by the caller for the ManualMerge policy.
type MergeFunc func(source, target *enrollment.EnrollmentRecord) (*enrollment.EnrollmentRecord, error)

// PolicyKind enumerates the closed set of conflict resolution strategies.
type PolicyKind int

const (
	PolicyLastWriteWins PolicyKind = iota
	PolicyManualMerge
	PolicyIgnoreConflicts
)

func (k PolicyKind) String() string {
	switch k {
	case PolicyLastWriteWins:
		return "last_write_wins"
	case PolicyManualMerge:
		return "manual_merge"
	case PolicyIgnoreConflicts:
		return "ignore_conflicts"
	default:
		return "unknown"
	}
}

// Policy selects a conflict resolution strategy for one sync invocation.
// Stateless; the Merge function is only consulted for PolicyManualMerge.
type Policy struct {
	Kind  PolicyKind
	Merge MergeFunc
}

// LastWriteWins keeps whichever record carries the later modification
// timestamp, ties favoring the source.
func LastWriteWins() Policy {
	return Policy{Kind: PolicyLastWriteWins}
}

// ManualMerge delegates conflicts to the supplied merge function.
func ManualMerge(fn MergeFunc) Policy {
	return Policy{Kind: PolicyManualMerge, Merge: fn}
}

// IgnoreConflicts leaves the target unchanged and marks the candidate as
// skipped.
func IgnoreConflicts() Policy {
	return Policy{Kind: PolicyIgnoreConflicts}
}

// SyncCandidate pairs a source record with its target match (nil when the
// target store has no record under the source's primary key). Transient;
// exists only during one reconciliation pass.
type SyncCandidate struct {
	Source *enrollment.EnrollmentRecord
	Target *enrollment.EnrollmentRecord
}

// RecordIssue reports a per-record validation or integrity failure.
// Non-fatal to the batch.
type RecordIssue struct {
	RecordID id.RecordID
	Reason   string
}

// PerformanceMetrics capture the wall-clock profile of one sync run.
type PerformanceMetrics struct {
	Elapsed      time.Duration
	AvgPerRecord time.Duration
	Throughput   float64 // records per second
}

// SyncResult aggregates one reconciliation run. Built incrementally while
// the run executes, immutable once returned.
type SyncResult struct {
	Processed         int
	Created           int
	Updated           int
	Skipped           int
	Failed            int
	ConflictsResolved int

	ValidationErrors    []RecordIssue
	IntegrityViolations []RecordIssue

	RollbackPerformed bool
	Perf              PerformanceMetrics
}
