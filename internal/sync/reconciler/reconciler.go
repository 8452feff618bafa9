// Package reconciler compares source enrollment records against the target
// store and decides, per record, what a sync run must do with it. It is
// pure decision logic; the orchestrator owns all persistence.
package reconciler

import (
	"context"
	"log/slog"

	enrollment "registrar/internal/enrollment/models"
	"registrar/internal/enrollment/ports"
	syncmodels "registrar/internal/sync/models"
	dErrors "registrar/pkg/domain-errors"
)

// Reconciler classifies and resolves enrollment records during sync.
type Reconciler struct {
	catalog ports.CourseCatalog
	logger  *slog.Logger
}

// Option customizes a Reconciler.
type Option func(*Reconciler)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

// New creates a reconciler. The catalog is consulted for referential
// integrity: a source record naming an unknown course is a violation, not
// a create.
func New(catalog ports.CourseCatalog, opts ...Option) (*Reconciler, error) {
	if catalog == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "course catalog is required")
	}
	r := &Reconciler{catalog: catalog}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Classify decides what to do with one source record given its target
// match (nil when the target store has no record under the same ID).
//
// Checks run in a fixed order: field validation, then referential
// integrity, then the existence/equality comparison. An invalid record is
// reported as invalid even when its course would also be unresolvable.
// The returned error carries the matching code for the non-actionable
// classes (Invalid, IntegrityViolation) and is nil otherwise.
func (r *Reconciler) Classify(ctx context.Context, source, target *enrollment.EnrollmentRecord) (syncmodels.Classification, error) {
	if err := validate(source); err != nil {
		return syncmodels.ClassInvalid, err
	}

	if _, err := r.catalog.GetCourse(ctx, source.CourseID); err != nil {
		if r.logger != nil {
			r.logger.DebugContext(ctx, "sync record references unresolvable course",
				"record_id", source.ID,
				"course_id", source.CourseID,
			)
		}
		return syncmodels.ClassIntegrityViolation, dErrors.Wrap(err, dErrors.CodeIntegrity,
			"enrollment references unresolvable course "+source.CourseID.String())
	}

	if target == nil {
		return syncmodels.ClassCreate, nil
	}
	if materiallyEqual(source, target) {
		return syncmodels.ClassNoOp, nil
	}
	return syncmodels.ClassConflict, nil
}

// Resolve applies the conflict policy to a source/target pair that
// Classify judged conflicting. It returns the record that should be
// persisted, or skip=true when the policy leaves the target untouched.
// Resolution never mutates its inputs.
func (r *Reconciler) Resolve(source, target *enrollment.EnrollmentRecord, policy syncmodels.Policy) (resolved *enrollment.EnrollmentRecord, skip bool, err error) {
	switch policy.Kind {
	case syncmodels.PolicyLastWriteWins:
		// Ties favor the source: the sync run exists to push source state.
		if !source.ModifiedAt.Before(target.ModifiedAt) {
			return source.Clone(), false, nil
		}
		return target.Clone(), false, nil

	case syncmodels.PolicyManualMerge:
		if policy.Merge == nil {
			return nil, false, dErrors.New(dErrors.CodeInvalidInput, "manual merge policy requires a merge function")
		}
		merged, mergeErr := policy.Merge(source.Clone(), target.Clone())
		if mergeErr != nil {
			return nil, false, dErrors.Wrap(mergeErr, dErrors.CodeConflict, "manual merge failed")
		}
		if merged == nil {
			return nil, false, dErrors.New(dErrors.CodeConflict, "manual merge returned no record")
		}
		return merged, false, nil

	case syncmodels.PolicyIgnoreConflicts:
		return nil, true, nil

	default:
		return nil, false, dErrors.Newf(dErrors.CodeInvalidInput, "unknown conflict policy %d", policy.Kind)
	}
}

// validate enforces the field invariants a record must satisfy before it
// may touch the target store.
func validate(record *enrollment.EnrollmentRecord) error {
	switch {
	case record == nil:
		return dErrors.New(dErrors.CodeValidation, "record is nil")
	case record.ID.IsNil():
		return dErrors.New(dErrors.CodeValidation, "record id is required")
	case record.StudentID.IsNil():
		return dErrors.New(dErrors.CodeValidation, "student id is required")
	case record.CourseID.IsNil():
		return dErrors.New(dErrors.CodeValidation, "course id is required")
	case !record.Status.IsValid():
		return dErrors.Newf(dErrors.CodeValidation, "unknown status %q", record.Status)
	case record.CreatedAt.IsZero():
		return dErrors.New(dErrors.CodeValidation, "created timestamp is required")
	}
	return nil
}

// materiallyEqual ignores timestamps: two records that agree on student,
// course and status describe the same fact, and re-syncing them must be a
// no-op regardless of when each side last touched the row.
func materiallyEqual(a, b *enrollment.EnrollmentRecord) bool {
	return a.StudentID == b.StudentID &&
		a.CourseID == b.CourseID &&
		a.Status == b.Status
}
