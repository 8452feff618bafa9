// Package ports defines the collaborator contracts the enrollment core
// depends on. The core consumes these interfaces and must not assume their
// internals; implementations live under store/ and notify/.
package ports

import (
	"context"
	"log/slog"
	"time"

	"registrar/internal/enrollment/models"
	id "registrar/pkg/domain"
)

// CourseCatalog is the read path for course capacity. The seat guard seeds
// its per-course state from here and is afterwards the sole authority for
// mutation.
type CourseCatalog interface {
	// GetCourse returns capacity, current count and the enrolled set for a
	// course. Implementations return sentinel.ErrNotFound (wrapped or not)
	// for unknown courses.
	GetCourse(ctx context.Context, courseID id.CourseID) (*models.CourseInfo, error)
}

// RecordStore persists enrollment records. Implementations distinguish
// transient from permanent failures through error codes so callers can
// decide whether to retry.
type RecordStore interface {
	Find(ctx context.Context, recordID id.RecordID) (*models.EnrollmentRecord, error)
	Create(ctx context.Context, record *models.EnrollmentRecord) (*models.EnrollmentRecord, error)
	Update(ctx context.Context, recordID id.RecordID, record *models.EnrollmentRecord) (*models.EnrollmentRecord, error)
	Delete(ctx context.Context, recordID id.RecordID) error
}

// Event is a post-enrollment / post-sync notification.
type Event struct {
	Action    string
	StudentID id.StudentID
	CourseID  id.CourseID
	RecordID  id.RecordID
	Timestamp time.Time
	Detail    string
}

// Event actions emitted by the core.
const (
	EventEnrolled         = "enrollment.enrolled"
	EventRejectedCapacity = "enrollment.rejected_capacity"
	EventRejectedDup      = "enrollment.rejected_duplicate"
	EventTransferred      = "enrollment.transferred"
	EventSyncCompleted    = "sync.completed"
	EventSyncFailed       = "sync.failed"
)

// NotificationSink receives fire-and-forget events. Failures here must
// never fail the primary operation; callers log and move on.
type NotificationSink interface {
	Notify(ctx context.Context, event Event) error
}

// Notify emits an event if a sink is configured, logging (not propagating)
// sink failures. Shared helper so services treat the sink consistently.
func Notify(ctx context.Context, logger *slog.Logger, sink NotificationSink, event Event) {
	if sink == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := sink.Notify(ctx, event); err != nil && logger != nil {
		logger.WarnContext(ctx, "notification sink failed",
			"action", event.Action,
			"error", err,
		)
	}
}
