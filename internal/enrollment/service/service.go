// Package service implements the admission controller: the public entry
// point for enrollment requests. It composes seat guard calls with
// persistence, notification, and the resilience wrappers (batching, retry,
// circuit breaking, timeouts) defined in the sibling files.
package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"registrar/internal/enrollment/guard"
	"registrar/internal/enrollment/metrics"
	"registrar/internal/enrollment/models"
	"registrar/internal/enrollment/ports"
	id "registrar/pkg/domain"
	dErrors "registrar/pkg/domain-errors"
	"registrar/pkg/platform/circuit"
	"registrar/pkg/requestcontext"
)

const defaultMaxInFlight = 16

// Service orchestrates enrollment attempts against the seat guard.
type Service struct {
	guard   *guard.SeatGuard
	records ports.RecordStore
	sink    ports.NotificationSink
	breaker *circuit.Breaker
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	maxInFlight int
}

// Option customizes a Service.
type Option func(*Service)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithNotificationSink attaches a fire-and-forget event sink.
func WithNotificationSink(sink ports.NotificationSink) Option {
	return func(s *Service) {
		s.sink = sink
	}
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithMaxInFlight bounds the number of concurrent reservation attempts a
// batch may have in flight.
func WithMaxInFlight(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxInFlight = n
		}
	}
}

// WithBreaker sets the circuit breaker guarding the record store.
func WithBreaker(b *circuit.Breaker) Option {
	return func(s *Service) {
		s.breaker = b
	}
}

// New creates an admission service.
func New(g *guard.SeatGuard, records ports.RecordStore, opts ...Option) (*Service, error) {
	if g == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "seat guard is required")
	}
	if records == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "record store is required")
	}

	s := &Service{
		guard:       g,
		records:     records,
		breaker:     circuit.New("record-store"),
		maxInFlight: defaultMaxInFlight,
		tracer:      otel.Tracer("registrar/enrollment"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Process runs a single enrollment attempt. The returned record is always
// terminal: ENROLLED on success, REJECTED_* for business rejections (paired
// with the matching coded error), FAILED when persistence broke after the
// seat had been reserved (the seat is released again before returning).
// Rejections are not persisted.
func (s *Service) Process(ctx context.Context, studentID id.StudentID, courseID id.CourseID) (*models.EnrollmentRecord, error) {
	ctx, span := s.tracer.Start(ctx, "enrollment.process")
	defer span.End()

	now := requestcontext.Now(ctx)
	record := &models.EnrollmentRecord{
		ID:         id.NewRecordID(),
		StudentID:  studentID,
		CourseID:   courseID,
		Status:     models.StatusPending,
		CreatedAt:  now,
		ModifiedAt: now,
	}

	if err := s.guard.Reserve(ctx, courseID, studentID); err != nil {
		switch dErrors.CodeOf(err) {
		case dErrors.CodeCapacityExceeded:
			record.Status = models.StatusRejectedCapacity
			s.observe(record.Status)
			ports.Notify(ctx, s.logger, s.sink, ports.Event{
				Action:    ports.EventRejectedCapacity,
				StudentID: studentID,
				CourseID:  courseID,
				RecordID:  record.ID,
			})
		case dErrors.CodeDuplicateEnrollment:
			record.Status = models.StatusRejectedDuplicate
			s.observe(record.Status)
			ports.Notify(ctx, s.logger, s.sink, ports.Event{
				Action:    ports.EventRejectedDup,
				StudentID: studentID,
				CourseID:  courseID,
				RecordID:  record.ID,
			})
		default:
			record.Status = models.StatusFailed
			s.observe(record.Status)
		}
		record.ModifiedAt = now
		return record, err
	}

	record.Status = models.StatusEnrolled
	record.ModifiedAt = now
	persisted, err := s.records.Create(ctx, record)
	if err != nil {
		// The seat was taken but the record cannot be persisted; give the
		// seat back so state and store stay consistent. Compensation runs
		// detached from the request context: an expired deadline must not
		// strand the seat.
		relCtx := context.WithoutCancel(ctx)
		if relErr := s.guard.Release(relCtx, courseID, studentID); relErr != nil && s.logger != nil {
			s.logger.ErrorContext(ctx, "seat release compensation failed",
				"student_id", studentID,
				"course_id", courseID,
				"error", relErr,
			)
		}
		record.Status = models.StatusFailed
		s.observe(record.Status)
		return record, dErrors.Wrap(err, dErrors.CodeOf(err), "persist enrollment record")
	}

	s.observe(models.StatusEnrolled)
	ports.Notify(ctx, s.logger, s.sink, ports.Event{
		Action:    ports.EventEnrolled,
		StudentID: studentID,
		CourseID:  courseID,
		RecordID:  persisted.ID,
	})

	if s.logger != nil {
		s.logger.InfoContext(ctx, "student enrolled",
			"student_id", studentID,
			"course_id", courseID,
			"record_id", persisted.ID,
		)
	}
	return persisted, nil
}

// ProcessWithTimeout bounds the total wait for one enrollment attempt. If
// the course critical section (or any downstream call) cannot complete
// within d, the attempt fails with CodeTimeout instead of blocking.
func (s *Service) ProcessWithTimeout(ctx context.Context, studentID id.StudentID, courseID id.CourseID, d time.Duration) (*models.EnrollmentRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	record, err := s.Process(ctx, studentID, courseID)
	if err != nil && ctx.Err() != nil && !dErrors.HasCode(err, dErrors.CodeTimeout) {
		err = dErrors.Wrap(err, dErrors.CodeTimeout, "enrollment timed out")
	}
	return record, err
}

// Transfer moves a student between two courses. Seat movement is atomic
// with respect to both courses; guard acquisition follows the global
// course-id order, so opposing transfers cannot deadlock. A persistence
// failure after the seats moved is compensated by transferring back.
func (s *Service) Transfer(ctx context.Context, studentID id.StudentID, from, to id.CourseID) (*models.EnrollmentRecord, error) {
	ctx, span := s.tracer.Start(ctx, "enrollment.transfer")
	defer span.End()

	if err := s.guard.Transfer(ctx, studentID, from, to); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	record := &models.EnrollmentRecord{
		ID:         id.NewRecordID(),
		StudentID:  studentID,
		CourseID:   to,
		Status:     models.StatusEnrolled,
		CreatedAt:  now,
		ModifiedAt: now,
	}
	persisted, err := s.records.Create(ctx, record)
	if err != nil {
		backCtx := context.WithoutCancel(ctx)
		if backErr := s.guard.Transfer(backCtx, studentID, to, from); backErr != nil && s.logger != nil {
			s.logger.ErrorContext(ctx, "transfer compensation failed",
				"student_id", studentID,
				"from", from,
				"to", to,
				"error", backErr,
			)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeOf(err), "persist transfer record")
	}

	ports.Notify(ctx, s.logger, s.sink, ports.Event{
		Action:    ports.EventTransferred,
		StudentID: studentID,
		CourseID:  to,
		RecordID:  persisted.ID,
	})
	return persisted, nil
}

func (s *Service) observe(status models.EnrollmentStatus) {
	if s.metrics != nil {
		s.metrics.ObserveEnrollment(string(status))
	}
}
