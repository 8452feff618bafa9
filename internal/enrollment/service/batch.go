package service

import (
	"context"

	"golang.org/x/sync/errgroup"

	"registrar/internal/enrollment/models"
	id "registrar/pkg/domain"
)

// ProcessBatch fans studentIDs out over a worker pool bounded by the
// configured max in-flight count. Per-item failures are captured in the
// result, never thrown; the error return is reserved for setup problems.
// The bound holds regardless of input size.
func (s *Service) ProcessBatch(ctx context.Context, studentIDs []id.StudentID, courseID id.CourseID) (*models.BatchResult, error) {
	ctx, span := s.tracer.Start(ctx, "enrollment.process_batch")
	defer span.End()

	result := &models.BatchResult{
		Outcomes: make([]models.ItemOutcome, len(studentIDs)),
	}
	if len(studentIDs) == 0 {
		return result, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxInFlight)

	for i, studentID := range studentIDs {
		i, studentID := i, studentID
		g.Go(func() error {
			if s.metrics != nil {
				s.metrics.BatchInFlight.Inc()
				defer s.metrics.BatchInFlight.Dec()
			}
			record, err := s.Process(ctx, studentID, courseID)
			result.Outcomes[i] = models.ItemOutcome{
				StudentID: studentID,
				Record:    record,
				Err:       err,
			}
			// Item errors are part of the aggregate, not group failures.
			return nil
		})
	}
	// Only ctx cancellation can surface here; item errors never do.
	if err := g.Wait(); err != nil {
		return result, err
	}

	for _, outcome := range result.Outcomes {
		result.Processed++
		if outcome.Err == nil {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}
	return result, nil
}
