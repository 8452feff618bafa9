package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"registrar/internal/enrollment/models"
	id "registrar/pkg/domain"
	dErrors "registrar/pkg/domain-errors"
)

// ProcessWithRetry re-attempts enrollment on transient failures with the
// delay doubling each attempt (baseDelay, 2x, 4x, ...). Capacity and
// duplicate rejections are terminal business outcomes and never retried.
// Exhausting maxAttempts propagates the last failure.
func (s *Service) ProcessWithRetry(ctx context.Context, studentID id.StudentID, courseID id.CourseID, maxAttempts int, baseDelay time.Duration) (*models.EnrollmentRecord, error) {
	if maxAttempts < 1 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "maxAttempts must be at least 1")
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = baseDelay
	policy.RandomizationFactor = 0
	policy.Multiplier = 2
	policy.MaxInterval = time.Hour
	policy.MaxElapsedTime = 0

	var record *models.EnrollmentRecord
	operation := func() error {
		rec, err := s.Process(ctx, studentID, courseID)
		record = rec
		if err == nil {
			return nil
		}
		if !dErrors.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		if s.metrics != nil {
			s.metrics.RetryAttempts.Inc()
		}
		return err
	}

	retries := uint64(maxAttempts - 1)
	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, retries), ctx))
	return record, err
}
