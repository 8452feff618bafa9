package service

import (
	"context"

	"registrar/internal/enrollment/models"
	id "registrar/pkg/domain"
	dErrors "registrar/pkg/domain-errors"
	"registrar/pkg/platform/circuit"
)

// ProcessWithCircuitBreaker consults the record-store breaker before
// attempting enrollment. While the circuit is open and cooling down the
// call fails fast with CodeCircuitOpen and the downstream dependency is not
// touched. Once the cooldown elapses a single probe call is admitted; its
// outcome decides between closing and re-opening.
//
// Only transient failures count against the breaker: capacity and
// duplicate rejections prove the downstream is healthy.
func (s *Service) ProcessWithCircuitBreaker(ctx context.Context, studentID id.StudentID, courseID id.CourseID) (*models.EnrollmentRecord, error) {
	if !s.breaker.Allow() {
		if s.metrics != nil {
			s.metrics.ObserveCircuitState(circuit.StateOpen.String())
		}
		return nil, dErrors.Newf(dErrors.CodeCircuitOpen,
			"%s circuit is open", s.breaker.Name())
	}

	record, err := s.Process(ctx, studentID, courseID)
	if err != nil && dErrors.IsRetryable(err) {
		s.breaker.RecordFailure()
	} else {
		s.breaker.RecordSuccess()
	}
	if s.metrics != nil {
		s.metrics.ObserveCircuitState(s.breaker.State().String())
	}
	return record, err
}

// Breaker exposes the circuit breaker for inspection.
func (s *Service) Breaker() *circuit.Breaker { return s.breaker }
