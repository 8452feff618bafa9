package orchestrator

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	enrollment "registrar/internal/enrollment/models"
	syncmodels "registrar/internal/sync/models"
	dErrors "registrar/pkg/domain-errors"
)

// FetchFunc supplies the source records for one periodic run.
type FetchFunc func(ctx context.Context) ([]*enrollment.EnrollmentRecord, error)

// SchedulePeriodicSync runs fetch+Synchronize on a fixed interval until
// ctx is canceled, then returns the context error. After a failed run the
// delay before the next attempt doubles (capped at an hour); the first
// successful run snaps it back to the base interval. Runs never overlap:
// the next delay starts counting when the previous run returns.
//
// The loop runs in the calling goroutine; callers wanting a background
// worker start it with go.
func (o *Orchestrator) SchedulePeriodicSync(ctx context.Context, interval time.Duration, fetch FetchFunc, policy syncmodels.Policy) error {
	if interval <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "interval must be positive")
	}
	if fetch == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "fetch function is required")
	}

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = interval
	retry.RandomizationFactor = 0
	retry.Multiplier = 2
	retry.MaxInterval = time.Hour
	retry.MaxElapsedTime = 0
	retry.Reset()

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		if err := o.runOnce(ctx, fetch, policy); err != nil {
			delay := retry.NextBackOff()
			if o.logger != nil {
				o.logger.WarnContext(ctx, "periodic sync run failed",
					"error", err,
					"next_attempt_in", delay,
				)
			}
			timer.Reset(delay)
			continue
		}

		retry.Reset()
		timer.Reset(interval)
	}
}

func (o *Orchestrator) runOnce(ctx context.Context, fetch FetchFunc, policy syncmodels.Policy) error {
	source, err := fetch(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeOf(err), "fetch sync source records")
	}
	_, err = o.Synchronize(ctx, source, policy)
	return err
}
