// Package orchestrator drives bulk reconciliation runs: it chunks the
// source set, classifies each record through the reconciler, applies the
// verdicts to the target store, and rolls an aborted chunk back so earlier
// chunks stay committed while the failing one leaves no partial writes.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	enrollment "registrar/internal/enrollment/models"
	"registrar/internal/enrollment/ports"
	"registrar/internal/sync/metrics"
	syncmodels "registrar/internal/sync/models"
	"registrar/internal/sync/reconciler"
	id "registrar/pkg/domain"
	dErrors "registrar/pkg/domain-errors"
)

const defaultChunkSize = 100

// Orchestrator coordinates sync runs against the target record store.
type Orchestrator struct {
	rec     *reconciler.Reconciler
	records ports.RecordStore
	sink    ports.NotificationSink
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	chunkSize int
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithNotificationSink attaches a fire-and-forget event sink.
func WithNotificationSink(sink ports.NotificationSink) Option {
	return func(o *Orchestrator) {
		o.sink = sink
	}
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithChunkSize sets how many records one chunk (and thus one rollback
// scope) covers.
func WithChunkSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

// New creates a sync orchestrator.
func New(rec *reconciler.Reconciler, records ports.RecordStore, opts ...Option) (*Orchestrator, error) {
	if rec == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "reconciler is required")
	}
	if records == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "record store is required")
	}

	o := &Orchestrator{
		rec:       rec,
		records:   records,
		chunkSize: defaultChunkSize,
		tracer:    otel.Tracer("registrar/sync"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// ProgressFunc receives the completion percentage after each chunk. Calls
// are strictly ordered and never report a lower value than a prior call;
// a run that completes ends with 100.
type ProgressFunc func(percent int)

// RunOption customizes a single Synchronize invocation.
type RunOption func(*runConfig)

type runConfig struct {
	progress ProgressFunc
}

// WithProgress registers a per-chunk progress callback for this run.
func WithProgress(fn ProgressFunc) RunOption {
	return func(c *runConfig) {
		c.progress = fn
	}
}

// appliedAction records one store write within the current chunk so the
// chunk can be undone in reverse order.
type appliedAction struct {
	created  bool
	recordID id.RecordID
	prior    *enrollment.EnrollmentRecord // pre-update image, nil for creates
}

// Synchronize reconciles the source records into the target store in
// chunks. Per-record problems (validation, integrity, transient store
// errors) are tallied on the result and never abort the run. A permanent
// persistence failure aborts the run: writes already applied within the
// failing chunk are compensated in reverse order, RollbackPerformed is
// set, and chunks completed earlier stay committed.
//
// The returned result is always non-nil and reflects everything that
// happened up to the abort, if any.
func (o *Orchestrator) Synchronize(ctx context.Context, source []*enrollment.EnrollmentRecord, policy syncmodels.Policy, opts ...RunOption) (*syncmodels.SyncResult, error) {
	ctx, span := o.tracer.Start(ctx, "sync.synchronize")
	defer span.End()

	cfg := runConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	start := time.Now()
	result := &syncmodels.SyncResult{}

	total := len(source)
	if total == 0 {
		report(cfg.progress, 100)
		o.finish(ctx, result, start, nil)
		return result, nil
	}

	done := 0
	for len(source) > 0 {
		n := o.chunkSize
		if n > len(source) {
			n = len(source)
		}
		chunk := source[:n]
		source = source[n:]

		if err := o.processChunk(ctx, chunk, policy, result); err != nil {
			o.finish(ctx, result, start, err)
			return result, err
		}
		done += n
		report(cfg.progress, done*100/total)
	}

	o.finish(ctx, result, start, nil)
	return result, nil
}

// processChunk applies one chunk, keeping an undo log of its writes. A
// non-retryable store failure rolls the log back and aborts.
func (o *Orchestrator) processChunk(ctx context.Context, chunk []*enrollment.EnrollmentRecord, policy syncmodels.Policy, result *syncmodels.SyncResult) error {
	applied := make([]appliedAction, 0, len(chunk))

	abort := func(err error, msg string) error {
		result.Failed++
		// Undone writes no longer count as applied.
		for _, a := range applied {
			if a.created {
				result.Created--
			} else {
				result.Updated--
			}
		}
		o.rollback(ctx, applied)
		result.RollbackPerformed = true
		if o.metrics != nil {
			o.metrics.Rollbacks.Inc()
		}
		return dErrors.Wrap(err, dErrors.CodeOf(err), msg)
	}

	for _, src := range chunk {
		result.Processed++

		target, err := o.lookupTarget(ctx, src)
		if err != nil {
			if !dErrors.IsRetryable(err) {
				return abort(err, "look up sync target")
			}
			result.Failed++
			continue
		}

		class, classErr := o.rec.Classify(ctx, src, target)
		switch class {
		case syncmodels.ClassInvalid:
			result.Failed++
			result.ValidationErrors = append(result.ValidationErrors, issue(src, classErr))

		case syncmodels.ClassIntegrityViolation:
			result.Failed++
			result.IntegrityViolations = append(result.IntegrityViolations, issue(src, classErr))

		case syncmodels.ClassNoOp:
			result.Skipped++

		case syncmodels.ClassCreate:
			if _, err := o.records.Create(ctx, src.Clone()); err != nil {
				if !dErrors.IsRetryable(err) {
					return abort(err, "create sync target record")
				}
				result.Failed++
				continue
			}
			result.Created++
			applied = append(applied, appliedAction{created: true, recordID: src.ID})

		case syncmodels.ClassConflict:
			resolved, skip, resErr := o.rec.Resolve(src, target, policy)
			if resErr != nil {
				result.Failed++
				continue
			}
			if skip {
				result.Skipped++
				continue
			}
			result.ConflictsResolved++
			if resolved.StudentID == target.StudentID &&
				resolved.CourseID == target.CourseID &&
				resolved.Status == target.Status {
				// Resolution kept the target; nothing to write.
				result.Skipped++
				continue
			}
			if _, err := o.records.Update(ctx, target.ID, resolved); err != nil {
				if !dErrors.IsRetryable(err) {
					return abort(err, "update sync target record")
				}
				result.Failed++
				continue
			}
			result.Updated++
			applied = append(applied, appliedAction{recordID: target.ID, prior: target.Clone()})
		}
	}
	return nil
}

// lookupTarget finds the target-side record matching the source's primary
// key. Absence is not an error here; it classifies as a create.
func (o *Orchestrator) lookupTarget(ctx context.Context, src *enrollment.EnrollmentRecord) (*enrollment.EnrollmentRecord, error) {
	if src == nil || src.ID.IsNil() {
		// Classification will report the record invalid.
		return nil, nil
	}
	target, err := o.records.Find(ctx, src.ID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return target, nil
}

// rollback undoes the chunk's writes in reverse order. It runs detached
// from the request context so an expired deadline cannot leave the chunk
// half-applied, and it is best effort: an undo failure is logged, not
// propagated.
func (o *Orchestrator) rollback(ctx context.Context, applied []appliedAction) {
	undoCtx := context.WithoutCancel(ctx)
	for i := len(applied) - 1; i >= 0; i-- {
		action := applied[i]
		var err error
		if action.created {
			err = o.records.Delete(undoCtx, action.recordID)
		} else {
			_, err = o.records.Update(undoCtx, action.recordID, action.prior)
		}
		if err != nil && o.logger != nil {
			o.logger.ErrorContext(ctx, "sync rollback step failed",
				"record_id", action.recordID,
				"created", action.created,
				"error", err,
			)
		}
	}
}

// finish stamps the run's performance profile and emits the terminal
// notification and metrics.
func (o *Orchestrator) finish(ctx context.Context, result *syncmodels.SyncResult, start time.Time, runErr error) {
	elapsed := time.Since(start)
	result.Perf.Elapsed = elapsed
	if result.Processed > 0 {
		result.Perf.AvgPerRecord = elapsed / time.Duration(result.Processed)
		if secs := elapsed.Seconds(); secs > 0 {
			result.Perf.Throughput = float64(result.Processed) / secs
		}
	}

	outcome := "completed"
	action := ports.EventSyncCompleted
	if runErr != nil {
		outcome = "failed"
		action = ports.EventSyncFailed
	}
	if o.metrics != nil {
		o.metrics.ObserveRun(outcome, elapsed, result.Perf.Throughput)
		o.metrics.ObserveRecords("created", result.Created)
		o.metrics.ObserveRecords("updated", result.Updated)
		o.metrics.ObserveRecords("skipped", result.Skipped)
		o.metrics.ObserveRecords("failed", result.Failed)
	}
	ports.Notify(ctx, o.logger, o.sink, ports.Event{
		Action: action,
		Detail: outcome,
	})
	if o.logger != nil {
		o.logger.InfoContext(ctx, "sync run finished",
			"outcome", outcome,
			"processed", result.Processed,
			"created", result.Created,
			"updated", result.Updated,
			"skipped", result.Skipped,
			"failed", result.Failed,
			"conflicts_resolved", result.ConflictsResolved,
			"rollback", result.RollbackPerformed,
			"elapsed", elapsed,
		)
	}
}

func report(fn ProgressFunc, percent int) {
	if fn != nil {
		fn(percent)
	}
}

func issue(src *enrollment.EnrollmentRecord, err error) syncmodels.RecordIssue {
	ri := syncmodels.RecordIssue{}
	if src != nil {
		ri.RecordID = src.ID
	}
	if err != nil {
		ri.Reason = err.Error()
	}
	return ri
}
