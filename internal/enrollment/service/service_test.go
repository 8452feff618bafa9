package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"registrar/internal/enrollment/guard"
	"registrar/internal/enrollment/models"
	"registrar/internal/enrollment/ports"
	"registrar/internal/enrollment/store/catalog"
	"registrar/internal/enrollment/store/record"
	"registrar/internal/notify"
	id "registrar/pkg/domain"
	dErrors "registrar/pkg/domain-errors"
	"registrar/pkg/platform/circuit"
	"registrar/pkg/platform/sentinel"
)

// scriptedStore wraps the in-memory store with scripted Create failures,
// optional latency, and concurrency accounting.
type scriptedStore struct {
	*record.InMemoryStore

	mu          sync.Mutex
	createErrs  []error // consumed one per Create call
	createCalls int
	delay       time.Duration
	inFlight    int
	maxInFlight int
}

func newScriptedStore() *scriptedStore {
	return &scriptedStore{InMemoryStore: record.NewInMemory()}
}

func (s *scriptedStore) failNextCreates(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createErrs = append(s.createErrs, errs...)
}

func (s *scriptedStore) Create(ctx context.Context, rec *models.EnrollmentRecord) (*models.EnrollmentRecord, error) {
	s.mu.Lock()
	s.createCalls++
	s.inFlight++
	if s.inFlight > s.maxInFlight {
		s.maxInFlight = s.inFlight
	}
	var err error
	if len(s.createErrs) > 0 {
		err = s.createErrs[0]
		s.createErrs = s.createErrs[1:]
	}
	delay := s.delay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
		}
	}

	s.mu.Lock()
	s.inFlight--
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, dErrors.Wrap(ctx.Err(), dErrors.CodeTransient, "store call canceled")
	}
	return s.InMemoryStore.Create(ctx, rec)
}

func (s *scriptedStore) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createCalls
}

func (s *scriptedStore) observedMaxInFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxInFlight
}

func transientErr() error {
	return dErrors.Wrap(sentinel.ErrUnavailable, dErrors.CodeTransient, "store unavailable")
}

type fixture struct {
	svc     *Service
	store   *scriptedStore
	catalog *catalog.InMemoryCatalog
	sink    *notify.InMemorySink
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	cat := catalog.NewInMemory()
	g, err := guard.New(cat)
	require.NoError(t, err)

	store := newScriptedStore()
	sink := notify.NewInMemory()
	opts = append([]Option{WithNotificationSink(sink)}, opts...)
	svc, err := New(g, store, opts...)
	require.NoError(t, err)

	return &fixture{svc: svc, store: store, catalog: cat, sink: sink}
}

func (f *fixture) addCourse(capacity int) id.CourseID {
	courseID := id.NewCourseID()
	f.catalog.Put(&models.CourseInfo{ID: courseID, Capacity: capacity})
	return courseID
}

func TestProcess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	courseID := f.addCourse(1)
	alice := id.NewStudentID()
	bob := id.NewStudentID()

	t.Run("success persists an ENROLLED record and notifies", func(t *testing.T) {
		rec, err := f.svc.Process(ctx, alice, courseID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusEnrolled, rec.Status)

		stored, err := f.store.Find(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusEnrolled, stored.Status)

		events := f.sink.Events()
		require.Len(t, events, 1)
		assert.Equal(t, ports.EventEnrolled, events[0].Action)
	})

	t.Run("duplicate is terminal and not persisted", func(t *testing.T) {
		rec, err := f.svc.Process(ctx, alice, courseID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeDuplicateEnrollment))
		assert.Equal(t, models.StatusRejectedDuplicate, rec.Status)
		assert.Equal(t, 1, f.store.Len(), "rejections must not be persisted")
	})

	t.Run("capacity is terminal and not persisted", func(t *testing.T) {
		rec, err := f.svc.Process(ctx, bob, courseID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeCapacityExceeded))
		assert.Equal(t, models.StatusRejectedCapacity, rec.Status)
		assert.Equal(t, 1, f.store.Len())
	})
}

func TestProcess_PersistFailureReleasesSeat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	courseID := f.addCourse(1)
	alice := id.NewStudentID()
	bob := id.NewStudentID()

	f.store.failNextCreates(transientErr())

	rec, err := f.svc.Process(ctx, alice, courseID)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTransient))
	assert.Equal(t, models.StatusFailed, rec.Status)
	assert.Zero(t, f.store.Len())

	// The compensation released the seat, so the course is not stuck full.
	rec, err = f.svc.Process(ctx, bob, courseID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusEnrolled, rec.Status)
}

func TestProcessBatch_CapacityScenario(t *testing.T) {
	// Capacity-2 course, 5 distinct students: exactly 2 enrolled,
	// 3 rejected for capacity, count settles at 2.
	f := newFixture(t)
	ctx := context.Background()
	courseID := f.addCourse(2)

	students := make([]id.StudentID, 5)
	for i := range students {
		students[i] = id.NewStudentID()
	}

	result, err := f.svc.ProcessBatch(ctx, students, courseID)
	require.NoError(t, err)

	assert.Equal(t, 5, result.Processed)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 3, result.Failed)

	var capacityRejections int
	for _, outcome := range result.Outcomes {
		if outcome.Err != nil {
			assert.True(t, dErrors.HasCode(outcome.Err, dErrors.CodeCapacityExceeded))
			assert.Equal(t, models.StatusRejectedCapacity, outcome.Record.Status)
			capacityRejections++
		}
	}
	assert.Equal(t, 3, capacityRejections)
	assert.Equal(t, 2, f.store.Len())
}

func TestProcessBatch_HonorsInFlightBound(t *testing.T) {
	const bound = 3
	f := newFixture(t, WithMaxInFlight(bound))
	ctx := context.Background()
	courseID := f.addCourse(100)

	// Slow the store down so overlapping work is observable.
	f.store.delay = 20 * time.Millisecond

	students := make([]id.StudentID, 24)
	for i := range students {
		students[i] = id.NewStudentID()
	}

	result, err := f.svc.ProcessBatch(ctx, students, courseID)
	require.NoError(t, err)
	assert.Equal(t, 24, result.Succeeded)
	assert.LessOrEqual(t, f.store.observedMaxInFlight(), bound,
		"in-flight work must never exceed the configured bound")
}

func TestProcessBatch_EmptyInput(t *testing.T) {
	f := newFixture(t)
	result, err := f.svc.ProcessBatch(context.Background(), nil, f.addCourse(1))
	require.NoError(t, err)
	assert.Zero(t, result.Processed)
}

func TestProcessWithRetry(t *testing.T) {
	t.Run("two transient failures then success takes the backoff floor", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		courseID := f.addCourse(5)
		f.store.failNextCreates(transientErr(), transientErr())

		start := time.Now()
		rec, err := f.svc.ProcessWithRetry(ctx, id.NewStudentID(), courseID, 3, 100*time.Millisecond)
		elapsed := time.Since(start)

		require.NoError(t, err)
		assert.Equal(t, models.StatusEnrolled, rec.Status)
		assert.Equal(t, 3, f.store.calls())
		// Delays double: 100ms then 200ms before the third attempt.
		assert.GreaterOrEqual(t, elapsed, 300*time.Millisecond)
	})

	t.Run("capacity rejection is never retried", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		courseID := f.addCourse(0)

		start := time.Now()
		_, err := f.svc.ProcessWithRetry(ctx, id.NewStudentID(), courseID, 5, 100*time.Millisecond)
		elapsed := time.Since(start)

		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeCapacityExceeded))
		assert.Less(t, elapsed, 100*time.Millisecond, "terminal outcomes must fail without backoff")
	})

	t.Run("exhausting attempts propagates the last failure", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		courseID := f.addCourse(5)
		f.store.failNextCreates(transientErr(), transientErr(), transientErr())

		_, err := f.svc.ProcessWithRetry(ctx, id.NewStudentID(), courseID, 3, time.Millisecond)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeTransient))
		assert.Equal(t, 3, f.store.calls())
	})
}

func TestProcessWithCircuitBreaker(t *testing.T) {
	clock := struct {
		mu  sync.Mutex
		now time.Time
	}{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	nowFn := func() time.Time {
		clock.mu.Lock()
		defer clock.mu.Unlock()
		return clock.now
	}
	advance := func(d time.Duration) {
		clock.mu.Lock()
		defer clock.mu.Unlock()
		clock.now = clock.now.Add(d)
	}

	breaker := circuit.New("record-store",
		circuit.WithFailureThreshold(3),
		circuit.WithCooldown(time.Minute),
		circuit.WithNowFunc(nowFn),
	)
	f := newFixture(t, WithBreaker(breaker))
	ctx := context.Background()
	courseID := f.addCourse(100)

	// Three consecutive transient failures open the circuit.
	f.store.failNextCreates(transientErr(), transientErr(), transientErr())
	for i := 0; i < 3; i++ {
		_, err := f.svc.ProcessWithCircuitBreaker(ctx, id.NewStudentID(), courseID)
		require.Error(t, err)
	}
	assert.Equal(t, circuit.StateOpen, breaker.State())

	t.Run("open circuit fails fast without touching the store", func(t *testing.T) {
		callsBefore := f.store.calls()
		_, err := f.svc.ProcessWithCircuitBreaker(ctx, id.NewStudentID(), courseID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeCircuitOpen))
		assert.Equal(t, callsBefore, f.store.calls())
	})

	t.Run("probe success closes after the cooldown", func(t *testing.T) {
		advance(2 * time.Minute)
		rec, err := f.svc.ProcessWithCircuitBreaker(ctx, id.NewStudentID(), courseID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusEnrolled, rec.Status)
		assert.Equal(t, circuit.StateClosed, breaker.State())
	})

	t.Run("business rejections do not trip the breaker", func(t *testing.T) {
		dup := id.NewStudentID()
		_, err := f.svc.ProcessWithCircuitBreaker(ctx, dup, courseID)
		require.NoError(t, err)
		for i := 0; i < 5; i++ {
			_, err = f.svc.ProcessWithCircuitBreaker(ctx, dup, courseID)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeDuplicateEnrollment))
		}
		assert.Equal(t, circuit.StateClosed, breaker.State())
	})
}

func TestProcessWithTimeout(t *testing.T) {
	f := newFixture(t)
	courseID := f.addCourse(5)

	// A store slower than the deadline forces the attempt over budget.
	f.store.delay = 500 * time.Millisecond

	_, err := f.svc.ProcessWithTimeout(context.Background(), id.NewStudentID(), courseID, 50*time.Millisecond)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
}

func TestTransfer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	from := f.addCourse(2)
	to := f.addCourse(2)
	alice := id.NewStudentID()

	_, err := f.svc.Process(ctx, alice, from)
	require.NoError(t, err)

	t.Run("moves the seat and persists a record", func(t *testing.T) {
		rec, err := f.svc.Transfer(ctx, alice, from, to)
		require.NoError(t, err)
		assert.Equal(t, to, rec.CourseID)
		assert.Equal(t, models.StatusEnrolled, rec.Status)
	})

	t.Run("persist failure transfers the seat back", func(t *testing.T) {
		f.store.failNextCreates(transientErr())
		_, err := f.svc.Transfer(ctx, alice, to, from)
		require.Error(t, err)

		// Seat must still be in `to`: transferring from `to` again works.
		rec, err := f.svc.Transfer(ctx, alice, to, from)
		require.NoError(t, err)
		assert.Equal(t, from, rec.CourseID)
	})
}
