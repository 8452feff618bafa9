package guard

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"registrar/internal/enrollment/models"
	id "registrar/pkg/domain"
	dErrors "registrar/pkg/domain-errors"
)

// fakeCatalog serves fixed capacities.
type fakeCatalog struct {
	mu       sync.Mutex
	capacity map[id.CourseID]int
	calls    int
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{capacity: make(map[id.CourseID]int)}
}

func (f *fakeCatalog) addCourse(capacity int) id.CourseID {
	f.mu.Lock()
	defer f.mu.Unlock()
	courseID := id.NewCourseID()
	f.capacity[courseID] = capacity
	return courseID
}

func (f *fakeCatalog) GetCourse(_ context.Context, courseID id.CourseID) (*models.CourseInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	capacity, ok := f.capacity[courseID]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "course %s not found", courseID)
	}
	return &models.CourseInfo{ID: courseID, Capacity: capacity}, nil
}

func newTestGuard(t *testing.T) (*SeatGuard, *fakeCatalog) {
	t.Helper()
	catalog := newFakeCatalog()
	g, err := New(catalog)
	require.NoError(t, err)
	return g, catalog
}

func TestReserve_CapacityAndDuplicates(t *testing.T) {
	g, catalog := newTestGuard(t)
	ctx := context.Background()
	courseID := catalog.addCourse(2)
	alice := id.NewStudentID()
	bob := id.NewStudentID()
	carol := id.NewStudentID()

	require.NoError(t, g.Reserve(ctx, courseID, alice))
	require.NoError(t, g.Reserve(ctx, courseID, bob))

	t.Run("full course rejects with capacity code", func(t *testing.T) {
		err := g.Reserve(ctx, courseID, carol)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeCapacityExceeded))
	})

	t.Run("duplicate rejects before capacity", func(t *testing.T) {
		err := g.Reserve(ctx, courseID, alice)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeDuplicateEnrollment))
	})

	t.Run("rejection does not mutate state", func(t *testing.T) {
		snap, ok := g.Snapshot(ctx, courseID)
		require.True(t, ok)
		assert.Equal(t, 2, snap.Enrolled)
		assert.Len(t, snap.Students, 2)
	})
}

// TestReserve_ConcurrentCapacityBound is the core invariant: N concurrent
// reservations against a capacity-C course yield exactly C successes, and
// the final count equals min(N, C).
func TestReserve_ConcurrentCapacityBound(t *testing.T) {
	g, catalog := newTestGuard(t)
	ctx := context.Background()

	const capacity = 2
	const callers = 5
	courseID := catalog.addCourse(capacity)

	var wg sync.WaitGroup
	results := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = g.Reserve(ctx, courseID, id.NewStudentID())
		}(i)
	}
	wg.Wait()

	var enrolled, rejected int
	for _, err := range results {
		switch {
		case err == nil:
			enrolled++
		case dErrors.HasCode(err, dErrors.CodeCapacityExceeded):
			rejected++
		default:
			t.Fatalf("unexpected outcome: %v", err)
		}
	}
	assert.Equal(t, capacity, enrolled)
	assert.Equal(t, callers-capacity, rejected)

	snap, ok := g.Snapshot(ctx, courseID)
	require.True(t, ok)
	assert.Equal(t, capacity, snap.Enrolled)
	assert.Len(t, snap.Students, capacity)
}

// TestReserve_NoDoubleEnrollment hammers one student/course pair from many
// goroutines; exactly one reservation may win.
func TestReserve_NoDoubleEnrollment(t *testing.T) {
	g, catalog := newTestGuard(t)
	ctx := context.Background()
	courseID := catalog.addCourse(100)
	studentID := id.NewStudentID()

	const callers = 50
	var wg sync.WaitGroup
	var successes atomic.Int32
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.Reserve(ctx, courseID, studentID); err == nil {
				successes.Add(1)
			} else {
				assert.True(t, dErrors.HasCode(err, dErrors.CodeDuplicateEnrollment))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	snap, _ := g.Snapshot(ctx, courseID)
	assert.Equal(t, 1, snap.Enrolled)
}

func TestReserve_DistinctCoursesRunInParallel(t *testing.T) {
	g, catalog := newTestGuard(t)
	courseA := catalog.addCourse(1)
	courseB := catalog.addCourse(1)

	// Hold course A's critical section by parking a reservation behind a
	// canceled context later; here we simply verify B is reachable while a
	// slow A reservation is in flight.
	ctx := context.Background()
	require.NoError(t, g.Reserve(ctx, courseA, id.NewStudentID()))

	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, g.Reserve(ctx, courseB, id.NewStudentID()))
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reservation on a different course blocked")
	}
}

func TestReserve_TimeoutWhileSectionHeld(t *testing.T) {
	g, catalog := newTestGuard(t)
	courseID := catalog.addCourse(5)

	// Occupy the critical section directly.
	c := g.course(courseID)
	c.slot <- struct{}{}
	defer func() { <-c.slot }()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := g.Reserve(ctx, courseID, id.NewStudentID())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
}

func TestReserve_UnknownCourse(t *testing.T) {
	g, _ := newTestGuard(t)
	err := g.Reserve(context.Background(), id.NewCourseID(), id.NewStudentID())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeIntegrity))
}

func TestRelease(t *testing.T) {
	g, catalog := newTestGuard(t)
	ctx := context.Background()
	courseID := catalog.addCourse(1)
	studentID := id.NewStudentID()

	require.NoError(t, g.Reserve(ctx, courseID, studentID))
	require.NoError(t, g.Release(ctx, courseID, studentID))

	snap, _ := g.Snapshot(ctx, courseID)
	assert.Zero(t, snap.Enrolled)

	t.Run("releasing a non-enrolled student fails", func(t *testing.T) {
		err := g.Release(ctx, courseID, studentID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("seat is reusable after release", func(t *testing.T) {
		assert.NoError(t, g.Reserve(ctx, courseID, id.NewStudentID()))
	})
}

func TestTransfer(t *testing.T) {
	g, catalog := newTestGuard(t)
	ctx := context.Background()
	from := catalog.addCourse(2)
	to := catalog.addCourse(1)
	studentID := id.NewStudentID()

	require.NoError(t, g.Reserve(ctx, from, studentID))
	require.NoError(t, g.Transfer(ctx, studentID, from, to))

	fromSnap, _ := g.Snapshot(ctx, from)
	toSnap, _ := g.Snapshot(ctx, to)
	assert.Zero(t, fromSnap.Enrolled)
	assert.Equal(t, 1, toSnap.Enrolled)

	t.Run("full destination rolls nothing forward", func(t *testing.T) {
		other := id.NewStudentID()
		require.NoError(t, g.Reserve(ctx, from, other))
		err := g.Transfer(ctx, other, from, to)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeCapacityExceeded))

		fromSnap, _ := g.Snapshot(ctx, from)
		assert.Equal(t, 1, fromSnap.Enrolled, "failed transfer must not drop the old seat")
	})

	t.Run("same course is rejected", func(t *testing.T) {
		err := g.Transfer(ctx, studentID, to, to)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

// TestTransfer_OpposingDirectionsDoNotDeadlock runs transfers A->B and
// B->A concurrently many times. Ordered acquisition must make this safe;
// a lock-order inversion would deadlock and trip the test timeout.
func TestTransfer_OpposingDirectionsDoNotDeadlock(t *testing.T) {
	g, catalog := newTestGuard(t)
	ctx := context.Background()
	courseA := catalog.addCourse(100)
	courseB := catalog.addCourse(100)

	studentsA := make([]id.StudentID, 20)
	studentsB := make([]id.StudentID, 20)
	for i := range studentsA {
		studentsA[i] = id.NewStudentID()
		studentsB[i] = id.NewStudentID()
		require.NoError(t, g.Reserve(ctx, courseA, studentsA[i]))
		require.NoError(t, g.Reserve(ctx, courseB, studentsB[i]))
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		for i := range studentsA {
			wg.Add(2)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, g.Transfer(ctx, studentsA[i], courseA, courseB))
			}(i)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, g.Transfer(ctx, studentsB[i], courseB, courseA))
			}(i)
		}
		wg.Wait()
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("opposing transfers deadlocked")
	}

	snapA, _ := g.Snapshot(ctx, courseA)
	snapB, _ := g.Snapshot(ctx, courseB)
	assert.Equal(t, 20, snapA.Enrolled)
	assert.Equal(t, 20, snapB.Enrolled)
}

func TestSeedHappensOncePerCourse(t *testing.T) {
	g, catalog := newTestGuard(t)
	ctx := context.Background()
	courseID := catalog.addCourse(10)

	for i := 0; i < 5; i++ {
		require.NoError(t, g.Reserve(ctx, courseID, id.NewStudentID()))
	}

	catalog.mu.Lock()
	defer catalog.mu.Unlock()
	assert.Equal(t, 1, catalog.calls, "catalog is a seed, not a per-call dependency")
}
