// Package guard provides per-course mutual exclusion for seat accounting.
//
// Each course has its own critical section, so reservations for different
// courses proceed fully in parallel while reservations for the same course
// are strictly serialized. The seat counter and enrolled-student set are
// owned by the guard and never exposed as live mutable state.
package guard

import (
	"context"
	"log/slog"
	"sync"

	"registrar/internal/enrollment/models"
	"registrar/internal/enrollment/ports"
	id "registrar/pkg/domain"
	dErrors "registrar/pkg/domain-errors"
)

// course holds guard-owned state. The slot channel is a one-token semaphore
// acting as the course's critical section; every field below it may only be
// touched while holding the token.
type course struct {
	slot chan struct{}

	seeded   bool
	capacity int
	enrolled int
	students map[id.StudentID]struct{}
}

// SeatGuard serializes seat reservations per course.
type SeatGuard struct {
	catalog ports.CourseCatalog
	logger  *slog.Logger

	mu      sync.Mutex // guards the courses map, never held across a slot wait
	courses map[id.CourseID]*course
}

// Option customizes a SeatGuard.
type Option func(*SeatGuard)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *SeatGuard) {
		g.logger = logger
	}
}

// New creates a SeatGuard backed by the given catalog.
func New(catalog ports.CourseCatalog, opts ...Option) (*SeatGuard, error) {
	if catalog == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "course catalog is required")
	}
	g := &SeatGuard{
		catalog: catalog,
		courses: make(map[id.CourseID]*course),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Reserve atomically checks capacity and duplicate membership, and on
// success increments the count and records the student. Rejections leave
// state untouched, so callers may retry or fail fast.
//
// Acquisition of the critical section is ctx-aware: a deadline or
// cancellation while waiting yields CodeTimeout without any mutation.
func (g *SeatGuard) Reserve(ctx context.Context, courseID id.CourseID, studentID id.StudentID) error {
	c := g.course(courseID)
	release, err := acquire(ctx, c.slot)
	if err != nil {
		return err
	}
	defer release()

	if err := g.seedLocked(ctx, c, courseID); err != nil {
		return err
	}

	if _, enrolled := c.students[studentID]; enrolled {
		return dErrors.Newf(dErrors.CodeDuplicateEnrollment,
			"student %s already enrolled in course %s", studentID, courseID)
	}
	if c.enrolled >= c.capacity {
		return dErrors.Newf(dErrors.CodeCapacityExceeded,
			"course %s is full (%d/%d)", courseID, c.enrolled, c.capacity)
	}

	c.enrolled++
	c.students[studentID] = struct{}{}
	return nil
}

// Release atomically removes a student's seat. Used by cross-course
// transfer and by compensation when persistence fails after a reservation.
func (g *SeatGuard) Release(ctx context.Context, courseID id.CourseID, studentID id.StudentID) error {
	c := g.course(courseID)
	release, err := acquire(ctx, c.slot)
	if err != nil {
		return err
	}
	defer release()

	return g.releaseLocked(c, courseID, studentID)
}

// Transfer atomically moves a student's seat from one course to another.
// Both critical sections are held for the duration; they are always
// acquired in the global course-id order regardless of transfer direction,
// which rules out lock-order inversion by construction.
func (g *SeatGuard) Transfer(ctx context.Context, studentID id.StudentID, from, to id.CourseID) error {
	if from == to {
		return dErrors.New(dErrors.CodeInvalidInput, "transfer requires two distinct courses")
	}

	first, second := from, to
	if second.Less(first) {
		first, second = second, first
	}

	cFirst := g.course(first)
	releaseFirst, err := acquire(ctx, cFirst.slot)
	if err != nil {
		return err
	}
	defer releaseFirst()

	cSecond := g.course(second)
	releaseSecond, err := acquire(ctx, cSecond.slot)
	if err != nil {
		return err
	}
	defer releaseSecond()

	cFrom, cTo := cFirst, cSecond
	if from != first {
		cFrom, cTo = cSecond, cFirst
	}

	if err := g.seedLocked(ctx, cFrom, from); err != nil {
		return err
	}
	if err := g.seedLocked(ctx, cTo, to); err != nil {
		return err
	}

	if _, enrolled := cFrom.students[studentID]; !enrolled {
		return dErrors.Newf(dErrors.CodeNotFound,
			"student %s is not enrolled in course %s", studentID, from)
	}
	if _, enrolled := cTo.students[studentID]; enrolled {
		return dErrors.Newf(dErrors.CodeDuplicateEnrollment,
			"student %s already enrolled in course %s", studentID, to)
	}
	if cTo.enrolled >= cTo.capacity {
		return dErrors.Newf(dErrors.CodeCapacityExceeded,
			"course %s is full (%d/%d)", to, cTo.enrolled, cTo.capacity)
	}

	delete(cFrom.students, studentID)
	cFrom.enrolled--
	cTo.students[studentID] = struct{}{}
	cTo.enrolled++
	return nil
}

// Snapshot returns a point-in-time copy of a course's guard-owned state.
// Returns false if the guard has never touched the course.
func (g *SeatGuard) Snapshot(ctx context.Context, courseID id.CourseID) (models.CourseSnapshot, bool) {
	g.mu.Lock()
	c, ok := g.courses[courseID]
	g.mu.Unlock()
	if !ok {
		return models.CourseSnapshot{}, false
	}

	release, err := acquire(ctx, c.slot)
	if err != nil {
		return models.CourseSnapshot{}, false
	}
	defer release()

	if !c.seeded {
		return models.CourseSnapshot{}, false
	}

	students := make(map[id.StudentID]struct{}, len(c.students))
	for sid := range c.students {
		students[sid] = struct{}{}
	}
	return models.CourseSnapshot{
		ID:       courseID,
		Capacity: c.capacity,
		Enrolled: c.enrolled,
		Students: students,
	}, true
}

// course returns the per-course entry, creating it on first touch. The map
// lock is released before anyone waits on the slot.
func (g *SeatGuard) course(courseID id.CourseID) *course {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.courses[courseID]
	if !ok {
		c = &course{
			slot:     make(chan struct{}, 1),
			students: make(map[id.StudentID]struct{}),
		}
		g.courses[courseID] = c
	}
	return c
}

// seedLocked lazily loads capacity and the enrolled set from the catalog.
// Caller holds the course slot.
func (g *SeatGuard) seedLocked(ctx context.Context, c *course, courseID id.CourseID) error {
	if c.seeded {
		return nil
	}
	info, err := g.catalog.GetCourse(ctx, courseID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeIntegrity, "course cannot be resolved")
	}
	c.capacity = info.Capacity
	c.enrolled = info.Enrolled
	for _, sid := range info.Students {
		c.students[sid] = struct{}{}
	}
	c.seeded = true

	if g.logger != nil {
		g.logger.DebugContext(ctx, "seeded course state",
			"course_id", courseID,
			"capacity", c.capacity,
			"enrolled", c.enrolled,
		)
	}
	return nil
}

// releaseLocked removes the student's seat. Caller holds the course slot.
func (g *SeatGuard) releaseLocked(c *course, courseID id.CourseID, studentID id.StudentID) error {
	if !c.seeded {
		return dErrors.Newf(dErrors.CodeNotFound,
			"student %s is not enrolled in course %s", studentID, courseID)
	}
	if _, enrolled := c.students[studentID]; !enrolled {
		return dErrors.Newf(dErrors.CodeNotFound,
			"student %s is not enrolled in course %s", studentID, courseID)
	}
	delete(c.students, studentID)
	c.enrolled--
	return nil
}

// acquire enters a one-token critical section, honoring ctx cancellation
// and deadlines while waiting. The returned func leaves the section.
func acquire(ctx context.Context, slot chan struct{}) (func(), error) {
	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout,
			"could not enter course critical section")
	}
}
