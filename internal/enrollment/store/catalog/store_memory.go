// Package catalog provides CourseCatalog implementations. The catalog is a
// read-only collaborator from the core's point of view: it answers capacity
// lookups and never mutates seat state.
package catalog

import (
	"context"
	"sync"

	"registrar/internal/enrollment/models"
	id "registrar/pkg/domain"
	dErrors "registrar/pkg/domain-errors"
	"registrar/pkg/platform/sentinel"
)

// InMemoryCatalog serves course capacity data from a map.
type InMemoryCatalog struct {
	mu      sync.RWMutex
	courses map[id.CourseID]*models.CourseInfo
}

// NewInMemory creates an empty catalog.
func NewInMemory() *InMemoryCatalog {
	return &InMemoryCatalog{courses: make(map[id.CourseID]*models.CourseInfo)}
}

// Put registers or replaces a course definition.
func (c *InMemoryCatalog) Put(info *models.CourseInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *info
	cp.Students = append([]id.StudentID(nil), info.Students...)
	c.courses[info.ID] = &cp
}

func (c *InMemoryCatalog) GetCourse(_ context.Context, courseID id.CourseID) (*models.CourseInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.courses[courseID]
	if !ok {
		return nil, dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeNotFound, "course not found")
	}
	cp := *info
	cp.Students = append([]id.StudentID(nil), info.Students...)
	return &cp, nil
}
