package record

import (
	"context"
	"sync"

	"registrar/internal/enrollment/models"
	id "registrar/pkg/domain"
	dErrors "registrar/pkg/domain-errors"
	"registrar/pkg/platform/sentinel"
)

// InMemoryStore keeps enrollment records in a map. It favors clarity over
// performance and backs unit tests and local development.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[id.RecordID]*models.EnrollmentRecord
}

// NewInMemory creates an empty in-memory record store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{records: make(map[id.RecordID]*models.EnrollmentRecord)}
}

func (s *InMemoryStore) Find(_ context.Context, recordID id.RecordID) (*models.EnrollmentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rec, ok := s.records[recordID]; ok {
		return rec.Clone(), nil
	}
	return nil, dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeNotFound, "enrollment record not found")
}

func (s *InMemoryStore) Create(_ context.Context, record *models.EnrollmentRecord) (*models.EnrollmentRecord, error) {
	if record == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "record is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.ID]; exists {
		return nil, dErrors.Wrap(sentinel.ErrConflict, dErrors.CodeConflict, "record already exists")
	}
	s.records[record.ID] = record.Clone()
	return record.Clone(), nil
}

func (s *InMemoryStore) Update(_ context.Context, recordID id.RecordID, record *models.EnrollmentRecord) (*models.EnrollmentRecord, error) {
	if record == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "record is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[recordID]; !exists {
		return nil, dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeNotFound, "enrollment record not found")
	}
	stored := record.Clone()
	stored.ID = recordID
	s.records[recordID] = stored
	return stored.Clone(), nil
}

func (s *InMemoryStore) Delete(_ context.Context, recordID id.RecordID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[recordID]; !exists {
		return dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeNotFound, "enrollment record not found")
	}
	delete(s.records, recordID)
	return nil
}

// List returns a copy of every stored record. Feeds replica sync; not part
// of the RecordStore contract.
func (s *InMemoryStore) List(_ context.Context) ([]*models.EnrollmentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]*models.EnrollmentRecord, 0, len(s.records))
	for _, rec := range s.records {
		records = append(records, rec.Clone())
	}
	return records, nil
}

// Len reports the number of stored records. Test helper.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
