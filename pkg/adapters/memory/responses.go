package memory

import (
	"context"
	"sync"

	"github.com/Veolinan/triage/pkg/domain"
	"github.com/google/uuid"
)

// ResponseStore implements ports.ResponseStore in memory.
// Safe for concurrent use.
type ResponseStore struct {
	mu      sync.RWMutex
	records map[string]domain.ResponseRecord
}

// NewResponseStore creates an empty response store.
func NewResponseStore() *ResponseStore {
	return &ResponseStore{
		records: make(map[string]domain.ResponseRecord),
	}
}

// InsertResponse stores a copy of the record.
func (s *ResponseStore) InsertResponse(ctx context.Context, record domain.ResponseRecord) (string, error) {
	rec := record.Clone()
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
	return rec.ID, nil
}

// GetResponse returns a copy of the record.
func (s *ResponseStore) GetResponse(ctx context.Context, id string) (domain.ResponseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return domain.ResponseRecord{}, domain.ErrResponseNotFound
	}
	return rec.Clone(), nil
}

// ListResponses returns matching records, newest first.
func (s *ResponseStore) ListResponses(ctx context.Context, filter domain.ResponseFilter) ([]domain.ResponseRecord, error) {
	s.mu.RLock()
	all := make([]domain.ResponseRecord, 0, len(s.records))
	for _, rec := range s.records {
		all = append(all, rec.Clone())
	}
	s.mu.RUnlock()

	return domain.ApplyFilter(all, filter), nil
}

// UpdateResponse overwrites an existing record.
func (s *ResponseStore) UpdateResponse(ctx context.Context, record domain.ResponseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[record.ID]; !ok {
		return domain.ErrResponseNotFound
	}
	s.records[record.ID] = record.Clone()
	return nil
}
