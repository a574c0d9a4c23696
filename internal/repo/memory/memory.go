package memory

import (
	"context"
	"sync"

	"github.com/hamed0406/endpointmonitor/internal/domain"
	"github.com/hamed0406/endpointmonitor/internal/repo"
)

var _ repo.RecordStore = (*Store)(nil)

type Store struct {
	mu      sync.RWMutex
	records map[string]domain.EndpointRecord
}

func New() *Store {
	return &Store{records: make(map[string]domain.EndpointRecord)}
}

func (m *Store) Get(ctx context.Context, id string) (domain.EndpointRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return domain.EndpointRecord{}, domain.ErrNotFound
	}
	return rec.Clone(), nil
}

func (m *Store) Insert(ctx context.Context, rec domain.EndpointRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.ID]; ok {
		return repo.ErrConflict
	}
	m.records[rec.ID] = rec.Clone()
	return nil
}

func (m *Store) Mutate(ctx context.Context, id string, fn func(*domain.EndpointRecord) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.records[id]
	if !ok {
		return domain.ErrNotFound
	}
	next := cur.Clone()
	if err := fn(&next); err != nil {
		return err
	}
	next.ID = id
	m.records[id] = next.Clone()
	return nil
}

func (m *Store) Delete(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return false, nil
	}
	delete(m.records, id)
	return true, nil
}

func (m *Store) List(ctx context.Context) ([]domain.EndpointRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.EndpointRecord, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r.Clone())
	}
	repo.SortRecords(out)
	return out, nil
}
