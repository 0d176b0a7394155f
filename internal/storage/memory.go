package storage

import (
	"context"
	"sort"
	"sync"

	"pleroma/internal/model"
)

type MemoryStore struct {
	mu           sync.RWMutex
	initialized  bool
	snapshots    map[string]model.EngineSnapshot
	contractions map[string][]model.ContractionRecord
	history      map[string][]float64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.snapshots = make(map[string]model.EngineSnapshot)
	s.contractions = make(map[string][]model.ContractionRecord)
	s.history = make(map[string][]float64)
	return nil
}

func (s *MemoryStore) SaveSnapshot(_ context.Context, snapshot model.EngineSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots[snapshot.ID] = snapshot
	return nil
}

func (s *MemoryStore) GetSnapshot(_ context.Context, id string) (model.EngineSnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.snapshots[id]
	return snapshot, ok, nil
}

func (s *MemoryStore) ListSnapshotIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.snapshots))
	for id := range s.snapshots {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) DeleteSnapshot(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.snapshots, id)
	return nil
}

func (s *MemoryStore) SaveContractionHistory(_ context.Context, engineID string, records []model.ContractionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]model.ContractionRecord, len(records))
	copy(copied, records)
	s.contractions[engineID] = copied
	return nil
}

func (s *MemoryStore) GetContractionHistory(_ context.Context, engineID string) ([]model.ContractionRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, ok := s.contractions[engineID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]model.ContractionRecord, len(records))
	copy(copied, records)
	return copied, true, nil
}

func (s *MemoryStore) SaveErrorHistory(_ context.Context, runID string, history []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := append([]float64(nil), history...)
	s.history[runID] = copied
	return nil
}

func (s *MemoryStore) GetErrorHistory(_ context.Context, runID string) ([]float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.history[runID]
	if !ok {
		return nil, false, nil
	}
	copied := append([]float64(nil), history...)
	return copied, true, nil
}
