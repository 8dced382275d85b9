package registry

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryRepository keeps records in process memory. It backs tests and
// deployments that do not configure a database.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]Record)}
}

func (m *MemoryRepository) Create(_ context.Context, record Record) (Record, error) {
	if strings.TrimSpace(record.ID) == "" {
		id, err := generateID()
		if err != nil {
			return Record{}, err
		}
		record.ID = id
	}
	if record.StoredAt.IsZero() {
		record.StoredAt = time.Now().UTC()
	}
	m.mu.Lock()
	m.records[record.ID] = record
	m.mu.Unlock()
	return record, nil
}

func (m *MemoryRepository) Get(_ context.Context, id string) (Record, error) {
	m.mu.RLock()
	record, ok := m.records[id]
	m.mu.RUnlock()
	if !ok {
		return Record{}, ErrNotFound
	}
	return record, nil
}

func (m *MemoryRepository) List(_ context.Context, category string, limit int) ([]Record, error) {
	m.mu.RLock()
	records := make([]Record, 0, len(m.records))
	for _, record := range m.records {
		if category != "" && record.Category != category {
			continue
		}
		records = append(records, record)
	}
	m.mu.RUnlock()
	sort.Slice(records, func(i, j int) bool {
		if records[i].StoredAt.Equal(records[j].StoredAt) {
			return records[i].ID < records[j].ID
		}
		return records[i].StoredAt.After(records[j].StoredAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (m *MemoryRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return ErrNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *MemoryRepository) Close(context.Context) error { return nil }
