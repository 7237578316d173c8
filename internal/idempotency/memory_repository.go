package idempotency

import (
	"context"
	"sync"
	"time"
)

// memoryRepository is the single-node Repository. The map insert under one
// mutex gives the same claim semantics as the Postgres
// INSERT ON CONFLICT DO NOTHING.
type memoryRepository struct {
	mu      sync.Mutex
	records map[string]*Record
}

func NewMemoryRepository() Repository {
	return &memoryRepository{records: make(map[string]*Record)}
}

func recordKey(scope, key string) string {
	return scope + "/" + key
}

func (m *memoryRepository) Claim(ctx context.Context, record *Record) (bool, *Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := recordKey(record.Scope, record.Key)
	if existing, ok := m.records[k]; ok {
		copied := *existing
		return false, &copied, nil
	}
	copied := *record
	m.records[k] = &copied
	return true, nil, nil
}

func (m *memoryRepository) Reclaim(ctx context.Context, scope, key string, expiresAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[recordKey(scope, key)]
	if !ok || record.Status != StatusFailed {
		return false, nil
	}
	record.Status = StatusInProgress
	record.LastError = ""
	record.ExpiresAt = expiresAt
	record.UpdatedAt = time.Now()
	return true, nil
}

func (m *memoryRepository) Takeover(ctx context.Context, scope, key string, now, expiresAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[recordKey(scope, key)]
	if !ok || !record.ExpiresAt.Before(now) {
		return false, nil
	}
	record.Status = StatusInProgress
	record.Result = nil
	record.LastError = ""
	record.ExpiresAt = expiresAt
	record.UpdatedAt = time.Now()
	return true, nil
}

func (m *memoryRepository) Complete(ctx context.Context, scope, key string, result []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if record, ok := m.records[recordKey(scope, key)]; ok {
		record.Status = StatusCompleted
		record.Result = result
		record.UpdatedAt = time.Now()
	}
	return nil
}

func (m *memoryRepository) Fail(ctx context.Context, scope, key string, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if record, ok := m.records[recordKey(scope, key)]; ok {
		record.Status = StatusFailed
		record.LastError = lastError
		record.UpdatedAt = time.Now()
	}
	return nil
}

func (m *memoryRepository) Get(ctx context.Context, scope, key string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if record, ok := m.records[recordKey(scope, key)]; ok {
		copied := *record
		return &copied, nil
	}
	return nil, nil
}

func (m *memoryRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	for k, record := range m.records {
		if record.ExpiresAt.Before(before) {
			delete(m.records, k)
			deleted++
		}
	}
	return deleted, nil
}
