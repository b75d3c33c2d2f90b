package cart

import (
	"context"
	"sync"
)

// MemorySnapshotStore is an in-memory implementation of SnapshotStore.
// Snapshots survive store restarts within the process but not process
// restarts; it exists for tests and ephemeral runs.
type MemorySnapshotStore struct {
	mu     sync.RWMutex
	slots  map[string][]byte
	logger Logger
}

// NewMemorySnapshotStore creates a new in-memory snapshot store.
func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{
		slots:  make(map[string][]byte),
		logger: &NoOpLogger{},
	}
}

// SetLogger configures the logger for this snapshot store.
func (m *MemorySnapshotStore) SetLogger(logger Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// Load retrieves the snapshot stored under key.
func (m *MemorySnapshotStore) Load(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, exists := m.slots[key]
	if !exists {
		m.logger.Debug("Snapshot slot empty", map[string]interface{}{
			"operation":   "snapshot_load",
			"storage_key": key,
		})
		return nil, ErrSnapshotNotFound
	}

	m.logger.Debug("Snapshot loaded", map[string]interface{}{
		"operation":   "snapshot_load",
		"storage_key": key,
		"data_size":   len(data),
	})

	copied := make([]byte, len(data))
	copy(copied, data)
	return copied, nil
}

// Save stores a snapshot under key, replacing any previous one.
func (m *MemorySnapshotStore) Save(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := make([]byte, len(data))
	copy(copied, data)
	m.slots[key] = copied

	m.logger.Debug("Snapshot saved", map[string]interface{}{
		"operation":   "snapshot_save",
		"storage_key": key,
		"data_size":   len(data),
	})
	return nil
}

// Delete removes the snapshot stored under key.
func (m *MemorySnapshotStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, existed := m.slots[key]
	delete(m.slots, key)

	m.logger.Debug("Snapshot deleted", map[string]interface{}{
		"operation":   "snapshot_delete",
		"storage_key": key,
		"existed":     existed,
	})
	return nil
}

// Close is a no-op for the in-memory store.
func (m *MemorySnapshotStore) Close() error {
	return nil
}

var _ SnapshotStore = (*MemorySnapshotStore)(nil)
