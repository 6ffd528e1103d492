package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/sho7650/content-rotation/internal/core"
)

// MemoryStore is an in-process ContentStore. It can pretend that its compound
// indexes are missing so the fallback path can be exercised without a database.
type MemoryStore struct {
	mu             sync.RWMutex
	items          map[core.ContentType]map[string]*core.ContentItem
	indexAvailable bool
	ready          bool
	queryErr       error
	queries        int
	scans          int
}

// NewMemoryStorage creates an empty in-memory store with indexes available
func NewMemoryStorage() *MemoryStore {
	return &MemoryStore{
		items:          make(map[core.ContentType]map[string]*core.ContentItem),
		indexAvailable: true,
	}
}

// Initialize marks the store ready
func (m *MemoryStore) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = true
	return nil
}

// Close marks the store closed
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = false
	return nil
}

// IsReady returns whether the store is ready for operations
func (m *MemoryStore) IsReady() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ready
}

// SetIndexAvailable toggles whether filtered queries succeed
func (m *MemoryStore) SetIndexAvailable(available bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexAvailable = available
}

// SetQueryError makes every Query and Scan fail with err until cleared with nil
func (m *MemoryStore) SetQueryError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queryErr = err
}

// Calls returns how many Query and Scan calls were made
func (m *MemoryStore) Calls() (queries, scans int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.queries, m.scans
}

// Query filters, sorts and limits the stored items
func (m *MemoryStore) Query(ctx context.Context, query ContentQuery) ([]*core.ContentItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++

	if !m.ready {
		return nil, ErrNotReady
	}
	if err := query.Validate(); err != nil {
		return nil, fmt.Errorf("invalid content query: %w", err)
	}
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	if query.IndexKind() != "" && !m.indexAvailable {
		return nil, fmt.Errorf("%w: %s index on %s", core.ErrIndexUnavailable, query.IndexKind(), CollectionName(query.Type))
	}

	return query.Apply(m.snapshot(query.Type)), nil
}

// Scan returns every stored item of contentType in no particular order
func (m *MemoryStore) Scan(ctx context.Context, contentType core.ContentType) ([]*core.ContentItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scans++

	if !m.ready {
		return nil, ErrNotReady
	}
	if m.queryErr != nil {
		return nil, m.queryErr
	}

	return m.snapshot(contentType), nil
}

// PutContent stores a copy of item. An empty ID is assigned a UUID.
func (m *MemoryStore) PutContent(ctx context.Context, item *core.ContentItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if err := item.Validate(); err != nil {
		return fmt.Errorf("invalid content item %s: %w", item.ID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.items[item.Type] == nil {
		m.items[item.Type] = make(map[string]*core.ContentItem)
	}
	stored := *item
	stored.Tags = append([]string(nil), item.Tags...)
	m.items[item.Type][item.ID] = &stored
	return nil
}

// SetStatus changes the status of a stored item
func (m *MemoryStore) SetStatus(ctx context.Context, contentType core.ContentType, id string, status core.ContentStatus) error {
	if err := status.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[contentType][id]
	if !ok {
		return fmt.Errorf("content item %s not found in %s", id, CollectionName(contentType))
	}
	item.Status = status
	return nil
}

// snapshot copies the items of one collection; callers hold the lock
func (m *MemoryStore) snapshot(contentType core.ContentType) []*core.ContentItem {
	items := make([]*core.ContentItem, 0, len(m.items[contentType]))
	for _, item := range m.items[contentType] {
		copied := *item
		items = append(items, &copied)
	}
	return items
}
