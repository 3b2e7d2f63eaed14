package pipeline

import (
	"context"
	"sync"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu      sync.Mutex
	Upserts []UpsertCall
	Appends []AppendCall
	Docs    map[string]map[string]any

	UpsertErr error
	AppendErr error
	FetchErr  error
}

type UpsertCall struct {
	Collection string
	Key        string
	Doc        map[string]any
}

type AppendCall struct {
	Collection string
	Key        string
	Field      string
	Item       any
}

func NewMockStore() *MockStore {
	return &MockStore{Docs: make(map[string]map[string]any)}
}

func (m *MockStore) UpsertMerge(ctx context.Context, collection, key string, doc map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpsertErr != nil {
		return m.UpsertErr
	}
	m.Upserts = append(m.Upserts, UpsertCall{Collection: collection, Key: key, Doc: doc})
	existing, ok := m.Docs[collection+"/"+key]
	if !ok {
		existing = make(map[string]any)
		m.Docs[collection+"/"+key] = existing
	}
	for k, v := range doc {
		existing[k] = v
	}
	return nil
}

func (m *MockStore) AppendToList(ctx context.Context, collection, key, field string, item any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AppendErr != nil {
		return m.AppendErr
	}
	m.Appends = append(m.Appends, AppendCall{Collection: collection, Key: key, Field: field, Item: item})
	existing, ok := m.Docs[collection+"/"+key]
	if !ok {
		existing = map[string]any{field: []any{}}
		m.Docs[collection+"/"+key] = existing
	}
	list, _ := existing[field].([]any)
	existing[field] = append(list, item)
	return nil
}

func (m *MockStore) FetchOne(ctx context.Context, collection, key string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FetchErr != nil {
		return nil, m.FetchErr
	}
	doc, ok := m.Docs[collection+"/"+key]
	if !ok {
		return nil, nil
	}
	return doc, nil
}
