package task

import (
	"context"
	"sort"
	"sync"

	"github.com/jonwraymond/todos/health"
)

// MemoryStore is an in-process Store for development and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]map[string]Task
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]map[string]Task)}
}

func (m *MemoryStore) Get(_ context.Context, userID, todoID string) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[userID][todoID]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (m *MemoryStore) Put(_ context.Context, t *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byID, ok := m.tasks[t.UserID]
	if !ok {
		byID = make(map[string]Task)
		m.tasks[t.UserID] = byID
	}
	byID[t.TodoID] = *t
	return nil
}

func (m *MemoryStore) Update(_ context.Context, userID, todoID string, u Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[userID][todoID]
	if !ok {
		return ErrNotFound
	}
	t.Name, t.DueDate, t.Done, t.UpdatedAt = u.Name, u.DueDate, u.Done, u.UpdatedAt
	m.tasks[userID][todoID] = t
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, userID, todoID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[userID][todoID]; !ok {
		return ErrNotFound
	}
	delete(m.tasks[userID], todoID)
	if len(m.tasks[userID]) == 0 {
		delete(m.tasks, userID)
	}
	return nil
}

func (m *MemoryStore) List(_ context.Context, userID string) ([]Task, error) {
	m.mu.RLock()
	out := make([]Task, 0, len(m.tasks[userID]))
	for _, t := range m.tasks[userID] {
		out = append(out, t)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].TodoID < out[j].TodoID
	})
	return out, nil
}

// Name implements health.Checker.
func (m *MemoryStore) Name() string { return "store" }

// Check implements health.Checker; the memory store is always healthy.
func (m *MemoryStore) Check(context.Context) health.Result {
	return health.Healthy("memory store")
}

var (
	_ Store          = (*MemoryStore)(nil)
	_ health.Checker = (*MemoryStore)(nil)
)
