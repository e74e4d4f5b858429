package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"noticer/internal/task"
)

// Memory is an in-process Store. Records are copied on the way in and out.
type Memory struct {
	mu     sync.RWMutex
	tasks  map[int64]task.Task
	nextID int64
	closed bool
}

func NewMemory() *Memory {
	return &Memory{tasks: map[int64]task.Task{}, nextID: 1}
}

func (m *Memory) List(ctx context.Context) ([]task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, fmt.Errorf("%w: memory store closed", ErrUnavailable)
	}
	out := make([]task.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Get(ctx context.Context, id int64) (task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return task.Task{}, fmt.Errorf("%w: memory store closed", ErrUnavailable)
	}
	t, ok := m.tasks[id]
	if !ok {
		return task.Task{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return t.Clone(), nil
}

func (m *Memory) Save(ctx context.Context, t task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("%w: memory store closed", ErrUnavailable)
	}
	cur, ok := m.tasks[t.ID]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrNotFound, t.ID)
	}
	cur.ExecuteTimes = t.ExecuteTimes
	cur.LastExecutedAt = t.LastExecutedAt
	m.tasks[t.ID] = cur
	return nil
}

func (m *Memory) Create(ctx context.Context, t task.Task) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, fmt.Errorf("%w: memory store closed", ErrUnavailable)
	}
	t = t.Clone()
	t.ID = m.nextID
	m.nextID++
	m.tasks[t.ID] = t
	return t.ID, nil
}

// Put stores t under its own id, replacing any previous record.
func (m *Memory) Put(t task.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = t.Clone()
	if t.ID >= m.nextID {
		m.nextID = t.ID + 1
	}
}

// Delete removes a task; used to simulate administrative deletion.
func (m *Memory) Delete(id int64) {
	m.mu.Lock()
	delete(m.tasks, id)
	m.mu.Unlock()
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
