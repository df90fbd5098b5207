package cache

import (
	"context"
	"sync"
)

// Memory is a process-local Partitions implementation.
type Memory struct {
	mu   sync.RWMutex
	data map[Partition]map[int64][]byte
}

var _ Partitions = (*Memory)(nil)

// NewMemory returns an empty in-memory store with every partition created.
func NewMemory() *Memory {
	m := &Memory{data: make(map[Partition]map[int64][]byte)}
	for _, mig := range migrations {
		m.data[mig.partition] = make(map[int64][]byte)
	}
	return m
}

func (m *Memory) Put(_ context.Context, p Partition, id int64, doc []byte) error {
	if err := validPartition(p); err != nil {
		return err
	}
	dup := make([]byte, len(doc))
	copy(dup, doc)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[p][id] = dup
	return nil
}

func (m *Memory) GetAll(_ context.Context, p Partition) ([][]byte, error) {
	if err := validPartition(p); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	docs := make([][]byte, 0, len(m.data[p]))
	for _, doc := range m.data[p] {
		dup := make([]byte, len(doc))
		copy(dup, doc)
		docs = append(docs, dup)
	}
	return docs, nil
}

func (m *Memory) Clear(_ context.Context, p Partition) error {
	if err := validPartition(p); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[p] = make(map[int64][]byte)
	return nil
}

func (m *Memory) Count(_ context.Context, p Partition) (int, error) {
	if err := validPartition(p); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data[p]), nil
}

func (m *Memory) Close() error { return nil }
