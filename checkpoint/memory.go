package checkpoint

import (
	"context"
	"sync"

	"github.com/marcelsud/tower-poller/input"
)

// Memory keeps checkpoints in process memory. Used by tests and dry runs.
type Memory struct {
	mu     sync.RWMutex
	values map[string]int64
}

func NewMemory() *Memory {
	return &Memory{values: make(map[string]int64)}
}

func memoryKey(inputName string, category input.Category) string {
	return Key(inputName) + ":" + category.CheckpointField()
}

func (m *Memory) Get(_ context.Context, inputName string, category input.Category) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.values[memoryKey(inputName, category)], nil
}

func (m *Memory) Set(_ context.Context, inputName string, category input.Category, cursor int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memoryKey(inputName, category)
	if cursor > m.values[k] {
		m.values[k] = cursor
	}
	return nil
}

func (m *Memory) Close(context.Context) error {
	return nil
}
