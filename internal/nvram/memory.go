package nvram

import (
	"fmt"
	"sort"
	"sync"

	"github.com/deploymenttheory/go-nvstorage/internal/common/errors"
)

// Memory is a transient registry node held in process memory. It is the backend
// for tests and dry runs.
type Memory struct {
	mu      sync.Mutex
	vars    map[string][]byte
	maxSize int
	closed  bool
}

// NewMemory returns an empty in-memory registry node. A positive maxSize caps the
// size of a single variable.
func NewMemory(maxSize int) *Memory {
	return &Memory{vars: make(map[string][]byte), maxSize: maxSize}
}

func (m *Memory) Kind() Kind { return KindRegistry }

func (m *Memory) Get(name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("%w: backend closed", errors.ErrBackendRead)
	}
	value, ok := m.vars[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errors.ErrVariableNotFound, name)
	}
	return cloneBytes(value), nil
}

func (m *Memory) Set(name string, value []byte) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := checkSize(name, value, m.maxSize); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("%w: backend closed", errors.ErrBackendWrite)
	}
	m.vars[name] = cloneBytes(value)
	return nil
}

func (m *Memory) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("%w: backend closed", errors.ErrBackendWrite)
	}
	delete(m.vars, name)
	return nil
}

func (m *Memory) Enumerate() ([]Variable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("%w: backend closed", errors.ErrBackendRead)
	}
	vars := make([]Variable, 0, len(m.vars))
	for name, value := range m.vars {
		vars = append(vars, Variable{Name: name, Value: cloneBytes(value)})
	}
	sort.Slice(vars, func(i, j int) bool { return vars[i].Name < vars[j].Name })
	return vars, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
