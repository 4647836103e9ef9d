package workflow

import (
	"sync"

	"github.com/BaSui01/flowcore/types"
)

// VariableStore holds committed step outputs in commit order. Every step id
// can be written once per execution.
type VariableStore struct {
	mu     sync.RWMutex
	order  []string
	values map[string]any
}

// NewVariableStore creates an empty store.
func NewVariableStore() *VariableStore {
	return &VariableStore{values: make(map[string]any)}
}

// Set commits the output of a step. A second write to the same id is a
// DUPLICATE_WRITE error and leaves the stored value unchanged.
func (s *VariableStore) Set(id string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.values[id]; exists {
		return types.Errorf(types.ErrDuplicateWrite, "variable %q already committed", id)
	}
	s.values[id] = value
	s.order = append(s.order, id)
	return nil
}

// Get returns the output of a step or a MISSING_VARIABLE error.
func (s *VariableStore) Get(id string) (any, error) {
	v, ok := s.Lookup(id)
	if !ok {
		return nil, types.Errorf(types.ErrMissingVariable, "variable %q not found", id)
	}
	return v, nil
}

// Lookup returns the output of a step and whether it was committed.
func (s *VariableStore) Lookup(id string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[id]
	return v, ok
}

// Len returns the number of committed variables.
func (s *VariableStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Keys returns step ids in commit order.
func (s *VariableStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Snapshot returns a copy of the committed values.
func (s *VariableStore) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// conditionScope exposes the store and a condition step's input to expressions.
type conditionScope struct {
	vars  *VariableStore
	input any
}

func (c conditionScope) Lookup(id string) (any, bool) { return c.vars.Lookup(id) }
func (c conditionScope) Input() any                   { return c.input }
