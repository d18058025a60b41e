package balancer

import (
	"errors"
	"slices"

	"github.com/yanet-platform/flowlb/internal/flow"
)

// ErrEmptyPool is returned when a pool is created without backends.
var ErrEmptyPool = errors.New("backend pool is empty")

// Pool is an ordered set of backends with a round-robin cursor.
//
// Not safe for concurrent use: it is owned by a single scheduler.
type Pool struct {
	backends []flow.Backend
	cursor   int
}

// NewPool creates a pool positioned at its first backend.
func NewPool(backends []flow.Backend) (*Pool, error) {
	if len(backends) == 0 {
		return nil, ErrEmptyPool
	}
	return &Pool{backends: slices.Clone(backends)}, nil
}

// Next returns the backend under the cursor and then advances the cursor,
// wrapping around at the end of the pool.
func (m *Pool) Next() flow.Backend {
	backend := m.backends[m.cursor]
	m.cursor = (m.cursor + 1) % len(m.backends)
	return backend
}

// Cursor returns the index of the backend the next call to Next selects.
func (m *Pool) Cursor() int {
	return m.cursor
}

// Len returns the number of backends.
func (m *Pool) Len() int {
	return len(m.backends)
}
