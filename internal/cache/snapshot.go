package cache

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/degentalk/progression/internal/metrics"
)

// Snapshot is an in-memory copy of a store-backed table, stamped with the
// generation that was current when its load started. Invalidate bumps the
// wanted generation; the next Get reloads. A load never replaces a snapshot
// stamped with a newer generation, so a slow refresh that read old rows
// cannot win over a later one.
type Snapshot[T any] struct {
	name   string
	load   func(ctx context.Context) (T, error)
	wanted atomic.Uint64
	group  singleflight.Group

	mu      sync.RWMutex
	current *stamped[T]
}

type stamped[T any] struct {
	generation uint64
	value      T
}

// NewSnapshot creates a snapshot named for metrics, filled lazily by load.
func NewSnapshot[T any](name string, load func(ctx context.Context) (T, error)) *Snapshot[T] {
	s := &Snapshot[T]{name: name, load: load}
	s.wanted.Store(1)
	return s
}

// Get returns a value at least as new as the last invalidation, loading it
// if needed. Concurrent loads for the same generation share one query.
func (s *Snapshot[T]) Get(ctx context.Context) (T, error) {
	want := s.wanted.Load()
	if cur := s.installed(); cur != nil && cur.generation >= want {
		return cur.value, nil
	}

	v, err, _ := s.group.Do(strconv.FormatUint(want, 10), func() (interface{}, error) {
		gen := s.wanted.Load()
		value, err := s.load(context.WithoutCancel(ctx))
		if err != nil {
			metrics.RecordRegistryRefresh(s.name, "error")
			return nil, err
		}
		metrics.RecordRegistryRefresh(s.name, "success")
		return s.install(&stamped[T]{generation: gen, value: value}), nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(*stamped[T]).value, nil
}

// Invalidate marks the installed value stale and returns the new generation.
func (s *Snapshot[T]) Invalidate() uint64 {
	return s.wanted.Add(1)
}

// Generation returns the generation of the installed value, 0 if none.
func (s *Snapshot[T]) Generation() uint64 {
	if cur := s.installed(); cur != nil {
		return cur.generation
	}
	return 0
}

func (s *Snapshot[T]) installed() *stamped[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// install keeps whichever of next and the installed value is newer and
// returns the one it kept.
func (s *Snapshot[T]) install(next *stamped[T]) *stamped[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && s.current.generation > next.generation {
		return s.current
	}
	s.current = next
	metrics.SetRegistryGeneration(s.name, next.generation)
	return next
}
