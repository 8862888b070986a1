package sim

import (
	"sync"

	"github.com/google/uuid"
)

// Store holds all mutable simulation state behind one mutex.
// Use Read and Mutate; callers never take the lock directly.
type Store struct {
	mu    sync.Mutex
	world World
}

func NewStore(p Params) *Store {
	return &Store{
		world: World{
			Params: p,
			Buses:  make(map[uuid.UUID]*Bus),
		},
	}
}

// Read returns a deep copy safe to use without further locking.
func (s *Store) Read() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	buses := make(map[uuid.UUID]Bus, len(s.world.Buses))
	for id, b := range s.world.Buses {
		buses[id] = *b
	}
	return Snapshot{
		Params: s.world.Params,
		Buses:  buses,
	}
}

// Mutate applies fn under exclusive access. The lock is released even if
// fn panics; the panic itself propagates to the caller.
func (s *Store) Mutate(fn func(w *World)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.world)
}

// Len reports the number of known buses.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.world.Buses)
}
