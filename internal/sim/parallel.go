package sim

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Fleet runs one Ticker per bus, each on its own goroutine.
type Fleet struct {
	store   *Store
	tickers []*Ticker
	logger  *log.Logger
}

func NewFleet(store *Store, ids []uuid.UUID, interval time.Duration, logger *log.Logger) *Fleet {
	if logger == nil {
		logger = log.Default()
	}
	tickers := make([]*Ticker, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		tickers = append(tickers, NewTicker(id, store, interval, logger))
	}
	return &Fleet{store: store, tickers: tickers, logger: logger}
}

func (f *Fleet) IDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(f.tickers))
	for i, t := range f.tickers {
		ids[i] = t.ID()
	}
	return ids
}

// Run blocks until ctx is done and every ticker goroutine has returned.
func (f *Fleet) Run(ctx context.Context) error {
	if len(f.tickers) == 0 {
		return ErrNoBuses
	}

	var wg sync.WaitGroup
	for _, t := range f.tickers {
		wg.Add(1)
		go func(t *Ticker) {
			defer wg.Done()
			t.Run(ctx)
		}(t)
	}
	f.logger.Printf("sim: %d buses ticking every %s", len(f.tickers), f.tickers[0].Interval())

	wg.Wait()
	return ctx.Err()
}
