package sim

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// StepFunc advances a charge level by one tick.
type StepFunc func(percent, speed uint32, increasing bool) (uint32, bool)

// Advance moves percent by speed in the current direction. It clamps to
// exactly 0 or MaxPercent and reports the direction for the next tick.
func Advance(percent, speed uint32, increasing bool) (uint32, bool) {
	if increasing {
		if uint64(percent)+uint64(speed) >= uint64(MaxPercent) {
			return MaxPercent, false
		}
		return percent + speed, true
	}
	if percent < speed {
		return 0, true
	}
	return percent - speed, false
}

// Ticker drives a single bus. The direction flag lives here rather than in
// the store; it is only touched by the goroutine running the ticker.
type Ticker struct {
	id         uuid.UUID
	store      *Store
	interval   time.Duration
	logger     *log.Logger
	step       StepFunc
	increasing bool
	ticks      uint64
}

func NewTicker(id uuid.UUID, store *Store, interval time.Duration, logger *log.Logger) *Ticker {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Ticker{
		id:         id,
		store:      store,
		interval:   interval,
		logger:     logger,
		step:       Advance,
		increasing: true,
	}
}

func (t *Ticker) ID() uuid.UUID           { return t.id }
func (t *Ticker) Interval() time.Duration { return t.interval }
func (t *Ticker) Increasing() bool        { return t.increasing }
func (t *Ticker) Ticks() uint64           { return t.ticks }

// Tick performs one locked update of the bus. An unseen bus is created
// active. Inactive buses are left untouched. A panic inside the update is
// recovered and returned as a *TickError so one bus cannot take the others
// down with it.
func (t *Ticker) Tick() (err error) {
	t.ticks++
	defer func() {
		if r := recover(); r != nil {
			err = &TickError{
				BusID:   t.id,
				Tick:    t.ticks,
				Wrapped: fmt.Errorf("%w: %v", ErrTickPanic, r),
			}
		}
	}()

	increasing := t.increasing
	t.store.Mutate(func(w *World) {
		speed := w.Speed
		bus := w.Ensure(t.id, true)
		if !bus.IsActive {
			return
		}
		bus.Percent, increasing = t.step(bus.Percent, speed, increasing)
	})
	t.increasing = increasing
	return nil
}

// Run ticks on a fixed interval until ctx is done.
func (t *Ticker) Run(ctx context.Context) error {
	tk := time.NewTicker(t.interval)
	defer tk.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tk.C:
			if err := t.Tick(); err != nil {
				t.logger.Printf("sim: %v", err)
			}
		}
	}
}
