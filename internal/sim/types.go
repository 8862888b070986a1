package sim

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// MaxPercent is a full charge in tenths of a percent.
const MaxPercent uint32 = 1000

const (
	DefaultSpeed        uint32 = 1
	DefaultRefreshRate  uint64 = 20
	DefaultTickInterval        = 20 * time.Millisecond
)

// MaxRefreshRate is the largest refresh_rate, in milliseconds, that still
// fits a time.Duration. Larger rates are accepted and saturate to it.
const MaxRefreshRate = uint64(math.MaxInt64 / int64(time.Millisecond))

// RefreshInterval converts a refresh_rate in milliseconds into a sampling
// interval. A zero rate yields fallback.
func RefreshInterval(rate uint64, fallback time.Duration) time.Duration {
	if rate == 0 {
		return fallback
	}
	if rate > MaxRefreshRate {
		rate = MaxRefreshRate
	}
	return time.Duration(rate) * time.Millisecond
}

// Bus is one simulated entity. Percent is fixed point in tenths, [0, MaxPercent].
type Bus struct {
	Percent  uint32 `json:"percent"`
	IsActive bool   `json:"is_active"`
}

// Params are process-wide tunables applied to every bus.
type Params struct {
	Balance     int32  `json:"balance"`
	Speed       uint32 `json:"speed"`
	RefreshRate uint64 `json:"refresh_rate"`
}

func DefaultParams() Params {
	return Params{
		Balance:     0,
		Speed:       DefaultSpeed,
		RefreshRate: DefaultRefreshRate,
	}
}

// Snapshot is a point-in-time copy of the whole store. Its JSON encoding is
// the global state document handed to UI callers.
type Snapshot struct {
	Params
	Buses map[uuid.UUID]Bus `json:"buses"`
}

// Bus returns the bus with the given id and whether it exists.
func (s Snapshot) Bus(id uuid.UUID) (Bus, bool) {
	b, ok := s.Buses[id]
	return b, ok
}

// World is the mutable state handed to a Store.Mutate callback. It must not
// be retained after the callback returns.
type World struct {
	Params
	Buses map[uuid.UUID]*Bus
}

// Ensure returns the bus for id, creating it with percent 0 and the given
// active flag when it does not exist yet.
func (w *World) Ensure(id uuid.UUID, active bool) *Bus {
	if b, ok := w.Buses[id]; ok {
		return b
	}
	b := &Bus{Percent: 0, IsActive: active}
	w.Buses[id] = b
	return b
}
