// Package command is the external surface of the simulation.
//
// A [Surface] wraps a [sim.Store] and exposes the four UI commands:
// get_global_state, toggle_bus, update_simulation_speed and
// update_refresh_rate. Each runs synchronously on the caller's goroutine
// and holds the store lock only for its own read or write.
//
// [Surface.Invoke] dispatches a command by name with a JSON object of
// arguments, using the same argument names the desktop shell sends
// (busId, speed, refreshRate). No command validates its input range.
package command
