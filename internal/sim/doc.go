// Package sim holds the bus simulation core.
//
// The package defines the shared state and the processes that advance it:
//
//   - [Store]: the single lock-guarded container for every [Bus] and the
//     global [Params]
//   - [Ticker]: one periodic process per bus, oscillating its charge
//     between 0 and [MaxPercent]
//   - [Fleet]: starts one ticker goroutine per bus and waits for them
//
// # Example
//
//	store := sim.NewStore(sim.DefaultParams())
//	fleet := sim.NewFleet(store, ids, sim.DefaultTickInterval, logger)
//	go fleet.Run(ctx)
//	snap := store.Read()
//
// # Thread Safety
//
// Store is safe for concurrent use. Every read and write goes through
// [Store.Read] or [Store.Mutate], which hold one mutex for the duration of
// the copy or the mutation. Callers never see a live reference to a bus.
// A Ticker is owned by exactly one goroutine.
package sim
