package main

import (
	"context"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/bussim/internal/api"
	"github.com/san-kum/bussim/internal/command"
	"github.com/san-kum/bussim/internal/config"
	"github.com/san-kum/bussim/internal/sim"
)

// serve wires one store into the tick fleet and the command server and
// blocks until ctx is done or the server fails.
func serve(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	ids, err := cfg.IDs()
	if err != nil {
		return err
	}

	store := sim.NewStore(cfg.Params())
	surface := command.New(store, logger)
	fleet := sim.NewFleet(store, ids, cfg.TickInterval, logger)
	srv := api.NewServer(surface, api.ServerOptions{
		Addr:           cfg.Listen,
		StreamFallback: cfg.TickInterval,
		Logger:         logger,
	})

	for _, id := range fleet.IDs() {
		logger.Printf("bussim: bus %s", id)
	}

	g, ctx := errgroup.WithContext(ctx)
	if len(ids) > 0 {
		g.Go(func() error {
			fleet.Run(ctx)
			return nil
		})
	}
	g.Go(func() error {
		return srv.Run(ctx)
	})
	return g.Wait()
}
