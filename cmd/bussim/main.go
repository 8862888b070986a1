package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/bussim/internal/api"
	"github.com/san-kum/bussim/internal/automation"
	"github.com/san-kum/bussim/internal/config"
	"github.com/san-kum/bussim/internal/sim"
	"github.com/san-kum/bussim/internal/tui"
)

var (
	// server flags
	configFile   string
	preset       string
	listen       string
	buses        int
	tickInterval time.Duration

	// client flags
	addr    string
	pretty  bool
	samples int
)

var logger = log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)

// main registers the bussim commands and runs the server when no subcommand is given.
func main() {
	rootCmd := &cobra.Command{
		Use:          "bussim",
		Short:        "bus charge simulation engine",
		SilenceUsage: true,
		RunE:         runServe,
	}
	addServeFlags(rootCmd)
	rootCmd.PersistentFlags().StringVar(&addr, "addr", api.DefaultAddress, "server address for client commands")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "run the tick processes and the command server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	addServeFlags(serveCmd)

	stateCmd := &cobra.Command{
		Use:   "state",
		Short: "print the global state document",
		Args:  cobra.NoArgs,
		RunE:  printState,
	}
	stateCmd.Flags().BoolVar(&pretty, "pretty", false, "indent the output")

	toggleCmd := &cobra.Command{
		Use:   "toggle [bus_id]",
		Short: "toggle a bus on or off",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("bus id: %w", err)
			}
			return withClient(cmd, func(ctx context.Context, c *api.Client) error {
				return c.ToggleBus(ctx, id)
			})
		},
	}

	speedCmd := &cobra.Command{
		Use:   "speed [n]",
		Short: "set the per-tick charge step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("speed: %w", err)
			}
			return withClient(cmd, func(ctx context.Context, c *api.Client) error {
				return c.UpdateSimulationSpeed(ctx, uint32(n))
			})
		},
	}

	refreshCmd := &cobra.Command{
		Use:   "refresh [ms]",
		Short: "set the UI refresh rate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("refresh rate: %w", err)
			}
			return withClient(cmd, func(ctx context.Context, c *api.Client) error {
				return c.UpdateRefreshRate(ctx, n)
			})
		},
	}

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "live terminal view of a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := api.NewClient(addr)
			if err != nil {
				return err
			}
			return tui.Watch(c)
		},
	}

	plotCmd := &cobra.Command{
		Use:   "plot [bus_id]",
		Short: "sample one bus from the stream and plot it",
		Args:  cobra.ExactArgs(1),
		RunE:  plotBus,
	}
	plotCmd.Flags().IntVar(&samples, "samples", 200, "number of stream frames to collect")

	scriptCmd := &cobra.Command{
		Use:   "script [scenario.yaml]",
		Short: "run a scripted command scenario against a server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scenario, err := automation.LoadScenario(args[0])
			if err != nil {
				return err
			}
			c, err := api.NewClient(addr)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			if scenario.Name != "" {
				fmt.Printf("scenario: %s\n", scenario.Name)
			}
			return automation.RunScenario(ctx, scenario, c, os.Stdout)
		},
	}

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list configuration presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tBUSES\tTICK\tSPEED\tREFRESH")
			for _, name := range config.ListPresets() {
				p := config.GetPreset(name)
				fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%dms\n", name, p.Buses, p.TickInterval, p.Speed, p.RefreshRate)
			}
			return w.Flush()
		},
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "configuration files",
	}
	configInitCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "write a configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultConfig()
			if preset != "" {
				if cfg = config.GetPreset(preset); cfg == nil {
					return fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
				}
			}
			if err := config.Save(args[0], cfg); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", args[0])
			return nil
		},
	}
	configInitCmd.Flags().StringVar(&preset, "preset", "", "start from a preset")
	configCmd.AddCommand(configInitCmd)

	rootCmd.AddCommand(serveCmd, stateCmd, toggleCmd, speedCmd, refreshCmd, watchCmd, plotCmd, scriptCmd, presetsCmd, configCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	cmd.Flags().StringVar(&listen, "listen", config.DefaultListen, "listen address")
	cmd.Flags().IntVar(&buses, "buses", config.DefaultBuses, "number of buses")
	cmd.Flags().DurationVar(&tickInterval, "tick", 0, "tick interval (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return serve(ctx, cfg, logger)
}

// resolveConfig layers defaults, then the preset, then the config file's
// keys, then explicit flags.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if preset != "" {
		if cfg = config.GetPreset(preset); cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
	}
	if configFile != "" {
		loaded, err := config.LoadOver(configFile, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	if cmd.Flags().Changed("listen") {
		cfg.Listen = listen
	}
	if cmd.Flags().Changed("buses") {
		cfg.Buses = buses
	}
	if cmd.Flags().Changed("tick") {
		cfg.TickInterval = tickInterval
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func withClient(cmd *cobra.Command, fn func(ctx context.Context, c *api.Client) error) error {
	c, err := api.NewClient(addr)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	return fn(ctx, c)
}

func printState(cmd *cobra.Command, args []string) error {
	return withClient(cmd, func(ctx context.Context, c *api.Client) error {
		state, err := c.GetGlobalState(ctx)
		if err != nil {
			return err
		}
		if pretty {
			var buf bytes.Buffer
			if err := json.Indent(&buf, []byte(state), "", "  "); err != nil {
				return err
			}
			state = buf.String()
		}
		fmt.Println(state)
		return nil
	})
}

func plotBus(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("bus id: %w", err)
	}
	c, err := api.NewClient(addr)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	data := make([]float64, 0, samples)
	err = c.Stream(ctx, func(s sim.Snapshot) bool {
		if b, ok := s.Bus(id); ok {
			data = append(data, float64(b.Percent)/10)
		}
		return len(data) < samples
	})
	if err != nil && ctx.Err() == nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("bus %s not found", id)
	}

	graph := asciigraph.Plot(data,
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.LowerBound(0),
		asciigraph.UpperBound(100),
		asciigraph.Caption(fmt.Sprintf("bus %s charge %% (%d samples)", id, len(data))),
	)
	fmt.Println(graph)
	fmt.Println()
	return nil
}
