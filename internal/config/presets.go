package config

import (
	"sort"
	"time"
)

var Presets = map[string]*Config{
	"default": DefaultConfig(),
	"calm": {
		Buses: 2, TickInterval: 50 * time.Millisecond, Speed: 1, RefreshRate: 100,
		Listen: DefaultListen,
	},
	"rush": {
		Buses: 2, TickInterval: 5 * time.Millisecond, Speed: 50, RefreshRate: 20,
		Listen: DefaultListen,
	},
	"fleet": {
		Buses: 12, TickInterval: 20 * time.Millisecond, Speed: 5, RefreshRate: 60,
		Listen: DefaultListen,
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(name string) *Config {
	p, ok := Presets[name]
	if !ok {
		return nil
	}
	cfg := *p
	cfg.BusIDs = append([]string(nil), p.BusIDs...)
	return &cfg
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
