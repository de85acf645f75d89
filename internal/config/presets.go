package config

import (
	"sort"
	"time"

	"github.com/san-kum/balancer/internal/sim"
)

// Preset is a named scenario applied over the default simulation.
type Preset struct {
	Description string
	Apply       func(*sim.Config)
}

var Presets = map[string]Preset{
	"upright": {
		Description: "stand up from 2° and hold",
		Apply: func(c *sim.Config) {
			c.InitialTilt = 2
		},
	},
	"push": {
		Description: "two taps on the body, forwards then backwards",
		Apply: func(c *sim.Config) {
			c.Duration = 12 * time.Second
			c.Events = []sim.Event{
				{At: 3 * time.Second, Push: 60},
				{At: 7 * time.Second, Push: -60},
			}
		},
	},
	"drive": {
		Description: "drive forwards, curve, then stop",
		Apply: func(c *sim.Config) {
			c.Duration = 12 * time.Second
			c.Events = []sim.Event{
				{At: 2 * time.Second, Command: "move 0 40"},
				{At: 5 * time.Second, Command: "move 50 40"},
				{At: 8 * time.Second, Command: "move 0 0"},
			}
		},
	},
	"recover": {
		Description: "start lying on the floor and kick back up",
		Apply: func(c *sim.Config) {
			c.InitialTilt = 85
			c.Duration = 8 * time.Second
		},
	},
	"calibrated": {
		Description: "run calibration first, then take a push",
		Apply: func(c *sim.Config) {
			c.Calibrate = true
			c.Events = []sim.Event{{At: 4 * time.Second, Push: 60}}
		},
	},
	"noisy": {
		Description: "poor sensors: 5x noise and a 4° mount error",
		Apply: func(c *sim.Config) {
			c.Hardware.AccelNoise *= 5
			c.Hardware.GyroNoise *= 5
			c.Hardware.MountError = 4
		},
	},
}

// GetPreset returns the defaults with the named preset applied, or nil.
func GetPreset(name string) *Config {
	p, ok := Presets[name]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	p.Apply(&cfg.Sim)
	return cfg
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
