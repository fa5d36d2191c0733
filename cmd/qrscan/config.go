package main

import (
	"fmt"
	"runtime"
	"time"

	"github.com/BurntSushi/toml"
)

// config holds the settings that can come from flags and from a config file.
// Flags given on the command line win over the file.
type config struct {
	Recorder string        `toml:"recorder"`
	Device   string        `toml:"device"`
	Facing   string        `toml:"facing"`
	Interval time.Duration `toml:"interval"`
	Verbose  bool          `toml:"verbose"`
	TraceDir string        `toml:"tracedir"`
	Zbar     bool          `toml:"zbar"`
	TUI      bool          `toml:"tui"`
}

func defaultConfig() config {
	c := config{
		Recorder: "gstreamer",
		Facing:   "environment",
		Interval: 200 * time.Millisecond,
	}
	if runtime.GOOS == "darwin" {
		c.Recorder = "imagesnap"
	}
	return c
}

// loadConfig reads a TOML file over base. Unknown keys are returned as
// warnings, not errors, so old binaries accept newer files.
func loadConfig(path string, base config) (config, []string, error) {
	c := base
	md, err := toml.DecodeFile(path, &c)
	if err != nil {
		return config{}, nil, fmt.Errorf("parsing config file %s: %v", path, err)
	}
	var warnings []string
	for _, k := range md.Undecoded() {
		warnings = append(warnings, fmt.Sprintf("unknown config key %q", k.String()))
	}
	if c.Interval <= 0 {
		return config{}, warnings, fmt.Errorf("config file %s: interval must be > 0", path)
	}
	return c, warnings, nil
}

// overlay returns file with the flags named in set taken from flags.
func overlay(file, flags config, set map[string]bool) config {
	c := file
	if set["recorder"] {
		c.Recorder = flags.Recorder
	}
	if set["device"] {
		c.Device = flags.Device
	}
	if set["facing"] {
		c.Facing = flags.Facing
	}
	if set["interval"] {
		c.Interval = flags.Interval
	}
	if set["verbose"] {
		c.Verbose = flags.Verbose
	}
	if set["tracedir"] {
		c.TraceDir = flags.TraceDir
	}
	if set["zbar"] {
		c.Zbar = flags.Zbar
	}
	if set["tui"] {
		c.TUI = flags.TUI
	}
	return c
}
