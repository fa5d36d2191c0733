package main

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, s string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "qrscan.toml")
	if err := os.WriteFile(p, []byte(s), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadConfig(t *testing.T) {
	p := writeConfig(t, `
recorder = "ffmpeg"
device = "/dev/video2"
interval = "500ms"
zbar = true
color = "blue"
`)
	base := config{Recorder: "gstreamer", Facing: "environment", Interval: 200 * time.Millisecond}
	c, warnings, err := loadConfig(p, base)
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	exp := config{
		Recorder: "ffmpeg",
		Device:   "/dev/video2",
		Facing:   "environment",
		Interval: 500 * time.Millisecond,
		Zbar:     true,
	}
	if !reflect.DeepEqual(c, exp) {
		t.Fatalf("config, got %+v, expected %+v", c, exp)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "color") {
		t.Fatalf("warnings, got %q, expected one about color", warnings)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, _, err := loadConfig(filepath.Join(t.TempDir(), "missing.toml"), defaultConfig()); err == nil {
		t.Fatalf("missing file, expected error")
	}
	if _, _, err := loadConfig(writeConfig(t, "recorder = "), defaultConfig()); err == nil {
		t.Fatalf("bad syntax, expected error")
	}
	if _, _, err := loadConfig(writeConfig(t, `interval = "0s"`), defaultConfig()); err == nil {
		t.Fatalf("zero interval, expected error")
	}
}

func TestOverlay(t *testing.T) {
	file := config{Recorder: "ffmpeg", Device: "/dev/video2", Facing: "user", Interval: time.Second, TUI: true}
	flags := config{Recorder: "gstreamer", Device: "/dev/video0", Facing: "environment", Interval: 200 * time.Millisecond, Verbose: true}

	c := overlay(file, flags, map[string]bool{"device": true, "verbose": true, "tui": true})
	exp := config{Recorder: "ffmpeg", Device: "/dev/video0", Facing: "user", Interval: time.Second, Verbose: true}
	if !reflect.DeepEqual(c, exp) {
		t.Fatalf("overlay, got %+v, expected %+v", c, exp)
	}
}
