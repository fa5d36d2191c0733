// Command qrscan scans a QR code with a camera (eg webcam) and prints its
// content.
//
// Examples:
//
//	# List available devices and quit.
//	qrscan -listdevices
//
//	# Scan with default settings, preferring a rear camera.
//	qrscan
//
//	# Scan in a terminal screen with a live preview and flash control.
//	qrscan -tui
//
//	# Scan using ffmpeg as recorder, with explicit device, every 100ms.
//	qrscan -recorder ffmpeg -device /dev/video0 -verbose -interval 100ms
//
//	# Scan a photo, falling back to zbarimg when the built-in decoder fails.
//	qrscan -zbar -photo receipt.jpg
//
//	# Read settings from a file, flags still override it.
//	qrscan -config ~/.config/qrscan.toml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	qrscan "github.com/vestify/qrscan-go"
	"github.com/vestify/qrscan-go/camera"
	"github.com/vestify/qrscan-go/camera/ffmpeg"
	"github.com/vestify/qrscan-go/camera/gstreamer"
	"github.com/vestify/qrscan-go/camera/imagesnap"
	"github.com/vestify/qrscan-go/camera/v4l2"
	"github.com/vestify/qrscan-go/decode"
	"github.com/vestify/qrscan-go/decode/zbar"
	"github.com/vestify/qrscan-go/media"
	"github.com/vestify/qrscan-go/shell"
)

var (
	configPath  string
	listDevices bool
	photoPath   string
	flags       = defaultConfig()
)

func init() {
	flag.StringVar(&configPath, "config", "", "if set, read settings from this TOML file, flags override it")
	flag.BoolVar(&listDevices, "listdevices", false, "if set, lists devices and exits")
	flag.StringVar(&photoPath, "photo", "", "if set, scan this image file instead of a camera")
	flag.StringVar(&flags.Recorder, "recorder", flags.Recorder, "type of recorder to use, imagesnap on macOS; gstreamer or ffmpeg on linux")
	flag.StringVar(&flags.Device, "device", "", "device ID to use, by default a camera is selected by -facing")
	flag.StringVar(&flags.Facing, "facing", flags.Facing, "preferred camera: environment (rear), user (front) or any")
	flag.DurationVar(&flags.Interval, "interval", flags.Interval, "how often to take an image and decode it")
	flag.BoolVar(&flags.Verbose, "verbose", false, "print verbose output")
	flag.StringVar(&flags.TraceDir, "tracedir", "", "if set, store the images sent to the decoder in the named directory")
	flag.BoolVar(&flags.Zbar, "zbar", false, "if set, retry photos with zbarimg when the built-in decoder finds nothing")
	flag.BoolVar(&flags.TUI, "tui", false, "show a terminal screen with camera preview, flash and photo scanning")
}

func usage() {
	log.Println("usage: qrscan [flags]")
	flag.PrintDefaults()
	os.Exit(2)
}

func main() {
	log.SetFlags(0)
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() != 0 {
		usage()
	}
	os.Exit(main0())
}

func main0() int {
	cfg := flags
	if configPath != "" {
		set := map[string]bool{}
		flag.Visit(func(f *flag.Flag) {
			set[f.Name] = true
		})
		file, warnings, err := loadConfig(configPath, defaultConfig())
		for _, w := range warnings {
			log.Printf("warning: %s", w)
		}
		if err != nil {
			log.Printf("%v", err)
			return 2
		}
		cfg = overlay(file, flags, set)
	}
	if cfg.Interval <= 0 {
		log.Printf("interval must be > 0")
		return 2
	}

	facing, err := qrscan.ParseFacing(cfg.Facing)
	if err != nil {
		log.Printf("%v", err)
		return 2
	}

	backend, torch, err := newBackend(cfg)
	if err != nil {
		log.Printf("%v", err)
		return 2
	}

	if listDevices {
		devs, err := backend.ListDevices()
		if err != nil {
			log.Printf("listing devices: %v", err)
			return 1
		}
		for _, dev := range devs {
			caps := ""
			if len(dev.Caps) > 0 {
				l := []string{}
				for _, c := range dev.Caps {
					l = append(l, fmt.Sprintf("%dx%d@%dfps", c.Width, c.Height, c.Framerate))
				}
				caps = fmt.Sprintf(" (caps: %s)", strings.Join(l, " "))
			}
			f := "unknown"
			if dev.Facing != qrscan.FacingAny {
				f = string(dev.Facing)
			}
			fmt.Printf("%s: %s, facing %s%s\n", dev.ID, dev.Name, f, caps)
		}
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eopts := &decode.EngineOpts{
		Verbose:  cfg.Verbose,
		TraceDir: cfg.TraceDir,
	}
	if cfg.Zbar {
		zb, err := zbar.NewDecoder(&zbar.DecoderOpts{Verbose: cfg.Verbose})
		if err != nil {
			log.Printf("new zbar decoder: %v", err)
			return 1
		}
		defer zb.Close()
		eopts.Fallback = zb
	}
	engine := decode.NewEngine(eopts)

	mopts := &media.CapabilityOpts{
		Verbose:  cfg.Verbose,
		Torch:    torch,
		DeviceID: cfg.Device,
	}
	capability, err := media.NewCapability(backend, mopts)
	if err != nil {
		log.Printf("new media capability: %v", err)
		return 1
	}

	copts := &qrscan.ControllerOpts{
		Verbose: cfg.Verbose,
		Facing:  facing,
		Host:    ctx,
	}

	switch {
	case photoPath != "":
		return scanPhoto(ctx, capability, engine, copts)
	case cfg.TUI:
		return runShell(ctx, capability, engine, copts)
	}
	return scanCamera(ctx, capability, engine, copts)
}

func newBackend(cfg config) (media.Backend, media.TorchControl, error) {
	switch cfg.Recorder {
	case "gstreamer":
		return media.Backend{
			Name:        "gstreamer",
			ListDevices: gstreamer.ListDevices,
			NewRecorder: func(deviceID string) (camera.Recorder, error) {
				r, err := gstreamer.NewRecorder(gstreamer.RecorderOpts{
					Verbose:  cfg.Verbose,
					Interval: cfg.Interval,
					DeviceID: deviceID,
				})
				if err != nil {
					return nil, fmt.Errorf("new gstreamer recorder: %w", err)
				}
				return r, nil
			},
		}, &v4l2.Torch{Verbose: cfg.Verbose}, nil
	case "ffmpeg":
		return media.Backend{
			Name:        "ffmpeg",
			ListDevices: ffmpeg.ListDevices,
			NewRecorder: func(deviceID string) (camera.Recorder, error) {
				r, err := ffmpeg.NewRecorder(ffmpeg.RecorderOpts{
					Verbose:  cfg.Verbose,
					Interval: cfg.Interval,
					DeviceID: deviceID,
				})
				if err != nil {
					return nil, fmt.Errorf("new ffmpeg recorder: %w", err)
				}
				return r, nil
			},
		}, &v4l2.Torch{Verbose: cfg.Verbose}, nil
	case "imagesnap":
		// No torch control on macOS.
		return media.Backend{
			Name:        "imagesnap",
			ListDevices: imagesnap.ListDevices,
			NewRecorder: func(deviceID string) (camera.Recorder, error) {
				r, err := imagesnap.NewRecorder(imagesnap.RecorderOpts{
					Verbose:  cfg.Verbose,
					Interval: cfg.Interval,
					DeviceID: deviceID,
				})
				if err != nil {
					return nil, fmt.Errorf("new imagesnap recorder: %w", err)
				}
				return r, nil
			},
		}, nil, nil
	}
	return media.Backend{}, nil, fmt.Errorf("unknown recorder type %q", cfg.Recorder)
}

func logNotice(n qrscan.Notice) {
	log.Printf("%s", n)
}

// scanCamera scans until a code is decoded or a signal arrives.
func scanCamera(ctx context.Context, capability *media.Capability, engine *decode.Engine, opts *qrscan.ControllerOpts) int {
	results := make(chan string, 1)
	opts.OnClose = func(payload string) {
		results <- payload
	}
	opts.OnNotice = logNotice
	if opts.Verbose {
		opts.OnState = func(st qrscan.State) {
			log.Printf("scanner %s", st)
		}
	}

	ctrl, err := qrscan.NewController(capability, engine, nil, opts)
	if err != nil {
		log.Printf("new controller: %v", err)
		return 1
	}
	defer ctrl.Unmount()

	err = ctrl.Start(ctx)
	switch {
	case err == nil:
		log.Printf("scanning, point the camera at a QR code")
	case errors.Is(err, qrscan.ErrStopped):
		// A code decoded or a signal arrived before Start returned. The
		// lifecycle is complete, its result is waiting.
	default:
		log.Printf("starting scanner: %v", err)
		return 1
	}

	payload := <-results
	if payload == "" {
		return 1
	}
	fmt.Println(payload)
	return 0
}

func scanPhoto(ctx context.Context, capability *media.Capability, engine *decode.Engine, opts *qrscan.ControllerOpts) int {
	f, err := os.Open(photoPath)
	if err != nil {
		log.Printf("opening photo: %v", err)
		return 1
	}
	defer f.Close()

	opts.OnNotice = logNotice
	ctrl, err := qrscan.NewController(capability, engine, nil, opts)
	if err != nil {
		log.Printf("new controller: %v", err)
		return 1
	}
	defer ctrl.Unmount()

	payload, err := ctrl.ScanStaticImage(ctx, f)
	if err != nil {
		if !errors.Is(err, qrscan.ErrNotFound) {
			log.Printf("%v", err)
		}
		return 1
	}
	fmt.Println(payload)
	return 0
}

func runShell(ctx context.Context, capability *media.Capability, engine *decode.Engine, opts *qrscan.ControllerOpts) int {
	if opts.Verbose {
		// The screen owns the terminal, verbose output goes to a file.
		logPath := filepath.Join(os.TempDir(), "qrscan.log")
		f, err := tea.LogToFile(logPath, "")
		if err != nil {
			log.Printf("opening log file: %v", err)
			return 1
		}
		defer f.Close()
		fmt.Fprintf(os.Stderr, "logging to %s\n", logPath)
	}

	bridge := shell.NewBridge(64, 100*time.Millisecond)
	opts.OnClose = bridge.OnClose
	opts.OnNotice = bridge.OnNotice
	opts.OnState = bridge.OnState

	ctrl, err := qrscan.NewController(capability, engine, bridge, opts)
	if err != nil {
		log.Printf("new controller: %v", err)
		return 1
	}
	// Camera off however the program ends.
	defer ctrl.Unmount()

	p := tea.NewProgram(shell.NewModel(ctx, ctrl), tea.WithAltScreen())
	bridge.Attach(p)
	final, err := p.Run()
	if err != nil {
		log.Printf("running terminal screen: %v", err)
		return 1
	}
	payload := final.(shell.Model).Result()
	if payload == "" {
		return 1
	}
	fmt.Println(payload)
	return 0
}
