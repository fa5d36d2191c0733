// Package ffmpeg implements a camera recorder with ffmpeg reading a V4L2
// device.
package ffmpeg

import (
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	qrscan "github.com/vestify/qrscan-go"
	"github.com/vestify/qrscan-go/camera"
)

var errInstallHint = errors.New("executable not found, install with: sudo apt install -y ffmpeg v4l-utils")

// RecorderOpts has options for a new ffmpeg recorder.
type RecorderOpts struct {
	Verbose  bool
	Interval time.Duration // How often to record an image.
	DeviceID string        // As retrieved from ListDevices. If empty, NewRecorder will use the first device returned by ListDevices.
}

// ListDevices returns the V4L2 capture nodes listed by v4l2-ctl.
// ListDevices returns an error if no devices are available.
func ListDevices() ([]camera.Device, error) {
	buf, err := exec.Command("v4l2-ctl", "--list-devices").Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			err = errInstallHint
		}
		return nil, fmt.Errorf("listing devices using v4l2-ctl: %v", err)
	}
	devices := parseDevices(string(buf))
	if len(devices) == 0 {
		return nil, fmt.Errorf("%w: v4l2-ctl listed no devices", qrscan.ErrNoCamera)
	}
	return devices, nil
}

// parseDevices parses the output of "v4l2-ctl --list-devices": a card line
// ending in its bus, followed by the card's tab-indented device nodes. Only
// /dev/video nodes can record. The Raspberry Pi's codec and ISP cards are
// skipped.
func parseDevices(s string) []camera.Device {
	devices := []camera.Device{}
	card := ""
	for _, line := range strings.Split(s, "\n") {
		node, indented := strings.CutPrefix(line, "\t")
		if !indented {
			card = cardName(line)
			continue
		}
		node = strings.TrimSpace(node)
		if card == "" || strings.HasPrefix(card, "bcm2835-") || !strings.HasPrefix(node, "/dev/video") {
			continue
		}
		devices = append(devices, camera.Device{
			Name:   fmt.Sprintf("%s (%s)", card, node),
			ID:     node,
			Facing: camera.GuessFacing(card),
		})
	}
	return devices
}

// cardName strips the colon and bus from a card line such as
// "USB Camera (usb-0000:00:14.0-2):".
func cardName(line string) string {
	s := strings.TrimSuffix(strings.TrimSpace(line), ":")
	if i := strings.LastIndex(s, " ("); i > 0 && strings.HasSuffix(s, ")") {
		s = s[:i]
	}
	return s
}

// NewRecorder starts ffmpeg copying the device's MJPEG stream into JPEG files
// that are sent over the channel returned by Events.
//
// Callers must call Close to clean up.
func NewRecorder(opts RecorderOpts) (*camera.Tool, error) {
	if opts.Interval <= 0 {
		opts.Interval = time.Second / 10
	}
	if opts.DeviceID == "" {
		devs, err := ListDevices()
		if err != nil {
			return nil, fmt.Errorf("listing devices: %w", err)
		}
		opts.DeviceID = devs[0].ID
	}
	if err := camera.CheckAccess(opts.DeviceID); err != nil {
		return nil, err
	}

	return camera.StartTool(camera.ToolOpts{
		Verbose: opts.Verbose,
		Name:    "ffmpeg",
		Args: func(dir string) []string {
			return []string{
				"-framerate", strconv.Itoa(int(time.Second / opts.Interval)),
				"-video_size", "640x480",
				"-c:v", "mjpeg",
				"-i", opts.DeviceID,
				"-f", "image2",
				"-c:v", "copy",
				"-bsf:v", "mjpeg2jpeg",
				"-qscale:v", "2",
				filepath.Join(dir, "frame%d.jpg"),
			}
		},
		Op:          fsnotify.Write,
		Interval:    opts.Interval,
		InstallHint: errInstallHint,
	})
}
