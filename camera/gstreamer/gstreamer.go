// Package gstreamer implements a camera recorder with the gstreamer tools.
package gstreamer

import (
	"bufio"
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	qrscan "github.com/vestify/qrscan-go"
	"github.com/vestify/qrscan-go/camera"
)

var errInstallHint = errors.New("executable not found, install with: sudo apt install -y gstreamer1.0-tools gstreamer1.0-plugins-good gstreamer1.0-plugins-base gstreamer1.0-plugins-base-apps")

// RecorderOpts has options for a new gstreamer recorder.
type RecorderOpts struct {
	Verbose  bool
	Interval time.Duration // How often to record an image.
	DeviceID string        // As retrieved from ListDevices. If empty, NewRecorder will use the first device returned by ListDevices.
}

// ListDevices returns a list of devices that can be used for recording.
// ListDevices returns an error if no devices are available.
func ListDevices() ([]camera.Device, error) {
	buf, err := exec.Command("gst-device-monitor-1.0").Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			err = errInstallHint
		}
		return nil, fmt.Errorf("listing devices using gst-device-monitor-1.0: %v", err)
	}
	devs, err := parseDevices(buf)
	if err != nil {
		return nil, err
	}
	if len(devs) == 0 {
		return nil, fmt.Errorf("%w: gst-device-monitor-1.0 found no video sources", qrscan.ErrNoCamera)
	}
	return devs, nil
}

// monitored is one "Device found:" block of gst-device-monitor-1.0.
type monitored struct {
	name  string
	class string
	path  string
	caps  []string
}

// parseDevices returns the video sources with a device path and at least one
// raw mode.
func parseDevices(buf []byte) ([]camera.Device, error) {
	var blocks []*monitored
	var cur *monitored
	inCaps := false
	sc := bufio.NewScanner(bytes.NewReader(buf))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "Device found:" {
			cur = &monitored{}
			blocks = append(blocks, cur)
			inCaps = false
			continue
		}
		if cur == nil || line == "" {
			continue
		}
		if k, v, ok := strings.Cut(line, "="); ok && strings.TrimSpace(k) == "device.path" {
			cur.path = strings.TrimSpace(v)
			continue
		}
		if k, v, ok := strings.Cut(line, ":"); ok {
			v = strings.TrimSpace(v)
			switch strings.TrimSpace(k) {
			case "name":
				cur.name = v
				continue
			case "class":
				cur.class = v
				continue
			case "caps":
				cur.caps = append(cur.caps, v)
				inCaps = true
				continue
			case "properties":
				inCaps = false
				continue
			}
		}
		// Caps continue on the following lines, one structure per line.
		if inCaps {
			cur.caps = append(cur.caps, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("parsing device list: %v", err)
	}

	var devs []camera.Device
	for _, b := range blocks {
		if b.class != "Video/Source" || b.path == "" {
			continue
		}
		caps := rawCaps(b.caps)
		if len(caps) == 0 {
			continue
		}
		devs = append(devs, camera.Device{
			ID:     b.path,
			Name:   b.name,
			Caps:   caps,
			Facing: camera.GuessFacing(b.name),
		})
	}
	return devs, nil
}

// Fields may carry a type, as in "width=(int)640". Only the numerator of a
// framerate is used. Ranges and lists do not match.
var capsFieldRegexp = regexp.MustCompile(`\b(width|height|framerate)=(?:\([a-z]+\))?([0-9]+)`)

// The decoder downscales to about this width, narrower frames lose detail.
const minDecodeWidth = 640

// rawCaps returns the fixed video/x-raw modes of caps, best mode for decoding
// first: the smallest one at least minDecodeWidth wide, higher framerate
// breaking ties. Narrower modes follow, largest first.
func rawCaps(caps []string) []camera.DeviceCap {
	var r []camera.DeviceCap
	for _, s := range caps {
		if !strings.HasPrefix(s, "video/x-raw") {
			continue
		}
		c := camera.DeviceCap{Type: "video/x-raw"}
		for _, m := range capsFieldRegexp.FindAllStringSubmatch(s, -1) {
			n, err := strconv.Atoi(m[2])
			if err != nil {
				continue
			}
			switch m[1] {
			case "width":
				c.Width = n
			case "height":
				c.Height = n
			case "framerate":
				c.Framerate = n
			}
		}
		if c.Width > 0 && c.Height > 0 && c.Framerate > 0 {
			r = append(r, c)
		}
	}

	narrow := func(c camera.DeviceCap) bool { return c.Width < minDecodeWidth }
	area := func(c camera.DeviceCap) int { return c.Width * c.Height }
	slices.SortStableFunc(r, func(a, b camera.DeviceCap) int {
		switch {
		case narrow(a) && narrow(b):
			return cmp.Compare(area(b), area(a))
		case narrow(a):
			return 1
		case narrow(b):
			return -1
		}
		if n := cmp.Compare(area(a), area(b)); n != 0 {
			return n
		}
		return cmp.Compare(b.Framerate, a.Framerate)
	})
	return r
}

// NewRecorder starts gst-launch-1.0 on the device in its preferred raw mode,
// encoding frames to JPEG files that are sent over the channel returned by
// Events.
//
// Callers must call Close to clean up.
func NewRecorder(opts RecorderOpts) (*camera.Tool, error) {
	devices, err := ListDevices()
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	dev := devices[0]
	if opts.DeviceID != "" {
		dev, err = camera.Find(devices, opts.DeviceID)
		if err != nil {
			return nil, err
		}
	}
	if err := camera.CheckAccess(dev.ID); err != nil {
		return nil, err
	}
	mode := dev.Caps[0]

	return camera.StartTool(camera.ToolOpts{
		Verbose: opts.Verbose,
		Name:    "gst-launch-1.0",
		Args: func(dir string) []string {
			return []string{
				"v4l2src", "device=" + dev.ID,
				"!", fmt.Sprintf("video/x-raw,width=%d,height=%d", mode.Width, mode.Height),
				"!", "videoconvert",
				"!", "jpegenc",
				"!", "multifilesink", "location=" + filepath.Join(dir, "frame%05d.jpg"),
			}
		},
		// multifilesink writes every frame in place.
		Op:          fsnotify.Write,
		Interval:    opts.Interval,
		InstallHint: errInstallHint,
	})
}
