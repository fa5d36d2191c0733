// Package imagesnap implements an image recorder with the imagesnap command
// for macOS.
package imagesnap

import (
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	qrscan "github.com/vestify/qrscan-go"
	"github.com/vestify/qrscan-go/camera"
)

// ListDevices returns all image capturing devices available to imagesnap.
// ListDevices returns an error if no devices are available.
func ListDevices() ([]camera.Device, error) {
	buf, err := exec.Command("imagesnap", "-l").Output()
	if err != nil {
		return nil, fmt.Errorf("listing devices with imagesnap -l: %v", err)
	}
	return parseDevices(string(buf))
}

// parseDevices understands both listing formats of imagesnap -l: newer
// releases print "=> FaceTime HD Camera", older ones print
// "<AVCaptureDALDevice: 0x7fa2c7852fd0 [FaceTime HD Camera][0x8020000005ac8514]>".
func parseDevices(s string) ([]camera.Device, error) {
	devs := []camera.Device{}
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		name, ok := strings.CutPrefix(line, "=> ")
		if !ok && strings.HasPrefix(line, "<") {
			_, rest, found := strings.Cut(line, "[")
			name, _, ok = strings.Cut(rest, "]")
			ok = found && ok
		}
		if !ok || name == "" {
			continue
		}
		devs = append(devs, camera.Device{Name: name, ID: name, Facing: camera.GuessFacing(name)})
	}
	if len(devs) == 0 {
		return nil, fmt.Errorf("%w: imagesnap listed no devices", qrscan.ErrNoCamera)
	}
	return devs, nil
}

// RecorderOpts has options for a new imagesnap recorder.
type RecorderOpts struct {
	Verbose  bool
	Interval time.Duration // How often to record an image.
	DeviceID string        // As returned by ListDevices. If empty, NewRecorder will use the first device returned by ListDevices.
}

// NewRecorder starts imagesnap taking a snapshot every opts.Interval. The
// snapshots are sent on the channel returned by Events.
//
// Callers must call Close to clean up.
func NewRecorder(opts RecorderOpts) (*camera.Tool, error) {
	if opts.Interval <= 0 {
		opts.Interval = time.Second / 5
	}
	if opts.DeviceID == "" {
		devs, err := ListDevices()
		if err != nil {
			return nil, fmt.Errorf("listing devices: %w", err)
		}
		opts.DeviceID = devs[0].ID
	}

	return camera.StartTool(camera.ToolOpts{
		Verbose: opts.Verbose,
		Name:    "imagesnap",
		// Snapshots are written to the working directory.
		Args: func(dir string) []string {
			return []string{"-d", opts.DeviceID, "-t", fmt.Sprintf("%.2f", opts.Interval.Seconds())}
		},
		// Imagesnap creates each snapshot in one go, it does not rewrite files.
		Op: fsnotify.Create,
	})
}
