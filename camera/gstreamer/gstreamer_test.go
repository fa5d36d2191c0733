package gstreamer

import (
	"reflect"
	"testing"

	qrscan "github.com/vestify/qrscan-go"
	"github.com/vestify/qrscan-go/camera"
)

func TestParseDevices(t *testing.T) {
	const monitor = `Probing devices...


Device found:

	name  : Built-in Audio Analog Stereo
	class : Audio/Source
	caps  : audio/x-raw, format=(string){ S16LE, S32LE }, layout=(string)interleaved, rate=(int)[ 1, 384000 ], channels=(int)[ 1, 32 ];
	properties:
		device.api = alsa

Device found:

	name  : Integrated Camera: Integrated C
	class : Video/Source
	caps  : video/x-raw, format=(string)YUY2, width=(int)1280, height=(int)720, framerate=(fraction)10/1;
	        video/x-raw, format=(string)YUY2, width=(int)640, height=(int)480, framerate=(fraction)30/1;
	        image/jpeg, width=(int)1280, height=(int)720, framerate=(fraction)30/1;
	properties:
		udev-probed = true
		device.path = /dev/video0
	gst-launch-1.0 v4l2src ! ...

Device found:

	name  : Rear Document Camera
	class : Video/Source
	caps  : image/jpeg, width=(int)1920, height=(int)1080, framerate=(fraction)30/1;
	properties:
		device.path = /dev/video2
`

	devs, err := parseDevices([]byte(monitor))
	if err != nil {
		t.Fatalf("parsing gst-device-monitor output: %v", err)
	}
	exp := []camera.Device{
		{
			ID:   "/dev/video0",
			Name: "Integrated Camera: Integrated C",
			Caps: []camera.DeviceCap{
				{Type: "video/x-raw", Width: 640, Height: 480, Framerate: 30},
				{Type: "video/x-raw", Width: 1280, Height: 720, Framerate: 10},
			},
			Facing: qrscan.FacingUser,
		},
	}
	if !reflect.DeepEqual(devs, exp) {
		t.Fatalf("gstreamer devices, got %v, expected %v", devs, exp)
	}
}

func TestRawCaps(t *testing.T) {
	caps := rawCaps([]string{
		"video/x-raw, format=(string)YUY2, width=(int)320, height=(int)240, framerate=(fraction)30/1;",
		"video/x-raw, format=(string)YUY2, width=(int)1920, height=(int)1080, framerate=(fraction)5/1;",
		"video/x-raw, format=(string)YUY2, width=(int)640, height=(int)480, framerate=(fraction)15/1;",
		"video/x-raw, format=(string)YUY2, width=(int)160, height=(int)120, framerate=(fraction)30/1;",
		"video/x-raw, format=(string)YUY2, width=640, height=480, framerate=30/1;",
		"video/x-raw, format=(string)YUY2, width=(int)[ 1, 4096 ], height=(int)[ 1, 2160 ], framerate=(fraction)[ 0/1, 60/1 ];",
		"image/jpeg, width=(int)1280, height=(int)720, framerate=(fraction)30/1;",
	})
	exp := []camera.DeviceCap{
		{Type: "video/x-raw", Width: 640, Height: 480, Framerate: 30},
		{Type: "video/x-raw", Width: 640, Height: 480, Framerate: 15},
		{Type: "video/x-raw", Width: 1920, Height: 1080, Framerate: 5},
		{Type: "video/x-raw", Width: 320, Height: 240, Framerate: 30},
		{Type: "video/x-raw", Width: 160, Height: 120, Framerate: 30},
	}
	if !reflect.DeepEqual(caps, exp) {
		t.Fatalf("raw caps, got %v, expected %v", caps, exp)
	}
}
