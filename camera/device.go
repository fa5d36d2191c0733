package camera

import (
	"fmt"
	"strings"

	qrscan "github.com/vestify/qrscan-go"
)

// DeviceCap describes a capability of a device.
type DeviceCap struct {
	Type      string // "video/x-raw" or "image/jpeg"
	Width     int
	Height    int
	Framerate int
}

// Device is a camera device capable of recording images.
type Device struct {
	Name string
	ID   string
	Caps []DeviceCap

	// Orientation guessed from the device name. FacingAny if unknown.
	Facing qrscan.Facing
}

var (
	environmentWords = []string{"back", "rear", "environment", "world"}
	userWords        = []string{"front", "user", "facetime", "integrated", "built-in", "selfie"}
)

// GuessFacing guesses the orientation of a camera from its name. Laptop and
// display cameras face the user; phones and tablets label their rear camera.
func GuessFacing(name string) qrscan.Facing {
	s := strings.ToLower(name)
	for _, w := range environmentWords {
		if strings.Contains(s, w) {
			return qrscan.FacingEnvironment
		}
	}
	for _, w := range userWords {
		if strings.Contains(s, w) {
			return qrscan.FacingUser
		}
	}
	return qrscan.FacingAny
}

// Select picks the device to record from. Devices facing the preferred way
// come first, then devices with unknown facing, then any device. Select
// returns an error matching qrscan.ErrNoCamera for an empty list.
func Select(devices []Device, facing qrscan.Facing) (Device, error) {
	if len(devices) == 0 {
		return Device{}, fmt.Errorf("%w: no devices found", qrscan.ErrNoCamera)
	}
	if facing == qrscan.FacingAny {
		return devices[0], nil
	}
	for _, d := range devices {
		if d.Facing == facing {
			return d, nil
		}
	}
	for _, d := range devices {
		if d.Facing == qrscan.FacingAny {
			return d, nil
		}
	}
	return devices[0], nil
}

// Find returns the device with the given ID.
func Find(devices []Device, id string) (Device, error) {
	for _, d := range devices {
		if d.ID == id {
			return d, nil
		}
	}
	return Device{}, fmt.Errorf("%w: device %q not found", qrscan.ErrNoCamera, id)
}
