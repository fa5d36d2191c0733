// Package camera records frames from cameras through external capture
// tools. The subpackages implement Recorder with gstreamer, ffmpeg and
// imagesnap.
package camera

import (
	"image"
)

// Recorder is a source of images, for example a webcam.
type Recorder interface {
	// Events returns a channel from which Events can be read, each containing an image.
	Events() chan Event

	// Close shuts down the image recorder. No further Events will be sent.
	Close() error
}

// Event is a single image (or error) coming from a Recorder.
type Event struct {
	// If set, an error occurred.
	Err error

	// Image read from recorder. If Err is set, Image is not valid.
	Image image.Image
}
