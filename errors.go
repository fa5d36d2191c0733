package qrscan

import (
	"errors"
)

// Errors returned by the controller and by capability implementations. Use
// errors.Is, implementations wrap these with details.
var (
	ErrPermissionDenied = errors.New("camera permission denied")
	ErrNoCamera         = errors.New("no camera available")
	ErrTorchUnsupported = errors.New("torch not supported by camera")
	ErrNotFound         = errors.New("no QR code found")
	ErrBusy             = errors.New("scanner busy")
	ErrNotRunning       = errors.New("scanner not running")
	ErrStopped          = errors.New("scanner stopped while starting")
	ErrUnmounted        = errors.New("scanner unmounted")
)

// NoticeKind classifies a one-shot notice for the user.
type NoticeKind int

const (
	// NoticeCameraUnavailable is sent once when a start fails because the
	// camera is blocked or missing.
	NoticeCameraUnavailable NoticeKind = iota + 1

	// NoticeTorch is sent when the torch could not be switched.
	NoticeTorch

	// NoticeNotFound is sent when a still image had no readable code.
	NoticeNotFound
)

// Notice is a transient, non-fatal message to show to the user. Notices never
// change the controller's phase.
type Notice struct {
	Kind NoticeKind
	Err  error
}

// String returns a message suitable for showing to the user.
func (n Notice) String() string {
	switch n.Kind {
	case NoticeCameraUnavailable:
		if errors.Is(n.Err, ErrPermissionDenied) {
			return "Camera is blocked. Allow camera access and try again."
		}
		return "Camera is not accessible. Connect a camera and try again."
	case NoticeTorch:
		if errors.Is(n.Err, ErrTorchUnsupported) {
			return "Flashlight is not available on this camera."
		}
		return "Could not switch the flashlight: " + n.Err.Error()
	case NoticeNotFound:
		return "No QR code found in the selected image."
	}
	if n.Err != nil {
		return n.Err.Error()
	}
	return "unknown notice"
}
