package qrscan

import (
	"context"
	"fmt"
	"image"
	"io"
)

// Facing is the requested orientation of a camera.
type Facing string

const (
	// FacingAny accepts whatever camera is available.
	FacingAny Facing = ""

	// FacingEnvironment is a rear camera, pointing away from the user.
	FacingEnvironment Facing = "environment"

	// FacingUser is a front camera, pointing at the user.
	FacingUser Facing = "user"
)

// ParseFacing parses the names accepted on command lines and in config files.
func ParseFacing(s string) (Facing, error) {
	switch s {
	case "", "any":
		return FacingAny, nil
	case "environment", "back", "rear":
		return FacingEnvironment, nil
	case "user", "front":
		return FacingUser, nil
	}
	return FacingAny, &FacingError{s}
}

// FacingError is returned by ParseFacing for unknown names.
type FacingError struct {
	Name string
}

func (e *FacingError) Error() string {
	return fmt.Sprintf("unknown camera facing %q, need one of: any, environment, user", e.Name)
}

// Frame is a single image (or error) from a live stream.
type Frame struct {
	// If set, reading the frame failed. Image is not valid.
	Err error

	Image image.Image
}

// FrameSource is a live feed of frames, as rendered to a Sink. The channel is
// closed when the underlying stream is released.
type FrameSource interface {
	Frames() <-chan Frame
}

// Sink renders frames of an attached stream, for example a preview window.
// Render is called from the stream's goroutine and must not block for long.
type Sink interface {
	Render(img image.Image)
}

// Stream is an acquired camera stream. Its contents are private to the
// MediaCapability that returned it.
type Stream interface {
	DeviceID() string
}

// MediaCapability gives access to cameras and their torch.
type MediaCapability interface {
	// Acquire opens a camera, preferring the given facing and falling back
	// to any available camera. Acquire returns ErrPermissionDenied or
	// ErrNoCamera (possibly wrapped) when no camera can be used. When ctx is
	// canceled, Acquire should give up and release what it opened.
	Acquire(ctx context.Context, facing Facing) (Stream, error)

	// Attach starts rendering the stream to sink (which may be nil) and
	// returns the frame source the sink is fed from.
	Attach(stream Stream, sink Sink) (FrameSource, error)

	// Release stops the stream and frees the camera. Releasing a stream
	// twice is not an error.
	Release(stream Stream) error

	// QueryTorch reports whether the stream's camera has a controllable torch.
	QueryTorch(stream Stream) bool

	// SetTorch switches the torch and returns the state the device reports
	// afterwards, which can differ from the requested state.
	SetTorch(stream Stream, on bool) (bool, error)
}

// DecoderHandle identifies a live decode loop. Done is closed when the loop
// has exited.
type DecoderHandle interface {
	Done() <-chan struct{}
}

// DecodeEngine recognizes QR codes in live frames and in still images.
type DecodeEngine interface {
	// AttachLiveDecoder starts a decode loop over frames. onFailure is
	// called for frames without a readable code. onSuccess is called at most
	// once, after the loop stopped consuming frames. Both are called from the
	// loop's own goroutine, never from within AttachLiveDecoder.
	AttachLiveDecoder(frames FrameSource, onSuccess func(payload string), onFailure func(err error)) (DecoderHandle, error)

	// Detach stops a decode loop. Detach does not wait for the loop to exit.
	Detach(h DecoderHandle)

	// DecodeStatic decodes a still image, such as a photo picked by the user.
	// DecodeStatic returns an error matching ErrNotFound if the image has no
	// readable code.
	DecodeStatic(ctx context.Context, r io.Reader) (string, error)
}
