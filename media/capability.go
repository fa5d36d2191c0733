// Package media implements qrscan.MediaCapability on top of the camera
// recorders.
//
// A stream owns one running capture tool. Attaching starts a goroutine that
// renders every frame to the sink and hands the newest frame to the decoder.
// Releasing stops the goroutine, closes the frame channel and stops the tool.
package media

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	qrscan "github.com/vestify/qrscan-go"
	"github.com/vestify/qrscan-go/camera"
)

// Backend is a camera recorder implementation, such as gstreamer.
type Backend struct {
	Name        string
	ListDevices func() ([]camera.Device, error)
	NewRecorder func(deviceID string) (camera.Recorder, error)
}

// TorchControl switches the LED of a camera. Implemented by *v4l2.Torch.
type TorchControl interface {
	Capable(deviceID string) bool
	Set(deviceID string, on bool) (bool, error)
}

// CapabilityOpts are options for NewCapability.
type CapabilityOpts struct {
	Verbose bool

	// Torch may be nil, in which case no camera has a torch.
	Torch TorchControl

	// DeviceID, if set, is always used instead of selecting by facing.
	DeviceID string

	// How long Acquire waits for the camera to deliver its first frame.
	// Default 10s.
	FirstFrameTimeout time.Duration
}

// Capability opens camera streams with a Backend.
type Capability struct {
	backend Backend
	opts    CapabilityOpts
}

// Check that Capability implements interface MediaCapability.
var _ qrscan.MediaCapability = (*Capability)(nil)

var errReleased = errors.New("stream released")

// NewCapability returns a capability for backend.
func NewCapability(backend Backend, opts *CapabilityOpts) (*Capability, error) {
	if backend.ListDevices == nil || backend.NewRecorder == nil {
		return nil, fmt.Errorf("backend %q is incomplete", backend.Name)
	}
	c := &Capability{backend: backend}
	if opts != nil {
		c.opts = *opts
	}
	if c.opts.FirstFrameTimeout <= 0 {
		c.opts.FirstFrameTimeout = 10 * time.Second
	}
	return c, nil
}

func (c *Capability) logf(format string, args ...interface{}) {
	if c.opts.Verbose {
		log.Printf(format, args...)
	}
}

// Acquire selects a camera, starts recording and waits for the first frame,
// so a device that opens but never delivers fails here and not later.
func (c *Capability) Acquire(ctx context.Context, facing qrscan.Facing) (qrscan.Stream, error) {
	devices, err := c.backend.ListDevices()
	if err != nil {
		return nil, fmt.Errorf("listing cameras with %s: %w", c.backend.Name, err)
	}
	var dev camera.Device
	if c.opts.DeviceID != "" {
		dev, err = camera.Find(devices, c.opts.DeviceID)
	} else {
		dev, err = camera.Select(devices, facing)
	}
	if err != nil {
		return nil, err
	}
	c.logf("acquiring camera %s (%s), facing %q", dev.ID, dev.Name, dev.Facing)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, err := c.backend.NewRecorder(dev.ID)
	if err != nil {
		return nil, fmt.Errorf("opening camera %s: %w", dev.ID, err)
	}

	t := time.NewTimer(c.opts.FirstFrameTimeout)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			rec.Close()
			return nil, ctx.Err()
		case <-t.C:
			rec.Close()
			return nil, fmt.Errorf("%w: camera %s delivered no frame within %s", qrscan.ErrNoCamera, dev.ID, c.opts.FirstFrameTimeout)
		case ev := <-rec.Events():
			if ev.Err != nil {
				c.logf("waiting for first frame: %v", ev.Err)
				continue
			}
			return newStream(dev.ID, rec, ev.Image, c.opts.Verbose), nil
		}
	}
}

func (c *Capability) stream(s qrscan.Stream) (*stream, error) {
	st, ok := s.(*stream)
	if !ok || st == nil {
		return nil, fmt.Errorf("stream %v not acquired from this capability", s)
	}
	return st, nil
}

// Attach starts delivering frames to sink and to the returned FrameSource.
// A stream can be attached once.
func (c *Capability) Attach(s qrscan.Stream, sink qrscan.Sink) (qrscan.FrameSource, error) {
	st, err := c.stream(s)
	if err != nil {
		return nil, err
	}
	if err := st.attach(sink); err != nil {
		return nil, err
	}
	return st, nil
}

// Release stops the capture tool. Releasing twice is a no-op.
func (c *Capability) Release(s qrscan.Stream) error {
	st, err := c.stream(s)
	if err != nil {
		return err
	}
	return st.release()
}

// QueryTorch reports whether the stream's camera has a torch.
func (c *Capability) QueryTorch(s qrscan.Stream) bool {
	st, err := c.stream(s)
	if err != nil || c.opts.Torch == nil || st.isReleased() {
		return false
	}
	return c.opts.Torch.Capable(st.DeviceID())
}

// SetTorch switches the torch of the stream's camera. A released stream can
// only switch it off, the LED belongs to the device and outlives the stream.
func (c *Capability) SetTorch(s qrscan.Stream, on bool) (bool, error) {
	st, err := c.stream(s)
	if err != nil {
		return false, err
	}
	if c.opts.Torch == nil {
		return false, qrscan.ErrTorchUnsupported
	}
	if on && st.isReleased() {
		return false, fmt.Errorf("switching torch: %w", errReleased)
	}
	return c.opts.Torch.Set(st.DeviceID(), on)
}
