// Package qrscan scans QR codes from a camera. A Controller owns the
// lifecycle of one scan: acquiring the camera, running a decode loop over its
// frames, the torch, and releasing everything again when the scan completes,
// the user closes the scanner or the host goes away.
//
// Cameras and decoding are provided through the MediaCapability and
// DecodeEngine interfaces. Package media implements a MediaCapability on top
// of the capture backends under package camera, package decode implements a
// DecodeEngine.
package qrscan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/google/uuid"
)

// ControllerOpts are options for a Controller. All fields are optional.
type ControllerOpts struct {
	Verbose bool // Print verbose logging.

	// Camera orientation to ask for. If empty, FacingEnvironment is used.
	Facing Facing

	// Lifetime of the hosting view. When Host is done, the controller is
	// unmounted, releasing the camera.
	Host context.Context

	// OnClose receives the outcome of a scan: the decoded payload, or an
	// empty string if the scanner was closed without a result. OnClose is
	// called exactly once per lifecycle, after the camera was released.
	OnClose func(result string)

	// OnState is called after every state change.
	OnState func(State)

	// OnNotice receives one-shot messages for the user.
	OnNotice func(Notice)
}

// Controller runs scan sessions. A lifecycle starts with Start and ends with
// exactly one call of OnClose. Methods are safe for concurrent use.
type Controller struct {
	media  MediaCapability
	engine DecodeEngine
	sink   Sink
	opts   ControllerOpts

	mu        sync.Mutex
	phase     Phase
	reason    error
	seq       uint64
	gen       uint64   // Incremented by every start and stop, stale callbacks compare against it.
	open      bool     // Lifecycle started, OnClose not yet called.
	starting  bool     // A Start is between acquisition and publishing its session.
	result    string   // Pending OnClose result while stopping.
	sess      *session // Only set while Running.
	torching  *session // Session whose torch is being switched.
	torchDone *sync.Cond
	unmounted bool
	cancel    context.CancelFunc // Cancels an in-flight acquisition.
	stopHost  func() bool
}

// session is one acquired camera stream with its decode loop.
type session struct {
	id           string
	stream       Stream
	decoder      DecoderHandle
	torchCapable bool
	torchOn      bool
}

// NewController returns a controller that acquires cameras from media,
// decodes with engine and renders frames to sink. Sink may be nil.
func NewController(media MediaCapability, engine DecodeEngine, sink Sink, opts *ControllerOpts) (*Controller, error) {
	if media == nil {
		return nil, fmt.Errorf("media capability required")
	}
	if engine == nil {
		return nil, fmt.Errorf("decode engine required")
	}

	c := &Controller{
		media:  media,
		engine: engine,
		sink:   sink,
	}
	c.torchDone = sync.NewCond(&c.mu)
	if opts != nil {
		c.opts = *opts
	}
	if c.opts.Facing == FacingAny {
		c.opts.Facing = FacingEnvironment
	}
	if c.opts.Host != nil {
		c.stopHost = context.AfterFunc(c.opts.Host, c.Unmount)
	}
	return c, nil
}

func (c *Controller) logf(format string, args ...interface{}) {
	if c.opts.Verbose {
		log.Printf(format, args...)
	}
}

// State returns a snapshot of the controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// changedLocked records a state change and returns the new state.
func (c *Controller) changedLocked() State {
	c.seq++
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	st := State{Seq: c.seq, Phase: c.phase, Reason: c.reason}
	if c.sess != nil {
		st.SessionID = c.sess.id
		st.TorchCapable = c.sess.torchCapable
		st.TorchOn = c.sess.torchOn
	}
	return st
}

func (c *Controller) emitState(st State) {
	c.logf("scanner %s", st)
	if c.opts.OnState != nil {
		c.opts.OnState(st)
	}
}

func (c *Controller) notify(kind NoticeKind, err error) {
	c.logf("notice: %v", err)
	if c.opts.OnNotice != nil {
		c.opts.OnNotice(Notice{kind, err})
	}
}

// Start acquires a camera, attaches it to the sink and starts decoding. Start
// returns when the scanner is running or the attempt failed.
//
// Start is accepted in phases Idle and Failed. In any other phase it returns
// ErrBusy without side effects. On failure to get a camera the controller
// enters phase Failed, sends one NoticeCameraUnavailable and returns the
// error; it does not retry. If the scanner is stopped while Start is still
// acquiring, whatever was acquired is released and ErrStopped is returned.
// The same happens when ctx is done before a camera was acquired: the
// lifecycle ends as with Stop("").
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.unmounted {
		c.mu.Unlock()
		return ErrUnmounted
	}
	if c.phase != Idle && c.phase != Failed {
		phase := c.phase
		c.mu.Unlock()
		c.logf("ignoring start, scanner is %s", phase)
		return ErrBusy
	}
	c.gen++
	gen := c.gen
	actx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.open = true
	c.starting = true
	c.phase = Starting
	c.reason = nil
	st := c.changedLocked()
	c.mu.Unlock()
	c.emitState(st)

	s, err := c.acquire(actx, gen)
	cancel()

	c.mu.Lock()
	c.starting = false
	c.cancel = nil
	if c.gen != gen {
		// Stopped while acquiring. Stop left the rest of the teardown to us.
		c.mu.Unlock()
		if s != nil {
			c.release(s)
		}
		c.finishStop()
		return ErrStopped
	}
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		// The caller gave up, as on an interrupt. Not a camera failure.
		c.mu.Unlock()
		c.stop(gen, "")
		return ErrStopped
	}
	if err != nil {
		c.phase = Failed
		c.reason = err
		st = c.changedLocked()
		c.mu.Unlock()
		c.emitState(st)
		c.notify(NoticeCameraUnavailable, err)
		return err
	}
	c.sess = s
	c.phase = Running
	st = c.changedLocked()
	c.mu.Unlock()
	c.emitState(st)
	return nil
}

// stale reports whether the attempt with generation gen was stopped.
func (c *Controller) stale(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen != gen
}

// acquire builds a session. On error, nothing acquired is left open.
func (c *Controller) acquire(ctx context.Context, gen uint64) (*session, error) {
	stream, err := c.media.Acquire(ctx, c.opts.Facing)
	if err != nil {
		return nil, err
	}
	s := &session{id: uuid.NewString(), stream: stream}
	c.logf("session %s, acquired camera %s", s.id, stream.DeviceID())

	// Teardown may have happened while we waited for the camera. Never
	// attach a stream nobody is looking at.
	if c.stale(gen) {
		c.release(s)
		return nil, ErrStopped
	}

	frames, err := c.media.Attach(stream, c.sink)
	if err != nil {
		c.release(s)
		return nil, fmt.Errorf("attaching camera: %w", err)
	}
	if c.stale(gen) {
		c.release(s)
		return nil, ErrStopped
	}

	h, err := c.engine.AttachLiveDecoder(frames,
		func(payload string) { c.frameDecoded(gen, payload) },
		func(err error) { c.frameDecodeFailed(gen, err) },
	)
	if err != nil {
		c.release(s)
		return nil, fmt.Errorf("starting decoder: %w", err)
	}
	s.decoder = h

	s.torchCapable = c.media.QueryTorch(stream)
	return s, nil
}

// release frees all resources of a session. It is the only place streams
// are released.
func (c *Controller) release(s *session) {
	if s.decoder != nil {
		c.engine.Detach(s.decoder)
	}

	// A toggle in flight must land before the torch state is read.
	c.mu.Lock()
	for c.torching == s {
		c.torchDone.Wait()
	}
	on := s.torchOn
	s.torchOn = false
	c.mu.Unlock()
	if on {
		if _, err := c.media.SetTorch(s.stream, false); err != nil {
			c.logf("session %s, turning torch off: %v", s.id, err)
		}
	}
	if err := c.media.Release(s.stream); err != nil {
		c.logf("session %s, releasing camera: %v", s.id, err)
	}
	c.logf("session %s, camera released", s.id)
}

// Stop ends the lifecycle: it stops decoding, switches the torch off,
// releases the camera and calls OnClose with result. Stop can be called in
// any phase and from any goroutine; only the first call of a lifecycle has an
// effect. If a Start is still acquiring, that Start completes the teardown and
// OnClose is called once it has released the camera.
func (c *Controller) Stop(result string) {
	c.stop(0, result)
}

// stop stops the lifecycle, but only if it is still at generation gen. Zero
// matches any generation.
func (c *Controller) stop(gen uint64, result string) {
	c.mu.Lock()
	if !c.open || (gen != 0 && gen != c.gen) {
		c.mu.Unlock()
		return
	}
	c.open = false
	c.gen++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	s := c.sess
	c.sess = nil
	c.phase = Stopping
	c.reason = nil
	c.result = result
	starting := c.starting
	st := c.changedLocked()
	c.mu.Unlock()
	c.emitState(st)

	if s != nil {
		c.release(s)
	}
	if starting {
		return
	}
	c.finishStop()
}

func (c *Controller) finishStop() {
	c.mu.Lock()
	c.phase = Idle
	result := c.result
	c.result = ""
	st := c.changedLocked()
	c.mu.Unlock()
	c.emitState(st)

	if c.opts.OnClose != nil {
		c.opts.OnClose(result)
	}
}

// Unmount is called when the hosting view goes away. It stops the scanner
// like Stop("") and rejects later starts with ErrUnmounted.
func (c *Controller) Unmount() {
	c.mu.Lock()
	c.unmounted = true
	stopHost := c.stopHost
	c.stopHost = nil
	c.mu.Unlock()

	if stopHost != nil {
		stopHost()
	}
	c.stop(0, "")
}

func (c *Controller) frameDecoded(gen uint64, payload string) {
	c.logf("decoded %q", payload)
	c.stop(gen, payload)
}

func (c *Controller) frameDecodeFailed(gen uint64, err error) {
	// Frames without a code are the normal case while the user aims.
	if c.opts.Verbose && !c.stale(gen) {
		log.Printf("frame: %v", err)
	}
}

// ToggleFlash inverts the torch of the running camera. The new state is what
// the device reports, not what was requested. If the camera has no torch or
// refuses, the state is left unchanged, a NoticeTorch is sent and the error
// returned.
func (c *Controller) ToggleFlash() error {
	c.mu.Lock()
	s := c.sess
	if c.phase != Running || s == nil {
		c.mu.Unlock()
		return ErrNotRunning
	}
	if !s.torchCapable {
		c.mu.Unlock()
		c.notify(NoticeTorch, ErrTorchUnsupported)
		return ErrTorchUnsupported
	}
	if c.torching != nil {
		c.mu.Unlock()
		return ErrBusy
	}
	c.torching = s
	want := !s.torchOn
	c.mu.Unlock()

	actual, err := c.media.SetTorch(s.stream, want)

	c.mu.Lock()
	c.torching = nil
	if err == nil {
		// Also when the session ended meanwhile: its release waits for
		// this and switches the torch off.
		s.torchOn = actual
	}
	c.torchDone.Broadcast()
	running := c.sess == s
	var st State
	if running && err == nil {
		st = c.changedLocked()
	}
	c.mu.Unlock()

	switch {
	case !running:
		return ErrNotRunning
	case err != nil:
		err = fmt.Errorf("switching torch: %w", err)
		c.notify(NoticeTorch, err)
		return err
	}
	c.emitState(st)
	return nil
}

// ScanStaticImage decodes a still image, independent of the camera. A found
// payload completes the lifecycle like a live decode: through Stop when a
// lifecycle is open, otherwise with a single direct OnClose. Without a code,
// a NoticeNotFound is sent and the phase is left alone.
func (c *Controller) ScanStaticImage(ctx context.Context, r io.Reader) (string, error) {
	c.mu.Lock()
	unmounted := c.unmounted
	c.mu.Unlock()
	if unmounted {
		return "", ErrUnmounted
	}

	payload, err := c.engine.DecodeStatic(ctx, r)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			err = fmt.Errorf("scanning image: %w", err)
		}
		c.notify(NoticeNotFound, err)
		return "", err
	}

	c.mu.Lock()
	open := c.open
	c.mu.Unlock()
	if open {
		c.stop(0, payload)
	} else if c.opts.OnClose != nil {
		c.opts.OnClose(payload)
	}
	return payload, nil
}
