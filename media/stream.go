package media

import (
	"fmt"
	"image"
	"log"
	"sync"

	qrscan "github.com/vestify/qrscan-go"
	"github.com/vestify/qrscan-go/camera"
)

type stream struct {
	deviceID string
	rec      camera.Recorder
	verbose  bool

	frames chan qrscan.Frame
	stop   chan struct{}
	done   chan struct{}

	mu       sync.Mutex
	first    image.Image
	sink     qrscan.Sink
	attached bool
	released bool
}

func newStream(deviceID string, rec camera.Recorder, first image.Image, verbose bool) *stream {
	return &stream{
		deviceID: deviceID,
		rec:      rec,
		verbose:  verbose,
		first:    first,
		frames:   make(chan qrscan.Frame, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (s *stream) DeviceID() string {
	return s.deviceID
}

// Frames returns the newest frame not yet taken. Closed on release.
func (s *stream) Frames() <-chan qrscan.Frame {
	return s.frames
}

func (s *stream) isReleased() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

func (s *stream) attach(sink qrscan.Sink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return fmt.Errorf("attaching: %w", errReleased)
	}
	if s.attached {
		return fmt.Errorf("stream of %s already attached", s.deviceID)
	}
	s.attached = true
	s.sink = sink
	go s.pump()
	return nil
}

func (s *stream) pump() {
	defer close(s.done)
	defer close(s.frames)

	s.mu.Lock()
	first := s.first
	s.first = nil
	s.mu.Unlock()
	if first != nil {
		s.deliver(qrscan.Frame{Image: first})
	}

	for {
		select {
		case <-s.stop:
			return
		case ev := <-s.rec.Events():
			s.deliver(qrscan.Frame{Err: ev.Err, Image: ev.Image})
		}
	}
}

// deliver renders f and replaces any frame the decoder has not taken yet.
func (s *stream) deliver(f qrscan.Frame) {
	if f.Err == nil && s.sink != nil {
		s.sink.Render(f.Image)
	}
	select {
	case s.frames <- f:
		return
	default:
	}
	select {
	case <-s.frames:
		if s.verbose {
			log.Printf("dropping frame, decoder still busy")
		}
	default:
	}
	select {
	case s.frames <- f:
	default:
	}
}

func (s *stream) release() error {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return nil
	}
	s.released = true
	attached := s.attached
	s.mu.Unlock()

	close(s.stop)
	if attached {
		<-s.done
	} else {
		close(s.frames)
	}
	if err := s.rec.Close(); err != nil {
		return fmt.Errorf("closing recorder for %s: %v", s.deviceID, err)
	}
	return nil
}
