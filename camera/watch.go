package camera

import (
	"fmt"
	"image/jpeg"
	"log"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchOpts are options for WatchFrames.
type WatchOpts struct {
	Verbose bool

	// Dir is the directory the capture tool writes JPEG frames to.
	Dir string

	// Op is the file operation that signals a complete frame. Tools that
	// write in place signal with fsnotify.Write, tools that rename finished
	// files into place with fsnotify.Create.
	Op fsnotify.Op

	// Frames arriving faster than Interval are deleted without decoding.
	// Zero keeps every frame.
	Interval time.Duration
}

// FrameWatcher turns JPEG files appearing in a directory into Events.
type FrameWatcher struct {
	events  chan Event
	watcher *fsnotify.Watcher
}

// WatchFrames starts watching opts.Dir. Frames are sent on Events without
// blocking: while nobody is receiving, frames are dropped. Every frame file is
// removed after reading.
//
// Callers must call Close to clean up.
func WatchFrames(opts WatchOpts) (*FrameWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("new file change watcher: %v", err)
	}
	w := &FrameWatcher{
		events:  make(chan Event),
		watcher: watcher,
	}

	logf := func(format string, args ...interface{}) {
		if opts.Verbose {
			log.Printf(format, args...)
		}
	}

	go func() {
		var last time.Time
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&opts.Op == 0 || !strings.HasSuffix(ev.Name, ".jpg") {
					continue
				}
				now := time.Now()
				if now.Sub(last) < opts.Interval*9/10 {
					if err := os.Remove(ev.Name); err != nil {
						logf("removing skipped frame %q: %v", ev.Name, err)
					}
					continue
				}
				f, err := os.Open(ev.Name)
				if err != nil {
					logf("open written file %q: %v", ev.Name, err)
					continue
				}
				img, err := jpeg.Decode(f)
				f.Close()
				if err != nil {
					logf("decoding jpeg %q: %v (may be partially written)", ev.Name, err)
					continue
				}
				if err := os.Remove(ev.Name); err != nil {
					logf("removing frame %s: %v", ev.Name, err)
				}
				select {
				case w.events <- Event{Image: img}:
					last = now
				default:
					logf("dropping frame, decoder still busy")
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				select {
				case w.events <- Event{Err: fmt.Errorf("watching for changes: %v", err)}:
				default:
					logf("watching for changes: %v", err)
				}
			}
		}
	}()

	if err := watcher.Add(opts.Dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("registering file change watcher for %s: %v", opts.Dir, err)
	}
	return w, nil
}

// Events returns the channel frames are sent on.
func (w *FrameWatcher) Events() chan Event {
	return w.events
}

// Close stops watching. No further Events are sent.
func (w *FrameWatcher) Close() error {
	return w.watcher.Close()
}
