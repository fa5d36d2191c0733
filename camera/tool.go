package camera

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	qrscan "github.com/vestify/qrscan-go"
)

// ToolOpts describe an external capture tool that writes JPEG frames into a
// directory.
type ToolOpts struct {
	Verbose bool

	// Executable to run, looked up in PATH.
	Name string

	// Args returns the command line arguments, given the directory frames
	// must be written to. The tool also runs in that directory.
	Args func(dir string) []string

	// Op signals a complete frame, see WatchOpts.
	Op fsnotify.Op

	// Frames arriving faster than Interval are dropped. Zero keeps all.
	Interval time.Duration

	// InstallHint, if set, is returned instead of exec.ErrNotFound.
	InstallHint error
}

// Tool is a running capture tool. It implements Recorder.
type Tool struct {
	name   string
	dir    string
	cancel context.CancelFunc
	exited chan struct{}
	frames *FrameWatcher
}

// Check that Tool implements interface Recorder.
var _ Recorder = (*Tool)(nil)

// StartTool makes a frame directory, starts watching it and then starts the
// tool, so the first frames are not missed.
//
// Callers must call Close to clean up.
func StartTool(opts ToolOpts) (tool *Tool, rerr error) {
	t := &Tool{name: opts.Name}

	// Ensure cleanup in case of failure.
	defer func() {
		if rerr != nil {
			t.Close()
		}
	}()

	dir, err := qrscan.TempDir()
	if err != nil {
		return nil, fmt.Errorf("making temp dir: %v", err)
	}
	t.dir = dir

	t.frames, err = WatchFrames(WatchOpts{
		Verbose:  opts.Verbose,
		Dir:      dir,
		Op:       opts.Op,
		Interval: opts.Interval,
	})
	if err != nil {
		return nil, err
	}

	args := opts.Args(dir)
	if opts.Verbose {
		log.Printf("starting %s %s, frames in %s", opts.Name, strings.Join(args, " "), dir)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	cmd := exec.CommandContext(ctx, opts.Name, args...)
	cmd.Dir = dir
	if opts.Verbose {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) && opts.InstallHint != nil {
			err = opts.InstallHint
		}
		return nil, fmt.Errorf("starting %s: %v", opts.Name, err)
	}
	t.exited = make(chan struct{})
	go func() {
		err := cmd.Wait()
		if opts.Verbose && ctx.Err() == nil {
			log.Printf("%s exited: %v", opts.Name, err)
		}
		close(t.exited)
	}()
	return t, nil
}

// Events returns a channel on which Events can be received.
func (t *Tool) Events() chan Event {
	return t.frames.Events()
}

// Dir returns the directory frames are written to.
func (t *Tool) Dir() string {
	return t.dir
}

// Close kills the tool, waits for it to exit and removes the frame
// directory. The camera is free again when Close returns.
func (t *Tool) Close() error {
	if t.cancel != nil {
		t.cancel()
	}
	if t.exited != nil {
		<-t.exited
	}
	if t.frames != nil {
		t.frames.Close()
	}
	if t.dir != "" {
		os.RemoveAll(t.dir)
	}
	return nil
}
