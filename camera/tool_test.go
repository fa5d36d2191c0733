package camera_test

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vestify/qrscan-go/camera"
)

func TestStartTool(t *testing.T) {
	src := filepath.Join(t.TempDir(), "snap.jpg")
	f, err := os.Create(src)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := jpeg.Encode(f, image.NewGray(image.Rect(0, 0, 16, 8)), nil); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// A shell standing in for a capture tool, moving one snapshot into place.
	tool, err := camera.StartTool(camera.ToolOpts{
		Name: "sh",
		Args: func(dir string) []string {
			return []string{"-c", fmt.Sprintf("sleep 0.2; mv %q %q; sleep 10", src, filepath.Join(dir, "frame1.jpg"))}
		},
		Op: fsnotify.Create,
	})
	if err != nil {
		t.Fatalf("starting tool: %v", err)
	}

	select {
	case ev := <-tool.Events():
		if ev.Err != nil {
			t.Fatalf("event error: %v", ev.Err)
		}
		if b := ev.Image.Bounds(); b.Dx() != 16 || b.Dy() != 8 {
			t.Fatalf("frame size, got %v, expected 16x8", b)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no frame within 5s")
	}

	dir := tool.Dir()
	start := time.Now()
	if err := tool.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if d := time.Since(start); d > 5*time.Second {
		t.Fatalf("close took %s, tool not killed", d)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("frame dir not removed after close: %v", err)
	}
}

func TestStartToolInstallHint(t *testing.T) {
	hint := errors.New("install the tool")
	_, err := camera.StartTool(camera.ToolOpts{
		Name:        "qrscan-no-such-capture-tool",
		Args:        func(dir string) []string { return nil },
		Op:          fsnotify.Write,
		InstallHint: hint,
	})
	if err == nil {
		t.Fatalf("starting missing tool, expected error")
	}
	// The hint is part of the message, the tool is named.
	if got := err.Error(); got != "starting qrscan-no-such-capture-tool: install the tool" {
		t.Fatalf("error, got %q", got)
	}
}
