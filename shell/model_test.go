package shell

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	qrscan "github.com/vestify/qrscan-go"
)

type mockController struct {
	starts  int
	stops   []string
	toggles int
	scanned []string

	startErr  error
	toggleErr error
	scanErr   error
}

func (c *mockController) Start(ctx context.Context) error {
	c.starts++
	return c.startErr
}

func (c *mockController) Stop(result string) {
	c.stops = append(c.stops, result)
}

func (c *mockController) ToggleFlash() error {
	c.toggles++
	return c.toggleErr
}

func (c *mockController) ScanStaticImage(ctx context.Context, r io.Reader) (string, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	c.scanned = append(c.scanned, string(buf))
	return "", c.scanErr
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	result, cmd := m.Update(msg)
	return result.(Model), cmd
}

func running(seq uint64) stateMsg {
	return stateMsg{Seq: seq, Phase: qrscan.Running, SessionID: "s1", TorchCapable: true}
}

func TestInitStarts(t *testing.T) {
	ctrl := &mockController{}
	m := NewModel(context.Background(), ctrl)
	msg := m.Init()()
	if ctrl.starts != 1 {
		t.Fatalf("starts = %d, want 1", ctrl.starts)
	}
	if sm, ok := msg.(startedMsg); !ok || sm.err != nil {
		t.Fatalf("init message = %#v, want startedMsg without error", msg)
	}
}

func TestStaleStateIgnored(t *testing.T) {
	m := NewModel(context.Background(), &mockController{})
	m, _ = update(t, m, running(3))
	m, _ = update(t, m, stateMsg{Seq: 2, Phase: qrscan.Starting})
	if m.state.Phase != qrscan.Running {
		t.Fatalf("phase = %v, want running", m.state.Phase)
	}
	m, _ = update(t, m, stateMsg{Seq: 4, Phase: qrscan.Stopping})
	if m.state.Phase != qrscan.Stopping {
		t.Fatalf("phase = %v, want stopping", m.state.Phase)
	}
}

func TestPreviewOnlyWhileRunning(t *testing.T) {
	m := NewModel(context.Background(), &mockController{})
	m, _ = update(t, m, frameMsg("@@"))
	if m.preview != "" {
		t.Fatalf("preview before running = %q, want empty", m.preview)
	}
	m, _ = update(t, m, running(1))
	m, _ = update(t, m, frameMsg("@@"))
	if !strings.Contains(m.View(), "@@") {
		t.Fatalf("view does not show preview:\n%s", m.View())
	}
	m, _ = update(t, m, stateMsg{Seq: 2, Phase: qrscan.Stopping})
	if m.preview != "" {
		t.Fatalf("preview after stop = %q, want empty", m.preview)
	}
}

func TestCloseKeyStops(t *testing.T) {
	ctrl := &mockController{}
	m := NewModel(context.Background(), ctrl)
	m, _ = update(t, m, running(1))
	m, cmd := update(t, m, runes("q"))
	if cmd == nil {
		t.Fatal("close key returned no command")
	}
	cmd()
	if len(ctrl.stops) != 1 || ctrl.stops[0] != "" {
		t.Fatalf("stops = %q, want one cancel", ctrl.stops)
	}
	if m.closed {
		t.Fatal("closed before the controller completed")
	}

	m, cmd = update(t, m, closeMsg(""))
	if !m.closed || m.Result() != "" {
		t.Fatalf("closed = %v, result = %q, want closed without result", m.closed, m.Result())
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("close did not quit")
	}
}

func TestCloseKeyWhileIdleQuits(t *testing.T) {
	ctrl := &mockController{}
	m := NewModel(context.Background(), ctrl)
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if !m.closed {
		t.Fatal("not closed")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("close while idle did not quit")
	}
	if len(ctrl.stops) != 0 {
		t.Fatalf("stops = %q, want none", ctrl.stops)
	}
}

func TestDecodedResult(t *testing.T) {
	m := NewModel(context.Background(), &mockController{})
	m, _ = update(t, m, running(1))
	m, _ = update(t, m, closeMsg("ABC123"))
	if m.Result() != "ABC123" {
		t.Fatalf("result = %q, want ABC123", m.Result())
	}
	if m.View() != "" {
		t.Fatalf("view after close = %q, want empty", m.View())
	}
}

func TestFlashKey(t *testing.T) {
	ctrl := &mockController{toggleErr: qrscan.ErrBusy}
	m := NewModel(context.Background(), ctrl)
	m, _ = update(t, m, running(1))
	m, cmd := update(t, m, runes("f"))
	msg := cmd()
	if ctrl.toggles != 1 {
		t.Fatalf("toggles = %d, want 1", ctrl.toggles)
	}
	m, _ = update(t, m, msg)
	if m.notice == "" {
		t.Fatal("busy toggle left no notice")
	}
}

func TestNoticeShown(t *testing.T) {
	m := NewModel(context.Background(), &mockController{})
	m, _ = update(t, m, stateMsg{Seq: 1, Phase: qrscan.Failed, Reason: qrscan.ErrPermissionDenied})
	m, _ = update(t, m, noticeMsg{Kind: qrscan.NoticeCameraUnavailable, Err: qrscan.ErrPermissionDenied})
	if !strings.Contains(m.View(), "Camera is blocked") {
		t.Fatalf("view does not show notice:\n%s", m.View())
	}
}

func TestRetryOnlyWhenStopped(t *testing.T) {
	ctrl := &mockController{}
	m := NewModel(context.Background(), ctrl)
	m, _ = update(t, m, running(1))
	if _, cmd := update(t, m, runes("r")); cmd != nil {
		t.Fatal("retry while running returned a command")
	}

	m, _ = update(t, m, stateMsg{Seq: 2, Phase: qrscan.Failed, Reason: qrscan.ErrNoCamera})
	m, cmd := update(t, m, runes("r"))
	if cmd == nil {
		t.Fatal("retry after failure returned no command")
	}
	cmd()
	if ctrl.starts != 1 {
		t.Fatalf("starts = %d, want 1", ctrl.starts)
	}
}

func TestStartErrorShown(t *testing.T) {
	m := NewModel(context.Background(), &mockController{})
	m, _ = update(t, m, startedMsg{qrscan.ErrStopped})
	if m.notice != "" {
		t.Fatalf("notice after stopped start = %q, want empty", m.notice)
	}
	m, _ = update(t, m, startedMsg{errors.New("boom")})
	if m.notice != "boom" {
		t.Fatalf("notice = %q, want boom", m.notice)
	}
}

func TestPhotoInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.png")
	if err := os.WriteFile(path, []byte("photo bytes"), 0o600); err != nil {
		t.Fatal(err)
	}

	ctrl := &mockController{scanErr: qrscan.ErrNotFound}
	m := NewModel(context.Background(), ctrl)
	m, _ = update(t, m, running(1))
	m, _ = update(t, m, runes("p"))
	if !m.inputting {
		t.Fatal("photo key did not start input")
	}

	// Keys are typed into the path while inputting, "q" does not close.
	m, _ = update(t, m, runes(path+"x"))
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyBackspace})
	if m.input != path {
		t.Fatalf("input = %q, want %q", m.input, path)
	}
	if !strings.Contains(m.View(), "Photo path: "+path) {
		t.Fatalf("view does not show input:\n%s", m.View())
	}

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.inputting {
		t.Fatal("still inputting after enter")
	}
	msg := cmd()
	if len(ctrl.scanned) != 1 || ctrl.scanned[0] != "photo bytes" {
		t.Fatalf("scanned = %q, want photo bytes", ctrl.scanned)
	}

	// Not found is reported through a notice by the controller.
	m, _ = update(t, m, msg)
	if m.notice != "" {
		t.Fatalf("notice = %q, want empty", m.notice)
	}
}

func TestPhotoInputMissingFile(t *testing.T) {
	ctrl := &mockController{}
	m := NewModel(context.Background(), ctrl)
	m, _ = update(t, m, runes("p"))
	m, _ = update(t, m, runes("/nonexistent/photo.png"))
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m, _ = update(t, m, cmd())
	if !strings.Contains(m.notice, "opening photo") {
		t.Fatalf("notice = %q, want open error", m.notice)
	}
	if len(ctrl.scanned) != 0 {
		t.Fatalf("scanned = %q, want nothing", ctrl.scanned)
	}
}

func TestPhotoInputCancel(t *testing.T) {
	m := NewModel(context.Background(), &mockController{})
	m, _ = update(t, m, runes("p"))
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.inputting || m.closed {
		t.Fatalf("inputting = %v, closed = %v, want neither", m.inputting, m.closed)
	}
}
