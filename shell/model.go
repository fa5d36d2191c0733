// Package shell is a terminal front end for the scanner: a live preview of
// the camera, the scanner state, and keys to close, switch the flash, retry
// the camera and scan a photo from disk.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	qrscan "github.com/vestify/qrscan-go"
)

// Controller is the part of *qrscan.Controller the shell drives.
type Controller interface {
	Start(ctx context.Context) error
	Stop(result string)
	ToggleFlash() error
	ScanStaticImage(ctx context.Context, r io.Reader) (string, error)
}

type stateMsg qrscan.State

type noticeMsg qrscan.Notice

type closeMsg string

type frameMsg string

type startedMsg struct{ err error }

type toggledMsg struct{ err error }

type scannedMsg struct{ err error }

// Model is the bubbletea model of the scanner screen.
type Model struct {
	ctx  context.Context
	ctrl Controller
	keys KeyMap

	state   qrscan.State
	preview string
	notice  string

	// Typing the path of a photo to scan.
	inputting bool
	input     string

	closed bool
	result string
}

// NewModel returns the screen for ctrl. Start, Stop and photo scans run
// with ctx.
func NewModel(ctx context.Context, ctrl Controller) Model {
	return Model{
		ctx:  ctx,
		ctrl: ctrl,
		keys: DefaultKeyMap(),
	}
}

// Result returns the decoded payload, empty if the scanner was closed
// without one.
func (m Model) Result() string {
	return m.result
}

// Init starts the scanner as soon as the screen is up.
func (m Model) Init() tea.Cmd {
	return m.startCmd()
}

func (m Model) startCmd() tea.Cmd {
	return func() tea.Msg {
		return startedMsg{m.ctrl.Start(m.ctx)}
	}
}

func (m Model) stopCmd() tea.Cmd {
	return func() tea.Msg {
		m.ctrl.Stop("")
		return nil
	}
}

func (m Model) toggleCmd() tea.Cmd {
	return func() tea.Msg {
		return toggledMsg{m.ctrl.ToggleFlash()}
	}
}

func (m Model) scanCmd(path string) tea.Cmd {
	return func() tea.Msg {
		f, err := os.Open(path)
		if err != nil {
			return scannedMsg{fmt.Errorf("opening photo: %v", err)}
		}
		defer f.Close()
		_, err = m.ctrl.ScanStaticImage(m.ctx, f)
		return scannedMsg{err}
	}
}

// Update applies controller callbacks and key presses. State updates older
// than the one shown are dropped, they may arrive out of order.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stateMsg:
		if msg.Seq <= m.state.Seq {
			return m, nil
		}
		m.state = qrscan.State(msg)
		if m.state.Phase != qrscan.Running {
			m.preview = ""
		}
		return m, nil

	case noticeMsg:
		m.notice = qrscan.Notice(msg).String()
		return m, nil

	case frameMsg:
		if m.state.Phase == qrscan.Running {
			m.preview = string(msg)
		}
		return m, nil

	case closeMsg:
		m.closed = true
		m.result = string(msg)
		return m, tea.Quit

	case startedMsg:
		// Camera failures arrive as notices.
		if msg.err != nil && !errors.Is(msg.err, qrscan.ErrStopped) && m.notice == "" {
			m.notice = msg.err.Error()
		}
		return m, nil

	case toggledMsg:
		// Torch failures arrive as notices, the rest is a key pressed at the wrong time.
		if msg.err != nil && errors.Is(msg.err, qrscan.ErrBusy) {
			m.notice = "Flashlight is still switching."
		}
		return m, nil

	case scannedMsg:
		if msg.err != nil && !errors.Is(msg.err, qrscan.ErrNotFound) {
			m.notice = msg.err.Error()
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.inputting {
		return m.handleInputKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Close):
		if m.state.Phase == qrscan.Idle {
			m.closed = true
			return m, tea.Quit
		}
		return m, m.stopCmd()

	case key.Matches(msg, m.keys.Flash):
		return m, m.toggleCmd()

	case key.Matches(msg, m.keys.Retry):
		if m.state.Phase == qrscan.Failed || m.state.Phase == qrscan.Idle {
			m.notice = ""
			return m, m.startCmd()
		}

	case key.Matches(msg, m.keys.Photo):
		m.inputting = true
		m.input = ""
		m.notice = ""
	}
	return m, nil
}

func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Submit):
		m.inputting = false
		path := strings.TrimSpace(m.input)
		if path == "" {
			return m, nil
		}
		return m, m.scanCmd(path)

	case key.Matches(msg, m.keys.Cancel):
		m.inputting = false

	case key.Matches(msg, m.keys.Erase):
		if r := []rune(m.input); len(r) > 0 {
			m.input = string(r[:len(r)-1])
		}

	case msg.Type == tea.KeyRunes, msg.Type == tea.KeySpace:
		m.input += string(msg.Runes)
	}
	return m, nil
}

// View renders the status line, preview, notice and key help.
func (m Model) View() string {
	if m.closed {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("QR scanner"))
	b.WriteString("\n\n")

	status := m.state.String()
	switch m.state.Phase {
	case qrscan.Running:
		status = runningStyle.Render(status)
	case qrscan.Starting, qrscan.Stopping:
		status = busyStyle.Render(status)
	case qrscan.Failed:
		status = failedStyle.Render(status)
	}
	b.WriteString(status)
	b.WriteString("\n")

	if m.preview != "" {
		b.WriteString(previewStyle.Render(m.preview))
		b.WriteString("\n")
	}
	if m.notice != "" {
		b.WriteString(noticeStyle.Render(m.notice))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.inputting {
		b.WriteString("Photo path: " + m.input + "_\n")
		b.WriteString(dimStyle.Render(helpLine(m.keys.Submit, m.keys.Cancel)))
	} else {
		b.WriteString(dimStyle.Render(helpLine(m.keys.Close, m.keys.Flash, m.keys.Retry, m.keys.Photo)))
	}
	b.WriteString("\n")
	return b.String()
}
