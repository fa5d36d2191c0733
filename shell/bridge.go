package shell

import (
	"image"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/disintegration/imaging"

	qrscan "github.com/vestify/qrscan-go"
)

// Darkest to brightest.
const ramp = " .:-=+*#%@"

// Bridge forwards controller callbacks and preview frames to a running
// program. It implements qrscan.Sink.
type Bridge struct {
	width    int
	interval time.Duration

	mu   sync.Mutex
	send func(tea.Msg)
	last time.Time
}

// Check that Bridge implements interface Sink.
var _ qrscan.Sink = (*Bridge)(nil)

// NewBridge returns a bridge rendering previews width characters wide, at
// most once per interval.
func NewBridge(width int, interval time.Duration) *Bridge {
	if width <= 0 {
		width = 48
	}
	return &Bridge{width: width, interval: interval}
}

// Attach makes the bridge deliver to p. Messages before Attach are dropped.
func (b *Bridge) Attach(p *tea.Program) {
	b.attach(p.Send)
}

func (b *Bridge) attach(send func(tea.Msg)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.send = send
}

func (b *Bridge) deliver(msg tea.Msg) {
	b.mu.Lock()
	send := b.send
	b.mu.Unlock()
	if send != nil {
		send(msg)
	}
}

// Render converts the frame to a text preview, skipping frames that arrive
// within the interval of the previous one.
func (b *Bridge) Render(img image.Image) {
	b.mu.Lock()
	now := time.Now()
	if now.Sub(b.last) < b.interval {
		b.mu.Unlock()
		return
	}
	b.last = now
	b.mu.Unlock()

	b.deliver(frameMsg(Preview(img, b.width)))
}

// OnState is a qrscan.ControllerOpts.OnState callback.
func (b *Bridge) OnState(s qrscan.State) {
	b.deliver(stateMsg(s))
}

// OnNotice is a qrscan.ControllerOpts.OnNotice callback.
func (b *Bridge) OnNotice(n qrscan.Notice) {
	b.deliver(noticeMsg(n))
}

// OnClose is a qrscan.ControllerOpts.OnClose callback. The program quits
// when it receives the result.
func (b *Bridge) OnClose(payload string) {
	b.deliver(closeMsg(payload))
}

// Preview renders img as text, width characters wide. Character cells are
// about twice as tall as wide, so rows are halved.
func Preview(img image.Image, width int) string {
	size := img.Bounds().Size()
	if size.X == 0 || size.Y == 0 || width <= 0 {
		return ""
	}
	height := size.Y * width / size.X / 2
	if height < 1 {
		height = 1
	}
	small := imaging.Grayscale(imaging.Resize(img, width, height, imaging.Box))

	var sb strings.Builder
	for y := 0; y < height; y++ {
		if y > 0 {
			sb.WriteByte('\n')
		}
		for x := 0; x < width; x++ {
			// Grayscale leaves equal channels, red is the luminance.
			v := small.Pix[y*small.Stride+x*4]
			sb.WriteByte(ramp[int(v)*(len(ramp)-1)/255])
		}
	}
	return sb.String()
}
