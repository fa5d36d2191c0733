// Package decode recognizes QR codes in camera frames and photos with
// gozxing.
package decode

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"

	qrscan "github.com/vestify/qrscan-go"
)

var errEmpty = errors.New("code without content")

// StaticDecoder is a second opinion for photos gozxing cannot read.
// Implemented by *zbar.Decoder.
type StaticDecoder interface {
	Decode(ctx context.Context, img image.Image) (string, error)
}

// EngineOpts are options for NewEngine.
type EngineOpts struct {
	Verbose  bool   // Print verbose logging.
	TraceDir string // If not empty, directory to write frames sent to the decoder.

	// Frames larger than MaxFrameSize in either dimension are scaled down
	// before decoding. Default 1280.
	MaxFrameSize int

	// If set, photos that gozxing cannot read are passed to Fallback.
	Fallback StaticDecoder
}

// Engine implements qrscan.DecodeEngine.
type Engine struct {
	opts EngineOpts
}

// Check that Engine implements interface DecodeEngine.
var _ qrscan.DecodeEngine = (*Engine)(nil)

// NewEngine returns a new engine.
func NewEngine(opts *EngineOpts) *Engine {
	e := &Engine{}
	if opts != nil {
		e.opts = *opts
	}
	if e.opts.MaxFrameSize <= 0 {
		e.opts.MaxFrameSize = 1280
	}
	return e
}

func (e *Engine) logf(format string, args ...interface{}) {
	if e.opts.Verbose {
		log.Printf(format, args...)
	}
}

var hints = map[gozxing.DecodeHintType]interface{}{
	gozxing.DecodeHintType_TRY_HARDER:       true,
	gozxing.DecodeHintType_POSSIBLE_FORMATS: []gozxing.BarcodeFormat{gozxing.BarcodeFormat_QR_CODE},
}

// Image decodes a single QR code in img.
func Image(img image.Image) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("binarizing image: %v", err)
	}
	// Readers are not safe for concurrent use.
	result, err := qrcode.NewQRCodeReader().Decode(bmp, hints)
	if err != nil {
		return "", err
	}
	if result.GetText() == "" {
		return "", errEmpty
	}
	return result.GetText(), nil
}

// fit scales img down to fit within limit pixels in both dimensions.
func fit(img image.Image, limit int) image.Image {
	size := img.Bounds().Size()
	if size.X <= limit && size.Y <= limit {
		return img
	}
	return imaging.Fit(img, limit, limit, imaging.Linear)
}

type loop struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func (l *loop) Done() <-chan struct{} {
	return l.done
}

func (l *loop) close() {
	l.once.Do(func() {
		close(l.stop)
	})
}

func (l *loop) stopped() bool {
	select {
	case <-l.stop:
		return true
	default:
		return false
	}
}

// AttachLiveDecoder starts a goroutine decoding frames until a code is found,
// frames is closed or the loop is detached.
func (e *Engine) AttachLiveDecoder(frames qrscan.FrameSource, onSuccess func(payload string), onFailure func(err error)) (qrscan.DecoderHandle, error) {
	if frames == nil {
		return nil, fmt.Errorf("no frame source")
	}
	if onSuccess == nil {
		onSuccess = func(string) {}
	}
	if onFailure == nil {
		onFailure = func(error) {}
	}
	maf, err := qrscan.NewMAF(10)
	if err != nil {
		return nil, err
	}

	l := &loop{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	src := frames.Frames()

	go func() {
		defer close(l.done)

		seq := 0
		for {
			// A pending frame must not win over a detach.
			if l.stopped() {
				return
			}
			select {
			case <-l.stop:
				return
			case f, ok := <-src:
				if !ok {
					e.logf("frame source closed, decode loop done")
					return
				}
				if f.Err != nil {
					onFailure(f.Err)
					continue
				}

				seq++
				img := fit(f.Image, e.opts.MaxFrameSize)
				e.trace(img, seq)

				t0 := time.Now()
				payload, err := Image(img)
				avg, _ := maf.Update(time.Since(t0))
				if err != nil {
					e.logf("frame %d: no code: %v (decoding takes %v on average)", seq, err, avg)
					onFailure(err)
					continue
				}

				if l.stopped() {
					e.logf("frame %d: decoded after detach, ignoring", seq)
					return
				}
				l.close()
				e.logf("frame %d: decoded %d bytes", seq, len(payload))
				onSuccess(payload)
				return
			}
		}
	}()

	return l, nil
}

// Detach stops the loop. The loop exits after the frame it is decoding, if
// any.
func (e *Engine) Detach(h qrscan.DecoderHandle) {
	if l, ok := h.(*loop); ok {
		l.close()
	}
}

// DecodeStatic decodes a photo. The photo is rotated according to its EXIF
// orientation. When the full image cannot be read, a grayscale and a scaled
// down version are tried, and then the fallback decoder.
func (e *Engine) DecodeStatic(ctx context.Context, r io.Reader) (string, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("reading photo: %v", err)
	}

	attempts := []struct {
		name string
		img  func() image.Image
	}{
		{"original", func() image.Image { return img }},
		{"grayscale", func() image.Image { return imaging.Grayscale(img) }},
		{"scaled", func() image.Image { return fit(img, e.opts.MaxFrameSize/2) }},
	}
	var lastErr error
	for _, a := range attempts {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		payload, err := Image(a.img())
		if err == nil {
			return payload, nil
		}
		e.logf("photo, %s: no code: %v", a.name, err)
		lastErr = err
	}

	if e.opts.Fallback != nil {
		payload, err := e.opts.Fallback.Decode(ctx, img)
		if err == nil && payload != "" {
			return payload, nil
		}
		if err != nil && !errors.Is(err, qrscan.ErrNotFound) {
			e.logf("photo, fallback decoder: %v", err)
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %v", qrscan.ErrNotFound, lastErr)
}

func (e *Engine) trace(img image.Image, seq int) {
	if e.opts.TraceDir == "" {
		return
	}
	pngPath := fmt.Sprintf("%s/frame-%d.png", e.opts.TraceDir, seq)
	pf, err := os.Create(pngPath)
	if err != nil {
		log.Printf("trace, creating %s: %v", pngPath, err)
		return
	}
	if err := png.Encode(pf, img); err != nil {
		log.Printf("trace, encoding png: %v", err)
	}
	if err := pf.Close(); err != nil {
		log.Printf("trace, closing file: %v", err)
	} else {
		log.Printf("trace %s", pngPath)
	}
}
