// Package zbar decodes QR codes in still images by running zbarimg.
package zbar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log"
	"os"
	"os/exec"
	"strings"

	qrscan "github.com/vestify/qrscan-go"
	"github.com/vestify/qrscan-go/decode"
)

var errInstallHint = errors.New("executable not found, install with: sudo apt install -y zbar-tools")

// zbarimg exits with status 4 when the image has no symbol.
const exitNoSymbol = 4

// DecoderOpts are options for NewDecoder.
type DecoderOpts struct {
	Verbose bool

	// Explicitly set a working directory for images handed to zbarimg. This
	// directory is not removed on Close. If empty, a temporary directory is
	// created.
	WorkDir string
}

// Decoder writes images to a work directory and runs zbarimg on them.
type Decoder struct {
	opts    DecoderOpts
	tempDir string // Created for this decoder if any. Removed on close.
}

// Check that Decoder can serve as the engine's fallback.
var _ decode.StaticDecoder = (*Decoder)(nil)

// NewDecoder checks that zbarimg is installed and prepares a work directory.
// Always call Close on a decoder, to cleanup any temporary directories.
func NewDecoder(opts *DecoderOpts) (decoder *Decoder, rerr error) {
	d := &Decoder{}
	if opts != nil {
		d.opts = *opts
	}

	if _, err := exec.LookPath("zbarimg"); err != nil {
		return nil, fmt.Errorf("looking up zbarimg: %w", errInstallHint)
	}

	if d.opts.WorkDir == "" {
		dir, err := qrscan.TempDir()
		if err != nil {
			return nil, fmt.Errorf("making temp dir: %v", err)
		}
		d.opts.WorkDir = dir
		d.tempDir = dir
	}
	return d, nil
}

// Decode runs zbarimg on img, returning the first QR code found. Decode
// returns an error matching qrscan.ErrNotFound if there is none.
func (d *Decoder) Decode(ctx context.Context, img image.Image) (string, error) {
	f, err := os.CreateTemp(d.opts.WorkDir, "image-*.png")
	if err != nil {
		return "", fmt.Errorf("creating image file: %v", err)
	}
	path := f.Name()
	defer os.Remove(path)
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return "", fmt.Errorf("writing png: %v", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing png: %v", err)
	}

	args := []string{"--quiet", "--raw", "-Sdisable", "-Sqrcode.enable", path}
	if d.opts.Verbose {
		log.Printf("running zbarimg %s", strings.Join(args, " "))
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "zbarimg", args...)
	cmd.Stderr = &stderr
	buf, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == exitNoSymbol {
			return "", fmt.Errorf("%w: zbarimg found no symbol", qrscan.ErrNotFound)
		}
		if errors.Is(err, exec.ErrNotFound) {
			err = errInstallHint
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("running zbarimg: %v: %s", err, strings.TrimSpace(stderr.String()))
	}
	return parseOutput(buf)
}

// parseOutput returns the first symbol of --raw output, one symbol per line.
func parseOutput(buf []byte) (string, error) {
	s := strings.SplitN(string(buf), "\n", 2)[0]
	s = strings.TrimSuffix(s, "\r")
	if s == "" {
		return "", fmt.Errorf("%w: zbarimg printed no symbol", qrscan.ErrNotFound)
	}
	return s, nil
}

// Close removes the temporary work directory, if any.
func (d *Decoder) Close() error {
	if d.tempDir != "" {
		return os.RemoveAll(d.tempDir)
	}
	return nil
}
