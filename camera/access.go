package camera

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	qrscan "github.com/vestify/qrscan-go"
)

// CheckAccess opens a device node to find out whether the camera can be
// used before a capture tool is started. Capture tools only report a denied
// device on their stderr, long after they started.
func CheckAccess(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrPermission):
			return fmt.Errorf("%w: %v", qrscan.ErrPermissionDenied, err)
		case errors.Is(err, fs.ErrNotExist):
			return fmt.Errorf("%w: %v", qrscan.ErrNoCamera, err)
		}
		return fmt.Errorf("opening camera: %v", err)
	}
	return f.Close()
}
