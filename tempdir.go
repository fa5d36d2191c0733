package qrscan

import (
	"os"
)

// TempDir returns either a temporary directory in /dev/shm (if it exists), or
// otherwise in the OS default temporary directory. Capture backends write
// frames here, so memory-backed storage keeps the disk out of the frame path.
func TempDir() (string, error) {
	// Check if /dev/shm exists first. Don't want to accidentially create a
	// directory in /dev (if someones runs this as root).
	if fi, err := os.Stat("/dev/shm"); err == nil && fi.IsDir() {
		dir, err := os.MkdirTemp("/dev/shm", "qrscan")
		if err == nil {
			return dir, nil
		}
	}
	return os.MkdirTemp("", "qrscan")
}
