// Package v4l2 controls the torch of V4L2 cameras with v4l2-ctl.
//
// Cameras expose their LED through the flash_led_mode menu control, where 0
// is off, 1 is flash and 2 is torch.
package v4l2

import (
	"bufio"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"strconv"
	"strings"
)

var errInstallHint = errors.New("executable not found, install with: sudo apt install -y v4l-utils")

const (
	ledControl = "flash_led_mode"
	ledOff     = 0
	ledTorch   = 2
)

// Ctrl is a device control as listed by "v4l2-ctl --list-ctrls".
type Ctrl struct {
	Name  string
	Type  string // "int", "bool", "menu", etc.
	Min   int
	Max   int
	Value int
}

// Torch switches camera LEDs. The zero value is ready for use.
type Torch struct {
	Verbose bool
}

func (t *Torch) logf(format string, args ...interface{}) {
	if t.Verbose {
		log.Printf(format, args...)
	}
}

func (t *Torch) run(args ...string) ([]byte, error) {
	t.logf("running v4l2-ctl %s", strings.Join(args, " "))
	buf, err := exec.Command("v4l2-ctl", args...).Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			err = errInstallHint
		}
		return nil, fmt.Errorf("v4l2-ctl %s: %v", strings.Join(args, " "), err)
	}
	return buf, nil
}

// Ctrls lists the controls of a device.
func (t *Torch) Ctrls(deviceID string) (map[string]Ctrl, error) {
	buf, err := t.run("-d", deviceID, "--list-ctrls")
	if err != nil {
		return nil, err
	}
	return parseCtrls(string(buf))
}

// Capable reports whether the device has an LED that can be held on.
func (t *Torch) Capable(deviceID string) bool {
	ctrls, err := t.Ctrls(deviceID)
	if err != nil {
		t.logf("querying torch of %s: %v", deviceID, err)
		return false
	}
	c, ok := ctrls[ledControl]
	return ok && c.Min <= ledOff && c.Max >= ledTorch
}

// Set switches the torch and returns the state the device reports
// afterwards.
func (t *Torch) Set(deviceID string, on bool) (bool, error) {
	mode := ledOff
	if on {
		mode = ledTorch
	}
	if _, err := t.run("-d", deviceID, fmt.Sprintf("--set-ctrl=%s=%d", ledControl, mode)); err != nil {
		return false, err
	}
	buf, err := t.run("-d", deviceID, "--get-ctrl="+ledControl)
	if err != nil {
		return false, err
	}
	v, err := parseGetCtrl(string(buf), ledControl)
	if err != nil {
		return false, err
	}
	return v == ledTorch, nil
}

// parseCtrls parses lines such as:
//
//	flash_led_mode 0x009c0901 (menu)   : min=0 max=2 default=0 value=0
//
// Section headers and menu entries are skipped.
func parseCtrls(s string) (map[string]Ctrl, error) {
	ctrls := map[string]Ctrl{}
	b := bufio.NewScanner(strings.NewReader(s))
	for b.Scan() {
		line := strings.TrimSpace(b.Text())
		t := strings.SplitN(line, ":", 2)
		if len(t) != 2 {
			continue
		}
		head := strings.Fields(t[0])
		if len(head) != 3 || !strings.HasPrefix(head[1], "0x") {
			continue
		}
		c := Ctrl{
			Name: head[0],
			Type: strings.Trim(head[2], "()"),
		}
		for _, kv := range strings.Fields(t[1]) {
			kt := strings.SplitN(kv, "=", 2)
			if len(kt) != 2 {
				continue
			}
			v, err := strconv.Atoi(kt[1])
			if err != nil {
				continue
			}
			switch kt[0] {
			case "min":
				c.Min = v
			case "max":
				c.Max = v
			case "value":
				c.Value = v
			}
		}
		ctrls[c.Name] = c
	}
	if err := b.Err(); err != nil {
		return nil, fmt.Errorf("parsing controls: %v", err)
	}
	return ctrls, nil
}

// parseGetCtrl parses "name: value" as printed by --get-ctrl.
func parseGetCtrl(s, name string) (int, error) {
	for _, line := range strings.Split(s, "\n") {
		t := strings.SplitN(strings.TrimSpace(line), ":", 2)
		if len(t) != 2 || strings.TrimSpace(t[0]) != name {
			continue
		}
		v, err := strconv.Atoi(strings.TrimSpace(t[1]))
		if err != nil {
			return 0, fmt.Errorf("parsing value of %s: %v", name, err)
		}
		return v, nil
	}
	return 0, fmt.Errorf("control %s not in output %q", name, s)
}
