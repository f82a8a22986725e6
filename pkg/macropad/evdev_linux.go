//go:build linux

package macropad

import (
	"fmt"
	"time"

	evdev "github.com/gvalkov/golang-evdev"
	"go.uber.org/zap"
)

const devicePathPattern = "/dev/input/event%d"

// the macropad shows up on one of the first few event nodes; scanning a
// fixed range avoids opening every input device on the system
var deviceEventNumbers = []int{0, 1, 2, 3, 4}

var scancodeKeys = map[int]Key{
	evdev.KEY_Q: KeyPlayPause,
	evdev.KEY_W: KeyNext,
	evdev.KEY_E: KeyFavorite,
	evdev.KEY_T: KeyVolumeUp,
	evdev.KEY_R: KeyVolumeDown,
}

// evdevEnumerator finds the macropad among the kernel's input event nodes by
// exact device name match.
type evdevEnumerator struct {
	logger *zap.SugaredLogger
}

func newEvdevEnumerator(logger *zap.SugaredLogger) *evdevEnumerator {
	return &evdevEnumerator{logger: logger.Named("evdev")}
}

func (e *evdevEnumerator) Find(name string) (InputDevice, error) {
	for _, num := range deviceEventNumbers {
		path := fmt.Sprintf(devicePathPattern, num)

		dev, err := evdev.Open(path)
		if err != nil {
			continue
		}

		if dev.Name != name {
			dev.File.Close()
			continue
		}

		e.logger.Debugw("Found input device", "name", name, "path", path)
		return &evdevDevice{dev: dev}, nil
	}

	return nil, errDeviceNotFound
}

// evdevDevice adapts an open evdev handle to the InputDevice interface,
// filtering the raw event stream down to mapped key-down events.
type evdevDevice struct {
	dev *evdev.InputDevice
}

func (d *evdevDevice) Name() string {
	return d.dev.Name
}

func (d *evdevDevice) ReadEvent() (KeyEvent, error) {
	for {
		raw, err := d.dev.ReadOne()
		if err != nil {
			return KeyEvent{}, fmt.Errorf("read input event: %w", err)
		}

		if raw.Type != evdev.EV_KEY {
			continue
		}

		keyEvent := evdev.NewKeyEvent(raw)
		if keyEvent.State != evdev.KeyDown {
			continue
		}

		key, ok := scancodeKeys[int(keyEvent.Scancode)]
		if !ok {
			continue
		}

		return KeyEvent{Key: key, When: time.Now()}, nil
	}
}

func (d *evdevDevice) Close() error {
	return d.dev.File.Close()
}
