package macropad

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Key identifies a physical control on the macropad
type Key int

const (
	KeyPlayPause Key = iota
	KeyNext
	KeyFavorite
	KeyVolumeUp
	KeyVolumeDown
)

func (k Key) String() string {
	switch k {
	case KeyPlayPause:
		return "play/pause"
	case KeyNext:
		return "next"
	case KeyFavorite:
		return "favorite"
	case KeyVolumeUp:
		return "volume up"
	case KeyVolumeDown:
		return "volume down"
	default:
		return "unknown"
	}
}

// KeyEvent is a single key-down report from the macropad, stamped with the
// time it was read off the device.
type KeyEvent struct {
	Key  Key
	When time.Time
}

// ConnectionState tracks where the device session currently is in its
// search/read/teardown cycle.
type ConnectionState int

const (
	StateSearching ConnectionState = iota
	StateConnected
	StateDisconnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateSearching:
		return "searching"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

var errDeviceNotFound = errors.New("input device not found")

// InputDevice is an open handle to the macropad's input event stream.
type InputDevice interface {
	Name() string
	ReadEvent() (KeyEvent, error)
	Close() error
}

// DeviceEnumerator locates an input device by its advertised name.
// Find returns errDeviceNotFound when no matching device is present yet.
type DeviceEnumerator interface {
	Find(name string) (InputDevice, error)
}

// Reconnector attempts to bring an absent device back, e.g. by poking the
// bluetooth stack. Returns true if a reconnect was initiated.
type Reconnector interface {
	Reconnect(ctx context.Context, deviceName string) bool
}

// Clock abstracts waiting for the session manager so tests can drive the
// retry loop without real sleeps.
type Clock interface {
	// Sleep blocks for d or until ctx is done; returns false when cancelled.
	Sleep(ctx context.Context, d time.Duration) bool
}

type realClock struct{}

func (realClock) Sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// sessionManager owns the device connection lifecycle. It searches for the
// device by name, reads key events while connected, and on any read error
// tears the session down and goes straight back to searching. There is no
// cooldown and no attempt ceiling: the loop runs until the context is
// cancelled, periodically asking the Reconnector to nudge the device back.
type sessionManager struct {
	logger        *zap.SugaredLogger
	enumerator    DeviceEnumerator
	reconnector   Reconnector
	deviceName    string
	retryInterval time.Duration
	retryMax      int
	clock         Clock
	events        chan<- KeyEvent

	mu    sync.Mutex
	state ConnectionState
}

func newSessionManager(
	logger *zap.SugaredLogger,
	enumerator DeviceEnumerator,
	reconnector Reconnector,
	deviceName string,
	events chan<- KeyEvent,
) *sessionManager {
	return &sessionManager{
		logger:        logger.Named("session"),
		enumerator:    enumerator,
		reconnector:   reconnector,
		deviceName:    deviceName,
		retryInterval: deviceRetryInterval,
		retryMax:      deviceRetryMax,
		clock:         realClock{},
		events:        events,
		state:         StateSearching,
	}
}

// State returns the current connection state.
func (sm *sessionManager) State() ConnectionState {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.state
}

func (sm *sessionManager) setState(state ConnectionState) {
	sm.mu.Lock()
	previous := sm.state
	sm.state = state
	sm.mu.Unlock()

	if previous != state {
		sm.logger.Infow("Connection state changed", "from", previous, "to", state)
	}
}

func (sm *sessionManager) run(ctx context.Context) {
	sm.logger.Debugw("Device session starting", "device", sm.deviceName)

	for ctx.Err() == nil {
		sm.setState(StateSearching)

		device := sm.search(ctx)
		if device == nil {
			return
		}

		sm.setState(StateConnected)
		sm.logger.Infow("Device connected", "device", device.Name())

		sm.readLoop(ctx, device)

		if err := device.Close(); err != nil {
			sm.logger.Debugw("Failed to close device", "error", err)
		}

		sm.setState(StateDisconnected)
	}

	sm.logger.Debug("Device session stopping")
}

// search polls the enumerator until the device shows up. Every retryMax
// failed attempts it asks the reconnector to intervene and then allows the
// device extra time to initialize. Returns nil only on cancellation.
func (sm *sessionManager) search(ctx context.Context) InputDevice {
	attempts := 0

	for {
		if ctx.Err() != nil {
			return nil
		}

		device, err := sm.enumerator.Find(sm.deviceName)
		if err == nil {
			return device
		}

		if !errors.Is(err, errDeviceNotFound) {
			sm.logger.Warnw("Failed to probe input devices", "error", err)
		}

		attempts++
		if attempts == 1 {
			sm.logger.Infow("Device not found, waiting for it to appear", "device", sm.deviceName)
		}

		if attempts >= sm.retryMax {
			attempts = 0
			if sm.reconnector != nil && sm.reconnector.Reconnect(ctx, sm.deviceName) {
				sm.logger.Info("Reconnect initiated, allowing device time to initialize")
				if !sm.clock.Sleep(ctx, bluetoothInitDelay) {
					return nil
				}
				continue
			}
		}

		if !sm.clock.Sleep(ctx, sm.retryInterval) {
			return nil
		}
	}
}

// readLoop forwards device events until the device read fails or the context
// is cancelled. The reader goroutine owns the channel and closes it on the
// first read error, which is how disconnects surface.
func (sm *sessionManager) readLoop(ctx context.Context, device InputDevice) {
	readEvents := make(chan KeyEvent)

	go func() {
		defer close(readEvents)

		for {
			ev, err := device.ReadEvent()
			if err != nil {
				sm.logger.Warnw("Device read failed, assuming disconnect", "error", err)
				return
			}

			select {
			case readEvents <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-readEvents:
			if !ok {
				return
			}

			select {
			case sm.events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}
