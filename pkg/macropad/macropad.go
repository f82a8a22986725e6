// Package macropad provides a daemon that turns a bluetooth macropad into a
// physical remote control for a Sonos household, driven through the
// node-sonos-http-api bridge.
package macropad

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jaredtrent/sonos-macropad/pkg/macropad/util"
)

const (
	// a rapid run of presses on the same key within this window counts as
	// one multi-press sequence
	multiPressWindow    = 800 * time.Millisecond
	multiPressThreshold = 3

	// knob turns arriving within this window of the first turn collapse
	// into one net volume change
	volumeBurstWindow = 100 * time.Millisecond

	keyQueueCapacity    = 3
	volumeQueueCapacity = 5

	actionTimeout      = 10 * time.Second
	groupActionTimeout = 15 * time.Second

	deviceRetryInterval = 500 * time.Millisecond
	deviceRetryMax      = 30
	bluetoothInitDelay  = 2 * time.Second
)

// Macropad is the main entity managing access to all sub-components
type Macropad struct {
	logger   *zap.SugaredLogger
	notifier Notifier
	config   *CanonicalConfig

	keyQueue    *actionQueue
	volumeQueue *actionQueue
	dispatcher  *dispatcher
	sessions    *sessionManager
	keyWorker   *worker
	volWorker   *worker

	stopChannel chan bool
	verbose     bool
	stopping    sync.Once
}

// NewMacropad creates a Macropad instance
func NewMacropad(logger *zap.SugaredLogger, verbose bool) (*Macropad, error) {
	logger = logger.Named("macropad")

	notifier, err := NewToastNotifier(logger)
	if err != nil {
		logger.Errorw("Failed to create ToastNotifier", "error", err)
		return nil, fmt.Errorf("create new ToastNotifier: %w", err)
	}

	config, err := NewConfig(logger, notifier)
	if err != nil {
		logger.Errorw("Failed to create Config", "error", err)
		return nil, fmt.Errorf("create new Config: %w", err)
	}

	m := &Macropad{
		logger:      logger,
		notifier:    notifier,
		config:      config,
		stopChannel: make(chan bool),
		verbose:     verbose,
	}

	logger.Debug("Created macropad instance")

	return m, nil
}

// Verbose returns a boolean indicating whether the daemon is running in verbose mode
func (m *Macropad) Verbose() bool {
	return m.verbose
}

// Initialize loads the config, wires up all sub-components and runs the
// daemon until interrupted.
func (m *Macropad) Initialize() error {
	m.logger.Debug("Initializing")

	// load the config for the first time
	if err := m.config.Load(); err != nil {
		m.logger.Errorw("Failed to load config during initialization", "error", err)
		return fmt.Errorf("load config during init: %w", err)
	}

	// now that we know where the log file goes, start writing there too
	if m.config.Macropad.LogFile != "" {
		m.logger = withFileSink(m.logger, m.config.Macropad.LogFile, m.verbose)
	}

	m.keyQueue = newActionQueue(m.logger, "key", keyQueueCapacity)
	m.volumeQueue = newActionQueue(m.logger, "volume", volumeQueueCapacity)

	classifier := newPressClassifier(m.logger, multiPressWindow, multiPressThreshold)
	accumulator := newBurstAccumulator(m.logger, volumeBurstWindow, m.config.Volume.PrimaryStep)
	m.dispatcher = newDispatcher(m.logger, classifier, accumulator, m.keyQueue, m.volumeQueue)

	api := newSonosClient(m.logger, m.config.Sonos.APIHost, m.config.Sonos.APIPort)
	executor := newSonosExecutor(m.logger, api, m.config)
	m.keyWorker = newWorker(m.logger, "key", m.keyQueue, executor)
	m.volWorker = newWorker(m.logger, "volume", m.volumeQueue, executor)

	m.sessions = newSessionManager(
		m.logger,
		newEvdevEnumerator(m.logger),
		newBluetoothReconnector(m.logger),
		m.config.Macropad.DeviceName,
		m.dispatcher.Events(),
	)

	m.setupInterruptHandler()
	m.run()

	return nil
}

func (m *Macropad) setupInterruptHandler() {
	interruptChannel := util.SetupCloseHandler()

	go func() {
		signal := <-interruptChannel
		m.logger.Debugw("Interrupted", "signal", signal)
		m.signalStop()
	}()
}

func (m *Macropad) run() {
	m.logger.Infow("Run loop starting", "device", m.config.Macropad.DeviceName)

	// watch the config file for changes
	go m.config.WatchConfigFileChanges()
	m.setupOnConfigReload()

	ctx, cancel := context.WithCancel(context.Background())

	var lanes sync.WaitGroup
	lanes.Add(2)
	go func() {
		defer lanes.Done()
		m.dispatcher.run(ctx)
	}()
	go func() {
		defer lanes.Done()
		m.sessions.run(ctx)
	}()

	var workers sync.WaitGroup
	workers.Add(2)
	go func() {
		defer workers.Done()
		m.keyWorker.run(ctx)
	}()
	go func() {
		defer workers.Done()
		m.volWorker.run(ctx)
	}()

	// wait until stopped (gracefully)
	<-m.stopChannel
	m.logger.Debug("Stop channel signaled, terminating")

	m.config.StopWatchingConfigFile()

	// stop producers first so no action is enqueued after the queues close
	cancel()
	lanes.Wait()

	m.keyQueue.Close()
	m.volumeQueue.Close()
	workers.Wait()

	// attempt to sync on exit - this won't necessarily work but can't harm
	m.logger.Sync()
}

func (m *Macropad) signalStop() {
	m.stopping.Do(func() {
		m.logger.Debug("Signalling stop channel")
		select {
		case m.stopChannel <- true:
		default:
			// Channel already has a signal, ignore
		}
	})
}

// setupOnConfigReload reacts to config file reloads. Room names, limits and
// the favorite are read live by the executor, so a reload only needs logging;
// a changed device name still requires a restart.
func (m *Macropad) setupOnConfigReload() {
	configReloadedChannel := m.config.SubscribeToChanges()

	go func() {
		for range configReloadedChannel {
			m.logger.Info("Config reloaded, new values apply to subsequent actions")
		}
	}()
}
