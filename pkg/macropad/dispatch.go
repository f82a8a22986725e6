package macropad

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// dispatcher is the single classification lane. It owns the press classifier
// and the burst accumulator, consumes raw key events from the device session,
// and feeds resolved actions into the key and volume queues.
//
// All classifier/accumulator state is touched only from run's goroutine, so
// neither needs its own locking. Window expiry is driven by one timer armed
// to the earliest pending deadline across both state machines.
type dispatcher struct {
	logger      *zap.SugaredLogger
	classifier  *pressClassifier
	accumulator *burstAccumulator
	keyQueue    *actionQueue
	volumeQueue *actionQueue

	events chan KeyEvent
}

func newDispatcher(
	logger *zap.SugaredLogger,
	classifier *pressClassifier,
	accumulator *burstAccumulator,
	keyQueue *actionQueue,
	volumeQueue *actionQueue,
) *dispatcher {
	return &dispatcher{
		logger:      logger.Named("dispatch"),
		classifier:  classifier,
		accumulator: accumulator,
		keyQueue:    keyQueue,
		volumeQueue: volumeQueue,
		events:      make(chan KeyEvent),
	}
}

// Events returns the channel the device session feeds raw key events into.
func (d *dispatcher) Events() chan<- KeyEvent {
	return d.events
}

func (d *dispatcher) run(ctx context.Context) {
	d.logger.Debug("Dispatch lane starting")

	// the timer stays stopped until a window opens; rearm after every event
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Debug("Dispatch lane stopping")
			return

		case ev := <-d.events:
			d.handle(ev)

		case now := <-timer.C:
			d.enqueueKeyActions(d.classifier.Expire(now))
			d.enqueueVolumeActions(d.accumulator.Flush(now))
		}

		d.rearm(timer)
	}
}

func (d *dispatcher) handle(ev KeyEvent) {
	switch ev.Key {
	case KeyVolumeUp:
		d.accumulator.HandleTurn(1, ev.When)
	case KeyVolumeDown:
		d.accumulator.HandleTurn(-1, ev.When)
	default:
		d.enqueueKeyActions(d.classifier.HandleKeyDown(ev.Key, ev.When))
	}
}

func (d *dispatcher) enqueueKeyActions(actions []QueuedAction) {
	for _, action := range actions {
		if !d.keyQueue.Enqueue(action) {
			d.logger.Warnw("Key queue full, dropping action", "action", action.Kind)
		}
	}
}

func (d *dispatcher) enqueueVolumeActions(actions []QueuedAction) {
	for _, action := range actions {
		if !d.volumeQueue.Enqueue(action) {
			d.logger.Warnw("Volume queue full, dropping action", "action", action.Kind, "delta", action.Delta)
		}
	}
}

// rearm points the timer at the earliest deadline still pending in either
// state machine, or leaves it stopped when nothing is waiting.
func (d *dispatcher) rearm(timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}

	deadline, ok := d.classifier.NextDeadline()
	if burstDeadline, burstOK := d.accumulator.NextDeadline(); burstOK && (!ok || burstDeadline.Before(deadline)) {
		deadline = burstDeadline
		ok = true
	}

	if ok {
		timer.Reset(time.Until(deadline))
	}
}
