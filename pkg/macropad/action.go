package macropad

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// ActionKind identifies one of the resolved controller actions
type ActionKind int

const (
	ActionPlayPause ActionKind = iota
	ActionNextTrack
	ActionFavorite
	ActionGroupAll
	ActionUngroupAll
	ActionVolumePrimary
	ActionVolumeSecondary
)

func (k ActionKind) String() string {
	switch k {
	case ActionPlayPause:
		return "play/pause"
	case ActionNextTrack:
		return "next track"
	case ActionFavorite:
		return "favorite playlist"
	case ActionGroupAll:
		return "group rooms"
	case ActionUngroupAll:
		return "ungroup rooms"
	case ActionVolumePrimary:
		return "adjust volume"
	case ActionVolumeSecondary:
		return "adjust secondary volume"
	default:
		return "unknown"
	}
}

// QueuedAction is a fully resolved action waiting for a worker.
// Delta carries the net volume change (in volume units) for the volume kinds
// and is zero otherwise.
type QueuedAction struct {
	Kind        ActionKind
	Delta       int
	EnqueueTime time.Time
}

// actionQueue is a bounded FIFO hand-off channel between the dispatch lane
// and one execution worker. Enqueue never blocks; a full queue rejects the
// action so the input lane stays responsive.
type actionQueue struct {
	logger *zap.SugaredLogger

	ch        chan QueuedAction
	closeOnce sync.Once
}

func newActionQueue(logger *zap.SugaredLogger, name string, capacity int) *actionQueue {
	return &actionQueue{
		logger: logger.Named(name + "_queue"),
		ch:     make(chan QueuedAction, capacity),
	}
}

// Enqueue appends the action in arrival order. Returns false if the queue is
// full, in which case the action is dropped by the caller.
func (q *actionQueue) Enqueue(action QueuedAction) bool {
	select {
	case q.ch <- action:
		return true
	default:
		return false
	}
}

// Close signals the consuming worker to drain remaining items and exit.
// Safe to call more than once.
func (q *actionQueue) Close() {
	q.closeOnce.Do(func() {
		close(q.ch)
		q.logger.Debug("Queue closed")
	})
}
