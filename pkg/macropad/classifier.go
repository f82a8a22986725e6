package macropad

import (
	"time"

	"go.uber.org/zap"
)

// keyActions maps a multi-press capable key to the action fired on a plain
// single press and the action fired when the press count reaches the
// multi-press threshold within the window.
type keyActions struct {
	single ActionKind
	triple ActionKind
}

var multiPressKeys = map[Key]keyActions{
	KeyPlayPause: {single: ActionPlayPause, triple: ActionGroupAll},
	KeyNext:      {single: ActionNextTrack, triple: ActionUngroupAll},
}

var immediateKeys = map[Key]ActionKind{
	KeyFavorite: ActionFavorite,
}

// pendingPress tracks an unresolved press sequence for one key. At most one
// exists per key; it is destroyed either when the window deadline passes or
// when the count reaches the threshold, whichever comes first.
type pendingPress struct {
	key      Key
	count    int
	deadline time.Time
}

// pressClassifier turns a stream of discrete key-down events into resolved
// actions. Keys without multi-press semantics resolve immediately; the
// play/pause and next-track keys wait out a window so a rapid triple press
// can fire the group/ungroup action instead of the single-press one.
//
// The classifier is not safe for concurrent use: it is owned by the dispatch
// lane, which also drives window expiry via Expire, so the state machines for
// different keys never race each other.
type pressClassifier struct {
	logger    *zap.SugaredLogger
	window    time.Duration
	threshold int

	pending map[Key]*pendingPress
}

func newPressClassifier(logger *zap.SugaredLogger, window time.Duration, threshold int) *pressClassifier {
	return &pressClassifier{
		logger:    logger.Named("classifier"),
		window:    window,
		threshold: threshold,
		pending:   make(map[Key]*pendingPress),
	}
}

// HandleKeyDown feeds one key-down event into the classifier and returns any
// actions that resolved immediately. Actions deferred behind a window are
// returned later by Expire.
func (c *pressClassifier) HandleKeyDown(key Key, now time.Time) []QueuedAction {
	if kind, ok := immediateKeys[key]; ok {
		c.logger.Infow("Key pressed", "key", key)
		return []QueuedAction{{Kind: kind, EnqueueTime: now}}
	}

	rule, ok := multiPressKeys[key]
	if !ok {
		c.logger.Debugw("Ignoring key without mapped action", "key", key)
		return nil
	}

	pending, ok := c.pending[key]
	if !ok {
		// first press opens a fresh window; resolution happens either on a
		// later press reaching the threshold, or on window expiry
		c.pending[key] = &pendingPress{key: key, count: 1, deadline: now.Add(c.window)}
		c.logger.Infow("Key pressed, waiting for possible multi-press",
			"key", key, "single", rule.single, "triple", rule.triple, "window", c.window)
		return nil
	}

	pending.count++
	if pending.count < c.threshold {
		c.logger.Debugw("Key pressed again within window", "key", key, "count", pending.count)
		return nil
	}

	// threshold reached: cancel the pending single action and fire the
	// triple-press action right away
	delete(c.pending, key)
	c.logger.Infow("Multi-press detected", "key", key, "count", c.threshold, "action", rule.triple)
	return []QueuedAction{{Kind: rule.triple, EnqueueTime: now}}
}

// Expire resolves every pending press whose window deadline has passed,
// emitting the single-press action for each. Calling it with no expired
// windows (or after everything already resolved) is a no-op.
func (c *pressClassifier) Expire(now time.Time) []QueuedAction {
	var actions []QueuedAction

	for key, pending := range c.pending {
		if pending.deadline.After(now) {
			continue
		}

		rule := multiPressKeys[key]
		delete(c.pending, key)
		c.logger.Infow("Multi-press window elapsed, resolving single press",
			"key", key, "count", pending.count, "action", rule.single)
		actions = append(actions, QueuedAction{Kind: rule.single, EnqueueTime: now})
	}

	return actions
}

// NextDeadline returns the earliest pending window deadline, if any.
func (c *pressClassifier) NextDeadline() (time.Time, bool) {
	var earliest time.Time
	found := false

	for _, pending := range c.pending {
		if !found || pending.deadline.Before(earliest) {
			earliest = pending.deadline
			found = true
		}
	}

	return earliest, found
}
