package macropad

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func TestClassifierImmediateKey(t *testing.T) {
	c := newPressClassifier(testLogger(), multiPressWindow, multiPressThreshold)
	now := time.Now()

	actions := c.HandleKeyDown(KeyFavorite, now)
	require.Len(t, actions, 1)
	assert.Equal(t, ActionFavorite, actions[0].Kind)

	_, pending := c.NextDeadline()
	assert.False(t, pending, "immediate keys should not open a window")
}

func TestClassifierSinglePressResolvesAtExpiry(t *testing.T) {
	c := newPressClassifier(testLogger(), multiPressWindow, multiPressThreshold)
	now := time.Now()

	actions := c.HandleKeyDown(KeyPlayPause, now)
	assert.Empty(t, actions, "single press must wait out the window")

	deadline, ok := c.NextDeadline()
	require.True(t, ok)
	assert.Equal(t, now.Add(multiPressWindow), deadline)

	// not yet due
	assert.Empty(t, c.Expire(now.Add(multiPressWindow-time.Millisecond)))

	actions = c.Expire(now.Add(multiPressWindow))
	require.Len(t, actions, 1)
	assert.Equal(t, ActionPlayPause, actions[0].Kind)

	// second expiry is a no-op
	assert.Empty(t, c.Expire(now.Add(2*multiPressWindow)))
}

func TestClassifierDoublePressStillResolvesSingle(t *testing.T) {
	c := newPressClassifier(testLogger(), multiPressWindow, multiPressThreshold)
	now := time.Now()

	assert.Empty(t, c.HandleKeyDown(KeyNext, now))
	assert.Empty(t, c.HandleKeyDown(KeyNext, now.Add(200*time.Millisecond)))

	actions := c.Expire(now.Add(multiPressWindow))
	require.Len(t, actions, 1)
	assert.Equal(t, ActionNextTrack, actions[0].Kind, "two presses resolve as a single-press action")
}

func TestClassifierTriplePressResolvesEarly(t *testing.T) {
	c := newPressClassifier(testLogger(), multiPressWindow, multiPressThreshold)
	now := time.Now()

	assert.Empty(t, c.HandleKeyDown(KeyPlayPause, now))
	assert.Empty(t, c.HandleKeyDown(KeyPlayPause, now.Add(100*time.Millisecond)))

	actions := c.HandleKeyDown(KeyPlayPause, now.Add(200*time.Millisecond))
	require.Len(t, actions, 1)
	assert.Equal(t, ActionGroupAll, actions[0].Kind, "third press resolves immediately")

	// the window is gone: no single-press action fires later
	assert.Empty(t, c.Expire(now.Add(2*multiPressWindow)))
	_, pending := c.NextDeadline()
	assert.False(t, pending)
}

func TestClassifierTriplePressUngroup(t *testing.T) {
	c := newPressClassifier(testLogger(), multiPressWindow, multiPressThreshold)
	now := time.Now()

	c.HandleKeyDown(KeyNext, now)
	c.HandleKeyDown(KeyNext, now.Add(50*time.Millisecond))
	actions := c.HandleKeyDown(KeyNext, now.Add(100*time.Millisecond))

	require.Len(t, actions, 1)
	assert.Equal(t, ActionUngroupAll, actions[0].Kind)
}

func TestClassifierPressAfterTripleOpensFreshWindow(t *testing.T) {
	c := newPressClassifier(testLogger(), multiPressWindow, multiPressThreshold)
	now := time.Now()

	c.HandleKeyDown(KeyPlayPause, now)
	c.HandleKeyDown(KeyPlayPause, now.Add(100*time.Millisecond))
	c.HandleKeyDown(KeyPlayPause, now.Add(200*time.Millisecond))

	// a fourth press inside the original window starts over as press one
	later := now.Add(300 * time.Millisecond)
	assert.Empty(t, c.HandleKeyDown(KeyPlayPause, later))

	deadline, ok := c.NextDeadline()
	require.True(t, ok)
	assert.Equal(t, later.Add(multiPressWindow), deadline)

	actions := c.Expire(later.Add(multiPressWindow))
	require.Len(t, actions, 1)
	assert.Equal(t, ActionPlayPause, actions[0].Kind)
}

func TestClassifierKeysTrackedIndependently(t *testing.T) {
	c := newPressClassifier(testLogger(), multiPressWindow, multiPressThreshold)
	now := time.Now()

	c.HandleKeyDown(KeyPlayPause, now)
	c.HandleKeyDown(KeyNext, now.Add(100*time.Millisecond))
	c.HandleKeyDown(KeyPlayPause, now.Add(200*time.Millisecond))

	// play/pause has 2 presses, next has 1; neither reached the threshold
	actions := c.HandleKeyDown(KeyNext, now.Add(300*time.Millisecond))
	assert.Empty(t, actions)

	// earliest deadline belongs to the play/pause window
	deadline, ok := c.NextDeadline()
	require.True(t, ok)
	assert.Equal(t, now.Add(multiPressWindow), deadline)

	// both resolve as singles once both windows pass
	actions = c.Expire(now.Add(2 * multiPressWindow))
	require.Len(t, actions, 2)
	kinds := []ActionKind{actions[0].Kind, actions[1].Kind}
	assert.Contains(t, kinds, ActionPlayPause)
	assert.Contains(t, kinds, ActionNextTrack)
}

func TestClassifierIgnoresUnmappedKey(t *testing.T) {
	c := newPressClassifier(testLogger(), multiPressWindow, multiPressThreshold)

	assert.Empty(t, c.HandleKeyDown(Key(99), time.Now()))
	_, pending := c.NextDeadline()
	assert.False(t, pending)
}
