package macropad

import (
	"time"

	"go.uber.org/zap"
)

// volumeBurst tracks one in-flight run of rapid knob turns. The deadline is
// fixed at the first turn; later turns inside the window only grow the delta.
type volumeBurst struct {
	delta    int
	turns    int
	deadline time.Time
}

// burstAccumulator coalesces rapid knob turns into a single net volume
// command. Without it, spinning the knob fires one API round-trip per detent;
// with it, a burst collapses into one queued action carrying the summed delta.
//
// Up and down turns feed the same burst, so the emitted delta is the signed
// net movement. Like the classifier, this is owned by the dispatch lane and
// is not safe for concurrent use.
type burstAccumulator struct {
	logger *zap.SugaredLogger
	window time.Duration
	step   int

	burst *volumeBurst
}

func newBurstAccumulator(logger *zap.SugaredLogger, window time.Duration, step int) *burstAccumulator {
	return &burstAccumulator{
		logger: logger.Named("accumulator"),
		window: window,
		step:   step,
	}
}

// HandleTurn records one knob detent. direction is +1 for up, -1 for down.
// The first turn after an idle period opens the burst window; the window is
// measured from that first turn and is NOT extended by later turns, which
// bounds the worst-case latency between turning the knob and hearing a change.
func (a *burstAccumulator) HandleTurn(direction int, now time.Time) {
	if a.burst == nil {
		a.burst = &volumeBurst{deadline: now.Add(a.window)}
	}

	a.burst.delta += direction * a.step
	a.burst.turns++
	a.logger.Debugw("Knob turn accumulated",
		"direction", direction, "delta", a.burst.delta, "turns", a.burst.turns)
}

// Flush resolves the burst if its window has elapsed, returning at most one
// volume action with the accumulated net delta. A burst that nets out to zero
// is discarded without emitting anything. Flushing when no burst is due is a
// no-op, so a stray extra timer tick can never double-enqueue.
func (a *burstAccumulator) Flush(now time.Time) []QueuedAction {
	if a.burst == nil || a.burst.deadline.After(now) {
		return nil
	}

	burst := a.burst
	a.burst = nil

	if burst.delta == 0 {
		a.logger.Debugw("Knob burst netted to zero, nothing to do", "turns", burst.turns)
		return nil
	}

	if burst.turns > 1 {
		a.logger.Infow("Knob burst resolved", "turns", burst.turns, "delta", burst.delta)
	}

	return []QueuedAction{{Kind: ActionVolumePrimary, Delta: burst.delta, EnqueueTime: now}}
}

// NextDeadline returns the active burst's flush deadline, if any.
func (a *burstAccumulator) NextDeadline() (time.Time, bool) {
	if a.burst == nil {
		return time.Time{}, false
	}
	return a.burst.deadline, true
}
