package macropad

import (
	"github.com/jaredtrent/sonos-macropad/pkg/macropad/util"
)

// volumeLimits carries the user-configured volume policy for the primary room
// and its grouped secondaries. All values are absolute volume units (0-100).
type volumeLimits struct {
	PrimaryStep          int
	PrimaryMax           int
	PrimaryMinGrouping   int
	SecondaryStep        int
	SecondaryMax         int
	SecondaryMinGrouping int
}

type roomVolume struct {
	Room   string
	Volume int
}

// groupSnapshot is a point-in-time read of the primary room's volume and the
// secondary rooms currently grouped with it. Grouped is empty when the
// primary plays alone.
type groupSnapshot struct {
	Primary       string
	PrimaryVolume int
	Grouped       []roomVolume
}

// volumeChange is one absolute volume target for one room.
type volumeChange struct {
	Room   string
	Target int
}

// resolveVolume computes the per-room volume targets for a net primary-room
// delta. The primary clamps to [0, PrimaryMax]; each grouped secondary moves
// by a proportionally scaled delta clamped to [0, SecondaryMax]. Turning the
// primary all the way down also silences every grouped room, so the group
// goes quiet together instead of leaving secondaries playing headless.
// Rooms whose volume wouldn't change are omitted.
func resolveVolume(delta int, limits volumeLimits, snap groupSnapshot) []volumeChange {
	var changes []volumeChange

	primaryTarget := util.Clamp(snap.PrimaryVolume+delta, 0, limits.PrimaryMax)
	if primaryTarget != snap.PrimaryVolume {
		changes = append(changes, volumeChange{Room: snap.Primary, Target: primaryTarget})
	}

	muteAll := delta < 0 && primaryTarget == 0
	secondaryDelta := scaleSecondaryDelta(delta, limits)

	for _, room := range snap.Grouped {
		target := util.Clamp(room.Volume+secondaryDelta, 0, limits.SecondaryMax)
		if muteAll {
			target = 0
		}
		if target != room.Volume {
			changes = append(changes, volumeChange{Room: room.Room, Target: target})
		}
	}

	return changes
}

// resolveSecondaryVolume computes targets for a delta applied to grouped
// secondary rooms only, leaving the primary untouched.
func resolveSecondaryVolume(delta int, limits volumeLimits, snap groupSnapshot) []volumeChange {
	var changes []volumeChange

	for _, room := range snap.Grouped {
		target := util.Clamp(room.Volume+delta, 0, limits.SecondaryMax)
		if target != room.Volume {
			changes = append(changes, volumeChange{Room: room.Room, Target: target})
		}
	}

	return changes
}

// resolveGrouping raises rooms that sit below their minimum grouping volume
// and pulls secondaries above their cap back down, so a freshly formed group
// starts at a sane level no matter what each room was set to beforehand.
func resolveGrouping(limits volumeLimits, snap groupSnapshot) []volumeChange {
	var changes []volumeChange

	if snap.PrimaryVolume < limits.PrimaryMinGrouping {
		changes = append(changes, volumeChange{Room: snap.Primary, Target: limits.PrimaryMinGrouping})
	}

	for _, room := range snap.Grouped {
		switch {
		case room.Volume < limits.SecondaryMinGrouping:
			changes = append(changes, volumeChange{Room: room.Room, Target: limits.SecondaryMinGrouping})
		case room.Volume > limits.SecondaryMax:
			changes = append(changes, volumeChange{Room: room.Room, Target: limits.SecondaryMax})
		}
	}

	return changes
}

// scaleSecondaryDelta translates a primary-room delta into the proportional
// secondary-room delta, keeping at least one unit of movement so small
// primary nudges still register in grouped rooms.
func scaleSecondaryDelta(delta int, limits volumeLimits) int {
	if delta == 0 || limits.PrimaryStep == 0 {
		return 0
	}

	scaled := delta * limits.SecondaryStep / limits.PrimaryStep
	if scaled == 0 {
		if delta > 0 {
			return 1
		}
		return -1
	}

	return scaled
}
