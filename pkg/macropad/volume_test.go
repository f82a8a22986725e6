package macropad

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testLimits() volumeLimits {
	return volumeLimits{
		PrimaryStep:          3,
		PrimaryMax:           50,
		PrimaryMinGrouping:   10,
		SecondaryStep:        2,
		SecondaryMax:         40,
		SecondaryMinGrouping: 5,
	}
}

func TestResolveVolumeClampsToPrimaryMax(t *testing.T) {
	snap := groupSnapshot{Primary: "Living Room", PrimaryVolume: 48}

	changes := resolveVolume(9, testLimits(), snap)
	assert.Equal(t, []volumeChange{{Room: "Living Room", Target: 50}}, changes)
}

func TestResolveVolumeClampsToZero(t *testing.T) {
	snap := groupSnapshot{Primary: "Living Room", PrimaryVolume: 4}

	changes := resolveVolume(-9, testLimits(), snap)
	assert.Equal(t, []volumeChange{{Room: "Living Room", Target: 0}}, changes)
}

func TestResolveVolumeNoChangeOmitted(t *testing.T) {
	snap := groupSnapshot{Primary: "Living Room", PrimaryVolume: 50}

	assert.Empty(t, resolveVolume(9, testLimits(), snap), "already at max, nothing to send")
}

func TestResolveVolumeScalesSecondaries(t *testing.T) {
	snap := groupSnapshot{
		Primary:       "Living Room",
		PrimaryVolume: 30,
		Grouped: []roomVolume{
			{Room: "Kitchen", Volume: 20},
			{Room: "Bedroom", Volume: 39},
		},
	}

	// primary +9 at step 3 scales to +6 at secondary step 2
	changes := resolveVolume(9, testLimits(), snap)
	assert.Equal(t, []volumeChange{
		{Room: "Living Room", Target: 39},
		{Room: "Kitchen", Target: 26},
		{Room: "Bedroom", Target: 40},
	}, changes)
}

func TestResolveVolumeSecondaryDeltaNeverRoundsToZero(t *testing.T) {
	limits := testLimits()
	limits.PrimaryStep = 5
	limits.SecondaryStep = 1

	snap := groupSnapshot{
		Primary:       "Living Room",
		PrimaryVolume: 30,
		Grouped:       []roomVolume{{Room: "Kitchen", Volume: 20}},
	}

	// 3*1/5 truncates to 0; the minimum movement is still one unit
	changes := resolveVolume(3, limits, snap)
	assert.Equal(t, []volumeChange{
		{Room: "Living Room", Target: 33},
		{Room: "Kitchen", Target: 21},
	}, changes)

	changes = resolveVolume(-3, limits, snap)
	assert.Equal(t, []volumeChange{
		{Room: "Living Room", Target: 27},
		{Room: "Kitchen", Target: 19},
	}, changes)
}

func TestResolveVolumePrimaryAtZeroMutesGroup(t *testing.T) {
	snap := groupSnapshot{
		Primary:       "Living Room",
		PrimaryVolume: 2,
		Grouped: []roomVolume{
			{Room: "Kitchen", Volume: 25},
			{Room: "Bedroom", Volume: 12},
		},
	}

	changes := resolveVolume(-3, testLimits(), snap)
	assert.Equal(t, []volumeChange{
		{Room: "Living Room", Target: 0},
		{Room: "Kitchen", Target: 0},
		{Room: "Bedroom", Target: 0},
	}, changes)
}

func TestResolveVolumeUpwardNeverMutes(t *testing.T) {
	// a positive delta with the primary already at 0 must not trip the
	// mute-all path
	snap := groupSnapshot{
		Primary:       "Living Room",
		PrimaryVolume: 0,
		Grouped:       []roomVolume{{Room: "Kitchen", Volume: 10}},
	}

	changes := resolveVolume(3, testLimits(), snap)
	assert.Equal(t, []volumeChange{
		{Room: "Living Room", Target: 3},
		{Room: "Kitchen", Target: 12},
	}, changes)
}

func TestResolveSecondaryVolumeLeavesPrimaryAlone(t *testing.T) {
	snap := groupSnapshot{
		Primary:       "Living Room",
		PrimaryVolume: 30,
		Grouped: []roomVolume{
			{Room: "Kitchen", Volume: 39},
			{Room: "Bedroom", Volume: 10},
		},
	}

	changes := resolveSecondaryVolume(4, testLimits(), snap)
	assert.Equal(t, []volumeChange{
		{Room: "Kitchen", Target: 40},
		{Room: "Bedroom", Target: 14},
	}, changes)
}

func TestResolveGroupingFloorsQuietRooms(t *testing.T) {
	snap := groupSnapshot{
		Primary:       "Living Room",
		PrimaryVolume: 4,
		Grouped: []roomVolume{
			{Room: "Kitchen", Volume: 2},
			{Room: "Bedroom", Volume: 15},
			{Room: "Office", Volume: 55},
		},
	}

	changes := resolveGrouping(testLimits(), snap)
	assert.Equal(t, []volumeChange{
		{Room: "Living Room", Target: 10},
		{Room: "Kitchen", Target: 5},
		{Room: "Office", Target: 40},
	}, changes)
}

func TestResolveGroupingNoChangesWhenInRange(t *testing.T) {
	snap := groupSnapshot{
		Primary:       "Living Room",
		PrimaryVolume: 25,
		Grouped:       []roomVolume{{Room: "Kitchen", Volume: 20}},
	}

	assert.Empty(t, resolveGrouping(testLimits(), snap))
}
