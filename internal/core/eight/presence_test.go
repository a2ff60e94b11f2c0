package eight

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trymwestin/eightsleep/internal/core/state"
)

// pushLevels feeds successive idle telemetry snapshots, oldest first.
func pushLevels(t *testing.T, f *fakeVendor, c *Client, levels ...int) {
	t.Helper()
	for _, level := range levels {
		f.setTelemetry(fmt.Sprintf(
			`{"leftHeatingLevel": %d, "leftTargetHeatingLevel": 0, "leftNowHeating": false}`, level))
		require.NoError(t, c.RefreshTelemetry(context.Background()))
	}
}

func TestRisingLevelsWithoutHeatingIsPresent(t *testing.T) {
	f := &fakeVendor{leftUser: "user-l"}
	c, _ := newTestClient(t, f)
	occ := c.Occupant("user-l")

	pushLevels(t, f, c, 10, 20, 30)
	assert.False(t, occ.Present(), "three samples are not enough history for the trend path")

	pushLevels(t, f, c, 45)
	assert.True(t, occ.Present(), "rising run above 25 while idle implies a body")
}

func TestHighWorkingLevelAloneIsPresent(t *testing.T) {
	f := &fakeVendor{features: []string{"cooling"}, leftUser: "user-l"}
	c, _ := newTestClient(t, f)
	occ := c.Occupant("user-l")

	pushLevels(t, f, c, 60)
	assert.True(t, occ.Present(), "working level above 50 needs no trend history")
	assert.Equal(t, 0, occ.ObservedLow())
}

func TestLowWorkingLevelFailsafeClearsPresence(t *testing.T) {
	f := &fakeVendor{features: []string{"cooling"}, leftUser: "user-l"}
	c, _ := newTestClient(t, f)
	occ := c.Occupant("user-l")

	pushLevels(t, f, c, 60)
	require.True(t, occ.Present())

	pushLevels(t, f, c, 10)
	assert.False(t, occ.Present(), "working level at or below 15 always clears presence")
}

func TestObservedLowShiftsBaselineOnCoolingDevices(t *testing.T) {
	f := &fakeVendor{features: []string{"cooling"}, leftUser: "user-l"}
	c, _ := newTestClient(t, f)
	occ := c.Occupant("user-l")

	// The device rests at a negative level; the low-water mark records it.
	pushLevels(t, f, c, -40)
	assert.Equal(t, -40, occ.ObservedLow())
	assert.False(t, occ.Present())

	// Raw level 20 means working level 60 relative to the baseline.
	pushLevels(t, f, c, 20)
	assert.True(t, occ.Present())
}

func TestActiveHeatingSuppressesPresenceWithoutResidualGap(t *testing.T) {
	f := &fakeVendor{leftUser: "user-l"}
	c, _ := newTestClient(t, f)
	occ := c.Occupant("user-l")

	// Level tracks the target exactly while heating: no residual heat, so
	// the level alone must not flip presence.
	f.setTelemetry(`{"leftHeatingLevel": 60, "leftTargetHeatingLevel": 60, "leftNowHeating": true}`)
	require.NoError(t, c.RefreshTelemetry(context.Background()))
	assert.False(t, occ.Present())

	// Level well above the target while heating: a body adds heat the
	// control loop did not ask for.
	f.setTelemetry(`{"leftHeatingLevel": 60, "leftTargetHeatingLevel": 10, "leftNowHeating": true}`)
	require.NoError(t, c.RefreshTelemetry(context.Background()))
	assert.True(t, occ.Present())
}

func TestFallingRunBelowCeilingClearsPresence(t *testing.T) {
	f := &fakeVendor{leftUser: "user-l"}
	c, _ := newTestClient(t, f)
	occ := c.Occupant("user-l")

	pushLevels(t, f, c, 10, 20, 30, 55)
	require.True(t, occ.Present())

	// Strictly falling but still above the failsafe; the non-cooling
	// ceiling is 50.
	pushLevels(t, f, c, 48, 40, 33)
	assert.False(t, occ.Present())
}

func TestMissingLevelLeavesPresenceUntouched(t *testing.T) {
	f := &fakeVendor{leftUser: "user-l"}
	c, _ := newTestClient(t, f)
	occ := c.Occupant("user-l")

	pushLevels(t, f, c, 60)
	require.True(t, occ.Present())

	// A snapshot without the side key falls back through history, keeping
	// the last known level and with it the presence state.
	f.setTelemetry(`{"hasWater": true}`)
	require.NoError(t, c.RefreshTelemetry(context.Background()))
	assert.True(t, occ.Present())
}

func TestPresenceFlipPublishesEvent(t *testing.T) {
	f := &fakeVendor{leftUser: "user-l"}
	c, bus := newTestClient(t, f)

	ch, unsub := bus.Subscribe(16)
	defer unsub()

	pushLevels(t, f, c, 60)

	var got *state.Event
	for len(ch) > 0 {
		evt := <-ch
		if evt.Type == state.EventPresenceUpdate {
			got = &evt
			break
		}
	}
	require.NotNil(t, got, "presence flip must publish an event")
	assert.Equal(t, "user-l", got.UserID)
	assert.Equal(t, true, got.Data)
}

func TestEndToEndDiscoveryAndPresence(t *testing.T) {
	f := &fakeVendor{
		features:  []string{"cooling", "elevation"},
		leftUser:  "user-l",
		rightUser: "user-r",
	}
	c, _ := newTestClient(t, f)

	assert.True(t, c.IsCoolingCapable())
	assert.True(t, c.HasBase())
	require.Len(t, c.Occupants(), 2)

	f.setTelemetry(`{"leftHeatingLevel": 60, "leftTargetHeatingLevel": 0, "leftNowHeating": false}`)
	require.NoError(t, c.RefreshTelemetry(context.Background()))

	left := c.Occupant("user-l")
	assert.True(t, left.Present())
	assert.Equal(t, 0, left.ObservedLow())

	// The right side has no telemetry at all; its presence stays false.
	right := c.Occupant("user-r")
	assert.False(t, right.Present())
}
