package eight

import (
	"context"
	"errors"

	"github.com/trymwestin/eightsleep/internal/core/api"
)

// baseData is the adjustable-base state. The vendor reports identical
// payloads for both sides.
type baseData struct {
	Left  BaseSideState `json:"left"`
	Right BaseSideState `json:"right"`
}

// BaseSideState holds one side's articulation state. The vendor names the
// two axes leg and torso; user-facing surfaces call them feet and head.
type BaseSideState struct {
	Preset            *BasePreset `json:"preset,omitempty"`
	Leg               BaseAxis    `json:"leg"`
	Torso             BaseAxis    `json:"torso"`
	InSnoreMitigation bool        `json:"inSnoreMitigation"`
}

// BasePreset is a named articulation preset (sleep, relaxing, reading).
type BasePreset struct {
	Name string `json:"name"`
}

// BaseAxis is one articulation axis.
type BaseAxis struct {
	CurrentAngle int `json:"currentAngle"`
}

func (o *Occupant) baseSideLocked() *BaseSideState {
	if o.base == nil {
		return nil
	}
	if o.correctSide(o.side) == SideRight {
		return &o.base.Right
	}
	return &o.base.Left
}

// RefreshBase fetches the base state. A user not paired to a base gets a
// request error from the vendor, which is logged and swallowed since
// absence of the optional capability is an expected condition.
func (o *Occupant) RefreshBase(ctx context.Context) error {
	if !o.client.HasBase() {
		return nil
	}
	var data baseData
	url := o.client.appURL("/v1/users/%s/base", o.userID)
	if err := o.client.gateway.Get(ctx, url, nil, &data); err != nil {
		var reqErr *api.RequestError
		if errors.As(err, &reqErr) {
			o.log.Warn("unable to fetch base data, user may not be paired to a base",
				"error", err)
			return nil
		}
		return err
	}
	o.mu.Lock()
	o.base = &data
	o.mu.Unlock()
	return nil
}

// BasePreset returns the active preset name. The preset disappears from
// the vendor data when a custom angle is in use.
func (o *Occupant) BasePreset() (string, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	side := o.baseSideLocked()
	if side == nil || side.Preset == nil {
		return "", false
	}
	return side.Preset.Name, true
}

// LegAngle returns the feet-end articulation angle.
func (o *Occupant) LegAngle() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if side := o.baseSideLocked(); side != nil {
		return side.Leg.CurrentAngle
	}
	return 0
}

// TorsoAngle returns the head-end articulation angle.
func (o *Occupant) TorsoAngle() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if side := o.baseSideLocked(); side != nil {
		return side.Torso.CurrentAngle
	}
	return 0
}

// InSnoreMitigation reports whether snore mitigation is currently raising
// the base.
func (o *Occupant) InSnoreMitigation() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if side := o.baseSideLocked(); side != nil {
		return side.InSnoreMitigation
	}
	return false
}

// SetBaseAngle sets both articulation angles. The cached state is updated
// before the network call so reads reflect the intent immediately.
func (o *Occupant) SetBaseAngle(ctx context.Context, legAngle, torsoAngle int) error {
	if !o.client.HasBase() {
		return nil
	}

	o.mu.Lock()
	if side := o.baseSideLocked(); side != nil {
		side.Leg.CurrentAngle = legAngle
		side.Torso.CurrentAngle = torsoAngle
	}
	o.mu.Unlock()

	url := o.client.appURL("/v1/users/%s/base/angle?ignoreDeviceErrors=false", o.userID)
	body := map[string]any{
		"deviceId":          o.client.DeviceID(),
		"deviceOnline":      true,
		"legAngle":          legAngle,
		"torsoAngle":        torsoAngle,
		"enableOfflineMode": false,
	}
	return o.client.gateway.Post(ctx, url, body, nil)
}

// SetBasePreset switches the base to a named preset, optimistically
// updating the cached state first.
func (o *Occupant) SetBasePreset(ctx context.Context, preset string) error {
	if !o.client.HasBase() {
		return nil
	}

	o.mu.Lock()
	if side := o.baseSideLocked(); side != nil {
		if side.Preset == nil {
			side.Preset = &BasePreset{}
		}
		side.Preset.Name = preset
	}
	o.mu.Unlock()

	url := o.client.appURL("/v1/users/%s/base/angle?ignoreDeviceErrors=false", o.userID)
	body := map[string]any{
		"deviceId":          o.client.DeviceID(),
		"deviceOnline":      true,
		"preset":            preset,
		"enableOfflineMode": false,
	}
	return o.client.gateway.Post(ctx, url, body, nil)
}
