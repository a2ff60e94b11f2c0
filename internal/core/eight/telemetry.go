package eight

import (
	"fmt"
	"strings"

	"github.com/trymwestin/eightsleep/internal/core/api"
)

// Side is the half of the bed an occupant is assigned to.
type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
	SideSolo  Side = "solo"
	SideAway  Side = "away"

	// SideUnknown marks an occupant the vendor returned without side
	// information. Key access defaults to left in that case.
	SideUnknown Side = ""
)

// ParseSide validates a side value for writes. Only solo, left and right
// are accepted by the vendor's current-device endpoint.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case SideLeft:
		return SideLeft, nil
	case SideRight:
		return SideRight, nil
	case SideSolo:
		return SideSolo, nil
	default:
		return "", &api.ValidationError{Field: "side", Value: s}
	}
}

// DeviceTelemetry is one device-level telemetry snapshot. Every per-side
// field is optional; the vendor regularly omits keys or sends nulls for
// sides that are away or idle.
type DeviceTelemetry struct {
	LeftHeatingLevel       api.MaybeInt  `json:"leftHeatingLevel"`
	LeftTargetHeatingLevel api.MaybeInt  `json:"leftTargetHeatingLevel"`
	LeftNowHeating         api.MaybeBool `json:"leftNowHeating"`
	LeftHeatingDuration    api.MaybeInt  `json:"leftHeatingDuration"`
	LeftPresenceEnd        api.MaybeTime `json:"leftPresenceEnd"`

	RightHeatingLevel       api.MaybeInt  `json:"rightHeatingLevel"`
	RightTargetHeatingLevel api.MaybeInt  `json:"rightTargetHeatingLevel"`
	RightNowHeating         api.MaybeBool `json:"rightNowHeating"`
	RightHeatingDuration    api.MaybeInt  `json:"rightHeatingDuration"`
	RightPresenceEnd        api.MaybeTime `json:"rightPresenceEnd"`

	NeedsPriming api.MaybeBool `json:"needsPriming"`
	Priming      api.MaybeBool `json:"priming"`
	HasWater     api.MaybeBool `json:"hasWater"`
	LastPrime    api.MaybeTime `json:"lastPrime"`
}

// HeatingLevel returns the heating level for a concrete side.
func (t *DeviceTelemetry) HeatingLevel(side Side) api.MaybeInt {
	if side == SideRight {
		return t.RightHeatingLevel
	}
	return t.LeftHeatingLevel
}

// TargetHeatingLevel returns the target level for a concrete side.
func (t *DeviceTelemetry) TargetHeatingLevel(side Side) api.MaybeInt {
	if side == SideRight {
		return t.RightTargetHeatingLevel
	}
	return t.LeftTargetHeatingLevel
}

// NowHeating returns the active-heating flag for a concrete side.
func (t *DeviceTelemetry) NowHeating(side Side) api.MaybeBool {
	if side == SideRight {
		return t.RightNowHeating
	}
	return t.LeftNowHeating
}

// HeatingDuration returns the remaining heat/cool seconds for a side.
func (t *DeviceTelemetry) HeatingDuration(side Side) api.MaybeInt {
	if side == SideRight {
		return t.RightHeatingDuration
	}
	return t.LeftHeatingDuration
}

// PresenceEnd returns the vendor's last-seen timestamp for a side. The
// values are rarely updated correctly upstream, treat with suspicion.
func (t *DeviceTelemetry) PresenceEnd(side Side) api.MaybeTime {
	if side == SideRight {
		return t.RightPresenceEnd
	}
	return t.LeftPresenceEnd
}

func (t *DeviceTelemetry) String() string {
	l, _ := t.LeftHeatingLevel.Value()
	r, _ := t.RightHeatingLevel.Value()
	return fmt.Sprintf("telemetry{left:%d right:%d}", l, r)
}
