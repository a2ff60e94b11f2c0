// Package eightsleep provides a public facade re-exporting core types
// for external consumers of this module.
package eightsleep

import (
	"github.com/trymwestin/eightsleep/internal/core/api"
	"github.com/trymwestin/eightsleep/internal/core/auth"
	"github.com/trymwestin/eightsleep/internal/core/eight"
	"github.com/trymwestin/eightsleep/internal/core/state"
	"github.com/trymwestin/eightsleep/internal/core/units"
)

// Re-export core types for external use.
type (
	// Credentials holds vendor account credentials.
	Credentials = auth.Credentials
	// Token holds an access token and its expiry.
	Token = auth.Token
	// TokenManager caches and refreshes access tokens.
	TokenManager = auth.TokenManager
	// Gateway is the authenticated HTTP gateway to the vendor cloud.
	Gateway = api.Gateway
	// RequestError reports a failed cloud request.
	RequestError = api.RequestError
	// ValidationError reports a rejected input value.
	ValidationError = api.ValidationError
	// Client manages one account's devices and occupants.
	Client = eight.Client
	// Options configure a Client.
	Options = eight.Options
	// Occupant is one person's side of the bed.
	Occupant = eight.Occupant
	// Side identifies a bed side.
	Side = eight.Side
	// DeviceTelemetry is one raw telemetry snapshot.
	DeviceTelemetry = eight.DeviceTelemetry
	// TrendDay is one day of sleep trend data.
	TrendDay = eight.TrendDay
	// Routine is one configured sleep routine.
	Routine = eight.Routine
	// Alarm is one routine alarm.
	Alarm = eight.Alarm
	// OneOffAlarm describes a single-fire alarm.
	OneOffAlarm = eight.OneOffAlarm
	// Metric identifies one per-occupant reading.
	Metric = eight.Metric
	// Unit is a temperature unit.
	Unit = units.Unit
	// Event represents a state change event.
	Event = state.Event
	// EventType identifies event categories.
	EventType = state.EventType
	// EventBus fans out state change events.
	EventBus = state.EventBus
)

// Side constants.
const (
	SideLeft    = eight.SideLeft
	SideRight   = eight.SideRight
	SideSolo    = eight.SideSolo
	SideAway    = eight.SideAway
	SideUnknown = eight.SideUnknown
)

// Temperature unit constants.
const (
	Celsius    = units.Celsius
	Fahrenheit = units.Fahrenheit
)

// Event type constants.
const (
	EventTelemetryUpdate = state.EventTelemetryUpdate
	EventUserUpdate      = state.EventUserUpdate
	EventPresenceUpdate  = state.EventPresenceUpdate
	EventBaseUpdate      = state.EventBaseUpdate
	EventSpeakerUpdate   = state.EventSpeakerUpdate
)

// Constructors.
var (
	// NewTokenManager creates a token manager for the given credentials.
	NewTokenManager = auth.NewTokenManager
	// NewGateway creates an authenticated gateway.
	NewGateway = api.NewGateway
	// NewClient creates a client for one account.
	NewClient = eight.NewClient
	// NewEventBus creates an event bus.
	NewEventBus = state.NewEventBus
	// ParseSide parses a side name.
	ParseSide = eight.ParseSide
	// ParseUnit parses a temperature unit name.
	ParseUnit = units.ParseUnit
	// Metrics lists all metric ids.
	Metrics = eight.Metrics
)
