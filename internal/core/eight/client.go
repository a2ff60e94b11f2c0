// Package eight is the client core for the vendor's cloud platform: device
// and occupant discovery, the rolling telemetry window, per-occupant sleep
// data and actuation, and the heating-level presence estimator.
package eight

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/trymwestin/eightsleep/internal/core/api"
	"github.com/trymwestin/eightsleep/internal/core/state"
)

// telemetryHistorySize bounds the device telemetry ring, newest first.
const telemetryHistorySize = 10

// Options configure a Client. URLs are overridable so tests can point at
// local fake servers.
type Options struct {
	ClientAPIURL string
	AppAPIURL    string
	Timezone     *time.Location
}

// Client is the top-level session for one account. It owns the device
// record, the telemetry history and the occupant map.
type Client struct {
	gateway   *api.Gateway
	bus       *state.EventBus
	log       *slog.Logger
	clientAPI string
	appAPI    string
	timezone  *time.Location

	mu             sync.RWMutex
	deviceIDs      []string
	coolingCapable bool
	hasBase        bool
	hasSpeaker     bool
	telemetry      []*DeviceTelemetry
	occupants      map[string]*Occupant
	closed         bool
}

// NewClient creates a client. Discovery has not run yet; call Start before
// using any accessor.
func NewClient(gateway *api.Gateway, bus *state.EventBus, opts Options, log *slog.Logger) *Client {
	tz := opts.Timezone
	if tz == nil {
		tz = time.UTC
	}
	return &Client{
		gateway:   gateway,
		bus:       bus,
		log:       log,
		clientAPI: opts.ClientAPIURL,
		appAPI:    opts.AppAPIURL,
		timezone:  tz,
		occupants: make(map[string]*Occupant),
	}
}

// Start runs device and occupant discovery.
func (c *Client) Start(ctx context.Context) error {
	c.log.Debug("initializing client")
	if err := c.DiscoverDevices(ctx); err != nil {
		return err
	}
	return c.DiscoverUsers(ctx)
}

// Close marks the client shut down. All in-flight refreshes are expected to
// have been stopped by the caller (the poller owns the refresh lifecycle).
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.log.Debug("client closed")
}

func (c *Client) clientURL(format string, args ...any) string {
	return c.clientAPI + fmt.Sprintf(format, args...)
}

func (c *Client) appURL(format string, args ...any) string {
	return c.appAPI + fmt.Sprintf(format, args...)
}

type accountResponse struct {
	User struct {
		UserID   string   `json:"userId"`
		Devices  []string `json:"devices"`
		Features []string `json:"features"`
	} `json:"user"`
}

// DiscoverDevices fetches the account summary and derives the device list
// and capability flags from the feature tokens.
func (c *Client) DiscoverDevices(ctx context.Context) error {
	var resp accountResponse
	if err := c.gateway.Get(ctx, c.clientURL("/users/me"), nil, &resp); err != nil {
		return err
	}
	if len(resp.User.Devices) == 0 {
		return fmt.Errorf("eight: account has no devices")
	}

	c.mu.Lock()
	c.deviceIDs = resp.User.Devices
	c.coolingCapable = false
	c.hasBase = false
	c.hasSpeaker = false
	for _, feature := range resp.User.Features {
		switch feature {
		case "cooling":
			c.coolingCapable = true
		case "elevation":
			c.hasBase = true
		case "audio":
			c.hasSpeaker = true
		}
	}
	c.mu.Unlock()

	c.log.Debug("discovered devices",
		"devices", resp.User.Devices,
		"cooling", c.IsCoolingCapable(),
		"base", c.HasBase(),
		"speaker", c.HasSpeaker())
	return nil
}

type deviceSidesResponse struct {
	Result struct {
		LeftUserID  string            `json:"leftUserId"`
		RightUserID string            `json:"rightUserId"`
		AwaySides   map[string]string `json:"awaySides"`
	} `json:"result"`
}

type userProfileResponse struct {
	User UserProfile `json:"user"`
}

// DiscoverUsers fetches the side assignment for the first device and
// instantiates one Occupant per unique user, away users included. The
// awaySides key only appears when at least one user is away.
func (c *Client) DiscoverUsers(ctx context.Context) error {
	deviceID := c.DeviceID()
	if deviceID == "" {
		return fmt.Errorf("eight: discover users before devices")
	}

	var resp deviceSidesResponse
	url := c.clientURL("/devices/%s", deviceID)
	params := map[string]string{"filter": "leftUserId,rightUserId,awaySides"}
	if err := c.gateway.Get(ctx, url, params, &resp); err != nil {
		return err
	}

	ids := map[string]struct{}{}
	if resp.Result.LeftUserID != "" {
		ids[resp.Result.LeftUserID] = struct{}{}
	}
	if resp.Result.RightUserID != "" {
		ids[resp.Result.RightUserID] = struct{}{}
	}
	for _, id := range resp.Result.AwaySides {
		if id != "" {
			ids[id] = struct{}{}
		}
	}

	for userID := range ids {
		var profile userProfileResponse
		if err := c.gateway.Get(ctx, c.clientURL("/users/%s", userID), nil, &profile); err != nil {
			return err
		}
		side := Side(profile.User.CurrentDevice.Side)
		if side == SideUnknown {
			c.log.Warn("user has no side information, key access will default to left",
				"user_id", userID)
		}

		c.mu.Lock()
		occ, known := c.occupants[userID]
		if !known {
			occ = newOccupant(c, userID, side, c.log)
			c.occupants[userID] = occ
		}
		c.mu.Unlock()

		if !known {
			occ.setProfile(profile.User)
		}
	}
	return nil
}

type deviceTelemetryResponse struct {
	Result DeviceTelemetry `json:"result"`
}

// RefreshTelemetry fetches the current device snapshot, prepends it to the
// bounded history and recomputes presence for every occupant.
func (c *Client) RefreshTelemetry(ctx context.Context) error {
	var resp deviceTelemetryResponse
	if err := c.gateway.Get(ctx, c.clientURL("/devices/%s", c.DeviceID()), nil, &resp); err != nil {
		return err
	}

	c.mu.Lock()
	c.telemetry = append([]*DeviceTelemetry{&resp.Result}, c.telemetry...)
	if len(c.telemetry) > telemetryHistorySize {
		c.telemetry = c.telemetry[:telemetryHistorySize]
	}
	c.mu.Unlock()

	c.bus.Publish(state.Event{Type: state.EventTelemetryUpdate, Data: &resp.Result})

	for _, occ := range c.Occupants() {
		occ.LogHeatingStats()
		if changed := occ.recomputePresence(); changed {
			c.bus.Publish(state.Event{
				Type:   state.EventPresenceUpdate,
				UserID: occ.UserID(),
				Data:   occ.Present(),
			})
		}
	}
	return nil
}

// RefreshUsers refreshes every occupant's trend, routine and temperature
// data and publishes an update event per occupant.
func (c *Client) RefreshUsers(ctx context.Context) error {
	for _, occ := range c.Occupants() {
		if err := occ.RefreshUser(ctx); err != nil {
			return err
		}
		c.bus.Publish(state.Event{Type: state.EventUserUpdate, UserID: occ.UserID()})
	}
	return nil
}

// RefreshBase refreshes the bed base data. The payload is identical for
// both sides so one occupant's fetch covers the device.
func (c *Client) RefreshBase(ctx context.Context) error {
	occ := c.BaseOccupant()
	if occ == nil {
		return nil
	}
	if err := occ.RefreshBase(ctx); err != nil {
		return err
	}
	c.bus.Publish(state.Event{Type: state.EventBaseUpdate, UserID: occ.UserID()})
	return nil
}

// RefreshSpeaker refreshes the speaker player state.
func (c *Client) RefreshSpeaker(ctx context.Context) error {
	occ := c.SpeakerOccupant()
	if occ == nil {
		return nil
	}
	if err := occ.RefreshPlayerState(ctx); err != nil {
		return err
	}
	c.bus.Publish(state.Event{Type: state.EventSpeakerUpdate, UserID: occ.UserID()})
	return nil
}

// DeviceID returns the first discovered device id. Multi-device accounts
// are not supported.
func (c *Client) DeviceID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.deviceIDs) == 0 {
		return ""
	}
	return c.deviceIDs[0]
}

// IsCoolingCapable reports whether the device can actively cool.
func (c *Client) IsCoolingCapable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.coolingCapable
}

// HasBase reports whether the device has an adjustable base.
func (c *Client) HasBase() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hasBase
}

// HasSpeaker reports whether the device has a speaker.
func (c *Client) HasSpeaker() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hasSpeaker
}

// Timezone returns the account timezone used for trend queries and
// timestamp presentation.
func (c *Client) Timezone() *time.Location {
	return c.timezone
}

// Telemetry returns the newest telemetry snapshot, or nil before the first
// refresh.
func (c *Client) Telemetry() *DeviceTelemetry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.telemetry) == 0 {
		return nil
	}
	return c.telemetry[0]
}

// TelemetryHistory returns the telemetry ring, newest first.
func (c *Client) TelemetryHistory() []*DeviceTelemetry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*DeviceTelemetry, len(c.telemetry))
	copy(out, c.telemetry)
	return out
}

// NeedsPriming reports whether the pod wants a priming cycle.
func (c *Client) NeedsPriming() (bool, bool) {
	if t := c.Telemetry(); t != nil {
		return t.NeedsPriming.Value()
	}
	return false, false
}

// IsPriming reports whether a priming cycle is running.
func (c *Client) IsPriming() (bool, bool) {
	if t := c.Telemetry(); t != nil {
		return t.Priming.Value()
	}
	return false, false
}

// HasWater reports the water-level-ok flag.
func (c *Client) HasWater() (bool, bool) {
	if t := c.Telemetry(); t != nil {
		return t.HasWater.Value()
	}
	return false, false
}

// LastPrime returns the time of the last priming cycle.
func (c *Client) LastPrime() (time.Time, bool) {
	if t := c.Telemetry(); t != nil {
		return t.LastPrime.In(c.timezone)
	}
	return time.Time{}, false
}

// Occupants returns all discovered occupants.
func (c *Client) Occupants() []*Occupant {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Occupant, 0, len(c.occupants))
	for _, occ := range c.occupants {
		out = append(out, occ)
	}
	return out
}

// Occupant returns the occupant with the given user id, or nil.
func (c *Client) Occupant(userID string) *Occupant {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.occupants[userID]
}

// OccupantBySide returns the occupant assigned to the given side, or nil.
func (c *Client) OccupantBySide(side Side) *Occupant {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, occ := range c.occupants {
		if occ.Side() == side {
			return occ
		}
	}
	return nil
}

// BaseOccupant returns an occupant usable for base reads and writes. The
// base data is shared, any occupant works.
func (c *Client) BaseOccupant() *Occupant {
	if !c.HasBase() {
		return nil
	}
	return c.anyOccupant()
}

// SpeakerOccupant returns an occupant usable for speaker control.
func (c *Client) SpeakerOccupant() *Occupant {
	if !c.HasSpeaker() {
		return nil
	}
	return c.anyOccupant()
}

func (c *Client) anyOccupant() *Occupant {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, occ := range c.occupants {
		return occ
	}
	return nil
}

// RoomTemperature aggregates the room temperature across occupants.
// Readings from actively processing sessions are preferred; when both
// sides qualify the values are averaged.
func (c *Client) RoomTemperature() (float64, bool) {
	merge := func(slot *float64, v float64) *float64 {
		if slot == nil {
			return &v
		}
		avg := (*slot + v) / 2
		return &avg
	}

	var active, idle *float64
	for _, occ := range c.Occupants() {
		temp, ok := occ.CurrentRoomTemp()
		if !ok {
			continue
		}
		if processing, ok := occ.CurrentSessionProcessing(); ok && processing {
			active = merge(active, temp)
		} else {
			idle = merge(idle, temp)
		}
	}
	if active != nil {
		return *active, true
	}
	if idle != nil {
		return *idle, true
	}
	return 0, false
}
