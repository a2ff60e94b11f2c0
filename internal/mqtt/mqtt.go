// Package mqtt provides MQTT publishing for Home Assistant integration.
// It defines the Publisher interface and includes both a StubPublisher
// (no-op) and a full HAPublisher that connects to an MQTT broker,
// publishes HA auto-discovery configs for every bed occupant, relays
// command topics to the client, and forwards state updates from the
// EventBus.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/trymwestin/eightsleep/internal/core/eight"
	"github.com/trymwestin/eightsleep/internal/core/state"
)

// ---------------------------------------------------------------------------
// Publisher interface
// ---------------------------------------------------------------------------

// Publisher sends events and state to an MQTT broker.
type Publisher interface {
	// Start begins publishing events from the event bus.
	Start(ctx context.Context) error
	// Stop shuts down the publisher.
	Stop(ctx context.Context) error
}

// ---------------------------------------------------------------------------
// StubPublisher (no-op, used when MQTT is disabled)
// ---------------------------------------------------------------------------

// StubPublisher is a no-op publisher for when MQTT is not configured.
type StubPublisher struct {
	log *slog.Logger
}

// NewStubPublisher creates a no-op MQTT publisher.
func NewStubPublisher(log *slog.Logger) *StubPublisher {
	return &StubPublisher{log: log}
}

// Start is a no-op.
func (s *StubPublisher) Start(_ context.Context) error {
	s.log.Info("MQTT publisher disabled (stub)")
	return nil
}

// Stop is a no-op.
func (s *StubPublisher) Stop(_ context.Context) error {
	return nil
}

// Ensure StubPublisher implements Publisher.
var _ Publisher = (*StubPublisher)(nil)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// MQTTConfig holds MQTT publisher configuration.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	DeviceName  string `yaml:"device_name"`
}

// ---------------------------------------------------------------------------
// Bed – abstraction over the client surface the publisher consumes
// ---------------------------------------------------------------------------

// Bed is the client surface the publisher reads state from and relays
// commands to, kept as an interface so tests can substitute it.
type Bed interface {
	DeviceID() string
	IsCoolingCapable() bool
	HasBase() bool
	HasSpeaker() bool
	Occupants() []*eight.Occupant
	Occupant(userID string) *eight.Occupant
	RoomTemperature() (float64, bool)
	NeedsPriming() (bool, bool)
	IsPriming() (bool, bool)
	HasWater() (bool, bool)
}

// ---------------------------------------------------------------------------
// HAPublisher – full Home Assistant MQTT implementation
// ---------------------------------------------------------------------------

// Ensure HAPublisher implements Publisher at compile time.
var _ Publisher = (*HAPublisher)(nil)

// HAPublisher publishes Home Assistant auto-discovery configs, subscribes
// to command topics and relays commands to the bed, and forwards state
// updates from the EventBus.
type HAPublisher struct {
	cfg MQTTConfig
	bed Bed
	bus *state.EventBus
	log *slog.Logger

	client pahomqtt.Client

	unsub func() // EventBus unsubscribe
	stopC chan struct{}
	wg    sync.WaitGroup
}

// NewHAPublisher creates a new Home Assistant MQTT publisher.
func NewHAPublisher(cfg MQTTConfig, bed Bed, bus *state.EventBus, log *slog.Logger) *HAPublisher {
	return &HAPublisher{
		cfg:   cfg,
		bed:   bed,
		bus:   bus,
		log:   log,
		stopC: make(chan struct{}),
	}
}

// ---------------------------------------------------------------------------
// Start / Stop
// ---------------------------------------------------------------------------

// Start connects to the MQTT broker, publishes discovery configs,
// subscribes to command topics, publishes initial state, and starts
// listening on the EventBus for real-time updates.
func (p *HAPublisher) Start(_ context.Context) error {
	availTopic := p.topic("status")

	opts := pahomqtt.NewClientOptions().
		AddBroker(p.cfg.Broker).
		SetClientID(fmt.Sprintf("eightsleep-%s", p.bed.DeviceID())).
		SetUsername(p.cfg.Username).
		SetPassword(p.cfg.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(availTopic, "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			p.log.Info("MQTT connected, publishing discovery and state")
			p.onConnect()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			p.log.Warn("MQTT connection lost", "error", err)
		})

	p.client = pahomqtt.NewClient(opts)

	token := p.client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	// Subscribe to EventBus.
	evtCh, unsub := p.bus.Subscribe(128)
	p.unsub = unsub

	p.wg.Add(1)
	go p.eventLoop(evtCh)

	p.log.Info("MQTT publisher started", "broker", p.cfg.Broker)
	return nil
}

// Stop gracefully disconnects from the MQTT broker and stops the event loop.
func (p *HAPublisher) Stop(_ context.Context) error {
	p.log.Info("MQTT publisher stopping")

	// Signal event loop to exit.
	close(p.stopC)

	// Unsubscribe from EventBus (will close channel and drain).
	if p.unsub != nil {
		p.unsub()
	}

	p.wg.Wait()

	if p.client != nil && p.client.IsConnected() {
		// Publish offline before disconnecting.
		p.publish(p.topic("status"), "offline", true)
		p.client.Disconnect(1000)
	}
	p.log.Info("MQTT publisher stopped")
	return nil
}

// ---------------------------------------------------------------------------
// onConnect – called on every (re)connect
// ---------------------------------------------------------------------------

func (p *HAPublisher) onConnect() {
	// 1. Publish online availability (retained).
	p.publish(p.topic("status"), "online", true)

	// 2. Publish all discovery configs.
	p.publishDiscovery()

	// 3. Subscribe to command topics.
	p.subscribeCommands()

	// 4. Subscribe to HA birth topic for re-discovery.
	p.client.Subscribe("homeassistant/status", 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		if string(msg.Payload()) == "online" {
			p.log.Info("Home Assistant came online, re-publishing discovery")
			p.publishDiscovery()
			p.publishFullState()
		}
	})

	// 5. Publish initial state snapshot.
	p.publishFullState()
}

// ---------------------------------------------------------------------------
// Discovery configs
// ---------------------------------------------------------------------------

// deviceInfo returns the shared HA device block.
func (p *HAPublisher) deviceInfo() map[string]interface{} {
	return map[string]interface{}{
		"identifiers":  []string{p.bed.DeviceID()},
		"name":         p.cfg.DeviceName,
		"manufacturer": "Eight Sleep",
		"model":        "Pod",
	}
}

// discoveryTopic builds the HA auto-discovery topic.
func discoveryTopic(component, deviceID, objectID string) string {
	return fmt.Sprintf("homeassistant/%s/%s_%s/config", component, deviceID, objectID)
}

// occupantSensors maps occupant metrics to HA sensor metadata. Metrics not
// listed here are exposed as plain attribute-less sensors.
var occupantSensors = []struct {
	metric      eight.Metric
	name        string
	deviceClass string
	unit        string
}{
	{eight.MetricSleepStage, "Sleep Stage", "", ""},
	{eight.MetricSleepScore, "Sleep Score", "", ""},
	{eight.MetricSleepQualityScore, "Sleep Quality Score", "", ""},
	{eight.MetricSleepRoutineScore, "Sleep Routine Score", "", ""},
	{eight.MetricHRV, "HRV", "", "ms"},
	{eight.MetricHeartRate, "Heart Rate", "", "bpm"},
	{eight.MetricRespiratoryRate, "Respiratory Rate", "", "breaths/min"},
	{eight.MetricBedTemperature, "Bed Temperature", "temperature", "°C"},
	{eight.MetricRoomTemperature, "Room Temperature", "temperature", "°C"},
	{eight.MetricHeatingLevel, "Heating Level", "", ""},
	{eight.MetricTargetHeatingLevel, "Target Heating Level", "", ""},
	{eight.MetricTimeSlept, "Time Slept", "duration", "s"},
	{eight.MetricNextAlarm, "Next Alarm", "timestamp", ""},
}

func (p *HAPublisher) publishDiscovery() {
	dev := p.deviceInfo()
	avail := map[string]interface{}{
		"topic": p.topic("status"),
	}
	id := p.bed.DeviceID()

	for _, occ := range p.bed.Occupants() {
		uid := occ.UserID()
		name := occ.DisplayName()
		if name == "" {
			name = string(occ.Side())
		}
		stateTopic := p.topic(fmt.Sprintf("%s/state", uid))

		// --- Sensors ---
		for _, s := range occupantSensors {
			payload := map[string]interface{}{
				"name":           fmt.Sprintf("%s %s", name, s.name),
				"unique_id":      fmt.Sprintf("%s_%s_%s", id, uid, s.metric),
				"state_topic":    stateTopic,
				"value_template": fmt.Sprintf("{{ value_json.%s }}", s.metric),
				"device":         dev,
				"availability":   avail,
			}
			if s.deviceClass != "" {
				payload["device_class"] = s.deviceClass
			}
			if s.unit != "" {
				payload["unit_of_measurement"] = s.unit
			}
			p.publishDiscoveryConfig("sensor", fmt.Sprintf("%s_%s", uid, s.metric), payload)
		}

		// --- Binary sensors ---
		for _, bs := range []struct {
			metric      eight.Metric
			name        string
			deviceClass string
		}{
			{eight.MetricPresence, "Presence", "occupancy"},
			{eight.MetricNowHeating, "Heating", "heat"},
			{eight.MetricNowCooling, "Cooling", "cold"},
		} {
			p.publishDiscoveryConfig("binary_sensor", fmt.Sprintf("%s_%s", uid, bs.metric), map[string]interface{}{
				"name":           fmt.Sprintf("%s %s", name, bs.name),
				"unique_id":      fmt.Sprintf("%s_%s_%s", id, uid, bs.metric),
				"state_topic":    stateTopic,
				"value_template": fmt.Sprintf("{{ 'ON' if value_json.%s else 'OFF' }}", bs.metric),
				"device_class":   bs.deviceClass,
				"device":         dev,
				"availability":   avail,
			})
		}

		// --- Number (heating level target) ---
		p.publishDiscoveryConfig("number", fmt.Sprintf("%s_heating_level", uid), map[string]interface{}{
			"name":           fmt.Sprintf("%s Heating Level", name),
			"unique_id":      fmt.Sprintf("%s_%s_heating_level_set", id, uid),
			"state_topic":    stateTopic,
			"value_template": "{{ value_json.target_heating_level }}",
			"command_topic":  p.topic(fmt.Sprintf("%s/level/set", uid)),
			"min":            -100,
			"max":            100,
			"step":           1,
			"mode":           "slider",
			"device":         dev,
			"availability":   avail,
		})

		// --- Switches ---
		p.publishDiscoveryConfig("switch", fmt.Sprintf("%s_side", uid), map[string]interface{}{
			"name":           fmt.Sprintf("%s Side", name),
			"unique_id":      fmt.Sprintf("%s_%s_side", id, uid),
			"state_topic":    stateTopic,
			"value_template": "{{ 'OFF' if value_json.bed_state == 'off' else 'ON' }}",
			"command_topic":  p.topic(fmt.Sprintf("%s/side/set", uid)),
			"payload_on":     "ON",
			"payload_off":    "OFF",
			"device":         dev,
			"availability":   avail,
		})
		p.publishDiscoveryConfig("switch", fmt.Sprintf("%s_alarm", uid), map[string]interface{}{
			"name":          fmt.Sprintf("%s Next Alarm Enabled", name),
			"unique_id":     fmt.Sprintf("%s_%s_alarm", id, uid),
			"state_topic":   p.topic(fmt.Sprintf("%s/alarm/state", uid)),
			"command_topic": p.topic(fmt.Sprintf("%s/alarm/set", uid)),
			"payload_on":    "ON",
			"payload_off":   "OFF",
			"device":        dev,
			"availability":  avail,
		})
		p.publishDiscoveryConfig("switch", fmt.Sprintf("%s_away", uid), map[string]interface{}{
			"name":          fmt.Sprintf("%s Away Mode", name),
			"unique_id":     fmt.Sprintf("%s_%s_away", id, uid),
			"state_topic":   p.topic(fmt.Sprintf("%s/away/state", uid)),
			"command_topic": p.topic(fmt.Sprintf("%s/away/set", uid)),
			"payload_on":    "ON",
			"payload_off":   "OFF",
			"device":        dev,
			"availability":  avail,
		})
	}

	// --- Device-level entities ---
	p.publishDiscoveryConfig("sensor", "room_temperature", map[string]interface{}{
		"name":                fmt.Sprintf("%s Room Temperature", p.cfg.DeviceName),
		"unique_id":           fmt.Sprintf("%s_room_temperature", id),
		"state_topic":         p.topic("device/state"),
		"value_template":      "{{ value_json.room_temperature }}",
		"unit_of_measurement": "°C",
		"device_class":        "temperature",
		"state_class":         "measurement",
		"device":              dev,
		"availability":        avail,
	})
	for _, bs := range []struct {
		objectID    string
		name        string
		deviceClass string
	}{
		{"has_water", "Has Water", "problem"},
		{"priming", "Priming", "running"},
		{"needs_priming", "Needs Priming", "problem"},
	} {
		p.publishDiscoveryConfig("binary_sensor", bs.objectID, map[string]interface{}{
			"name":           fmt.Sprintf("%s %s", p.cfg.DeviceName, bs.name),
			"unique_id":      fmt.Sprintf("%s_%s", id, bs.objectID),
			"state_topic":    p.topic("device/state"),
			"value_template": fmt.Sprintf("{{ 'ON' if value_json.%s else 'OFF' }}", bs.objectID),
			"device_class":   bs.deviceClass,
			"device":         dev,
			"availability":   avail,
		})
	}
}

func (p *HAPublisher) publishDiscoveryConfig(component, objectID string, payload map[string]interface{}) {
	topic := discoveryTopic(component, p.bed.DeviceID(), objectID)
	data, err := json.Marshal(payload)
	if err != nil {
		p.log.Error("failed to marshal discovery config", "component", component, "object_id", objectID, "error", err)
		return
	}
	p.publish(topic, string(data), true)
}

// ---------------------------------------------------------------------------
// Command subscriptions
// ---------------------------------------------------------------------------

func (p *HAPublisher) subscribeCommands() {
	for _, occ := range p.bed.Occupants() {
		uid := occ.UserID()
		cmds := map[string]pahomqtt.MessageHandler{
			p.topic(fmt.Sprintf("%s/level/set", uid)): p.handleLevelCmd(uid),
			p.topic(fmt.Sprintf("%s/side/set", uid)):  p.handleSideCmd(uid),
			p.topic(fmt.Sprintf("%s/alarm/set", uid)): p.handleAlarmCmd(uid),
			p.topic(fmt.Sprintf("%s/away/set", uid)):  p.handleAwayCmd(uid),
		}
		for t, h := range cmds {
			token := p.client.Subscribe(t, 1, h)
			token.Wait()
			if err := token.Error(); err != nil {
				p.log.Error("failed to subscribe to command topic", "topic", t, "error", err)
			}
		}
	}
}

func (p *HAPublisher) occupantFor(uid string) *eight.Occupant {
	occ := p.bed.Occupant(uid)
	if occ == nil {
		p.log.Error("MQTT command for unknown occupant", "user_id", uid)
	}
	return occ
}

func (p *HAPublisher) handleLevelCmd(uid string) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		raw := strings.TrimSpace(string(msg.Payload()))
		level, err := strconv.Atoi(raw)
		if err != nil {
			p.log.Error("invalid heating level value", "payload", raw, "error", err)
			return
		}
		occ := p.occupantFor(uid)
		if occ == nil {
			return
		}
		p.log.Info("MQTT command: heating level", "user_id", uid, "level", level)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := occ.SetHeatingLevel(ctx, level, 0); err != nil {
			p.log.Error("failed to set heating level", "error", err)
		}
	}
}

func (p *HAPublisher) handleSideCmd(uid string) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		on := strings.EqualFold(strings.TrimSpace(string(msg.Payload())), "ON")
		occ := p.occupantFor(uid)
		if occ == nil {
			return
		}
		p.log.Info("MQTT command: side", "user_id", uid, "on", on)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		var err error
		if on {
			err = occ.TurnOnSide(ctx)
		} else {
			err = occ.TurnOffSide(ctx)
		}
		if err != nil {
			p.log.Error("failed to switch side", "error", err)
		}
	}
}

func (p *HAPublisher) handleAlarmCmd(uid string) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		on := strings.EqualFold(strings.TrimSpace(string(msg.Payload())), "ON")
		occ := p.occupantFor(uid)
		if occ == nil {
			return
		}
		p.log.Info("MQTT command: alarm enabled", "user_id", uid, "enabled", on)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := occ.SetAlarmEnabled(ctx, "", "", on); err != nil {
			p.log.Error("failed to set alarm enabled", "error", err)
		}
	}
}

func (p *HAPublisher) handleAwayCmd(uid string) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		on := strings.EqualFold(strings.TrimSpace(string(msg.Payload())), "ON")
		occ := p.occupantFor(uid)
		if occ == nil {
			return
		}
		action := "end"
		if on {
			action = "start"
		}
		p.log.Info("MQTT command: away mode", "user_id", uid, "action", action)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := occ.SetAwayMode(ctx, action); err != nil {
			p.log.Error("failed to set away mode", "error", err)
		}
	}
}

// ---------------------------------------------------------------------------
// State publishing
// ---------------------------------------------------------------------------

// publishFullState publishes the complete state snapshot.
func (p *HAPublisher) publishFullState() {
	p.publishDeviceState()
	for _, occ := range p.bed.Occupants() {
		p.publishOccupantState(occ)
	}
}

func (p *HAPublisher) publishDeviceState() {
	payload := map[string]interface{}{}
	if temp, ok := p.bed.RoomTemperature(); ok {
		payload["room_temperature"] = roundTo2(temp)
	}
	if v, ok := p.bed.HasWater(); ok {
		payload["has_water"] = v
	}
	if v, ok := p.bed.IsPriming(); ok {
		payload["priming"] = v
	}
	if v, ok := p.bed.NeedsPriming(); ok {
		payload["needs_priming"] = v
	}
	if len(payload) == 0 {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		p.log.Error("failed to marshal device state", "error", err)
		return
	}
	p.publish(p.topic("device/state"), string(data), true)
}

func (p *HAPublisher) publishOccupantState(occ *eight.Occupant) {
	payload := map[string]interface{}{}
	for _, id := range eight.Metrics() {
		if v, ok := occ.Metric(id); ok {
			payload[string(id)] = v
		}
	}
	if len(payload) == 0 {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		p.log.Error("failed to marshal occupant state", "user_id", occ.UserID(), "error", err)
		return
	}
	uid := occ.UserID()
	p.publish(p.topic(fmt.Sprintf("%s/state", uid)), string(data), true)

	if enabled, err := occ.AlarmEnabled(""); err == nil {
		p.publish(p.topic(fmt.Sprintf("%s/alarm/state", uid)), boolToOnOff(enabled), true)
	}
	p.publish(p.topic(fmt.Sprintf("%s/away/state", uid)), boolToOnOff(occ.Side() == eight.SideAway), true)
}

// ---------------------------------------------------------------------------
// EventBus loop
// ---------------------------------------------------------------------------

func (p *HAPublisher) eventLoop(ch <-chan state.Event) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopC:
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			p.handleEvent(evt)
		}
	}
}

func (p *HAPublisher) handleEvent(evt state.Event) {
	switch evt.Type {
	case state.EventTelemetryUpdate:
		p.publishFullState()

	case state.EventUserUpdate, state.EventPresenceUpdate,
		state.EventBaseUpdate, state.EventSpeakerUpdate:
		if occ := p.bed.Occupant(evt.UserID); occ != nil {
			p.publishOccupantState(occ)
		}
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// topic builds a full topic path: {prefix}/{device_id}/{suffix}.
func (p *HAPublisher) topic(suffix string) string {
	return fmt.Sprintf("%s/%s/%s", p.cfg.TopicPrefix, p.bed.DeviceID(), suffix)
}

// publish is a convenience wrapper that publishes a message and logs errors.
func (p *HAPublisher) publish(topic, payload string, retained bool) {
	if p.client == nil || !p.client.IsConnected() {
		return
	}
	token := p.client.Publish(topic, 1, retained, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		p.log.Error("mqtt publish failed", "topic", topic, "error", err)
	}
}

func boolToOnOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}

func roundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}
