package eight

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/trymwestin/eightsleep/internal/core/api"
)

// Alarm is one alarm inside a routine or an override. Settings and the
// snooze/dismiss stamps are carried opaquely so write-backs preserve them
// byte for byte.
//
// Two fields represent an alarm's state: "enabled" says whether the alarm
// fires next time and can be toggled independently of the routine, it is
// what the next-alarm surface reports. "disabledIndividually" says whether
// the user switched the alarm off for all days of the routine, inverted,
// and is what regular routine alarms report. The two are round-tripped to
// the vendor independently and must not be unified.
type Alarm struct {
	AlarmID              string          `json:"alarmId,omitempty"`
	Enabled              bool            `json:"enabled"`
	DisabledIndividually bool            `json:"disabledIndividually"`
	EnabledSince         string          `json:"enabledSince,omitempty"`
	Settings             json.RawMessage `json:"settings,omitempty"`
	DismissUntil         json.RawMessage `json:"dismissUntil,omitempty"`
	SnoozeUntil          json.RawMessage `json:"snoozeUntil,omitempty"`
	Time                 string          `json:"time,omitempty"`
	TimeWithOffset       *AlarmTime      `json:"timeWithOffset,omitempty"`
}

// AlarmTime is a wall-clock time with a day offset.
type AlarmTime struct {
	Time      string `json:"time"`
	DayOffset string `json:"dayOffset,omitempty"`
}

// RoutineOverride is a one-time exception record attached to a routine.
// When present its alarms take precedence over the routine's base list.
type RoutineOverride struct {
	RoutineEnabled bool    `json:"routineEnabled"`
	Alarms         []Alarm `json:"alarms"`
}

// Bedtime is a routine's bedtime setting.
type Bedtime struct {
	Time      string `json:"time"`
	DayOffset string `json:"dayOffset,omitempty"`
}

// Routine is a recurring schedule of bedtime and alarms.
type Routine struct {
	ID       string           `json:"id"`
	Days     []string         `json:"days,omitempty"`
	Alarms   []Alarm          `json:"alarms"`
	Override *RoutineOverride `json:"override,omitempty"`
	Bedtime  *Bedtime         `json:"bedtime,omitempty"`
}

type routinesResponse struct {
	Settings struct {
		Routines []Routine `json:"routines"`
	} `json:"settings"`
	State struct {
		NextAlarm *struct {
			AlarmID       string        `json:"alarmId"`
			NextTimestamp api.MaybeTime `json:"nextTimestamp"`
		} `json:"nextAlarm"`
		UpcomingRoutineID string `json:"upcomingRoutineId"`
	} `json:"state"`
}

// RefreshRoutines replaces the routine list and resolves the next alarm
// pointer. When the vendor reports no next timestamp there may still be an
// upcoming routine whose alarm is currently disabled, in which case its
// first alarm id is kept so it can be re-enabled.
func (o *Occupant) RefreshRoutines(ctx context.Context) error {
	var resp routinesResponse
	url := o.client.appURL("/v2/users/%s/routines", o.userID)
	if err := o.client.gateway.Get(ctx, url, nil, &resp); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.routines = resp.Settings.Routines

	if resp.State.NextAlarm != nil && resp.State.NextAlarm.NextTimestamp.Present() {
		o.nextAlarm = resp.State.NextAlarm.NextTimestamp
		o.nextAlarmID = resp.State.NextAlarm.AlarmID
		return nil
	}

	o.nextAlarm = api.MaybeTime{}
	o.nextAlarmID = ""
	if resp.State.UpcomingRoutineID == "" {
		return nil
	}
	for i := range o.routines {
		routine := &o.routines[i]
		if routine.ID != resp.State.UpcomingRoutineID {
			continue
		}
		if routine.Override != nil && len(routine.Override.Alarms) > 0 {
			o.nextAlarmID = routine.Override.Alarms[0].AlarmID
		} else if len(routine.Alarms) > 0 {
			o.nextAlarmID = routine.Alarms[0].AlarmID
		}
		break
	}
	return nil
}

// NextAlarm returns the resolved next alarm time.
func (o *Occupant) NextAlarm() (time.Time, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.nextAlarm.In(o.client.Timezone())
}

// NextAlarmID returns the next alarm's id, empty when none is pending.
func (o *Occupant) NextAlarmID() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.nextAlarmID
}

// Routines returns a copy of the routine list.
func (o *Occupant) Routines() []Routine {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]Routine, len(o.routines))
	copy(out, o.routines)
	return out
}

func (o *Occupant) routineLocked(routineID string) (*Routine, error) {
	for i := range o.routines {
		if o.routines[i].ID == routineID {
			return &o.routines[i], nil
		}
	}
	return nil, fmt.Errorf("eight: routine %s not found", routineID)
}

// AlarmEnabled reports whether an alarm is enabled. An empty id resolves
// against the next alarm, which reads the direct enabled flag; a concrete
// id reads the inverted per-routine flag. Override alarms shadow the base
// list.
func (o *Occupant) AlarmEnabled(alarmID string) (bool, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	checkNext := alarmID == ""
	if checkNext {
		if o.nextAlarmID == "" {
			return false, nil
		}
		alarmID = o.nextAlarmID
	}

	report := func(a *Alarm) bool {
		if checkNext {
			return a.Enabled
		}
		return !a.DisabledIndividually
	}

	for i := range o.routines {
		routine := &o.routines[i]
		if routine.Override != nil {
			for j := range routine.Override.Alarms {
				if routine.Override.Alarms[j].AlarmID == alarmID {
					return report(&routine.Override.Alarms[j]), nil
				}
			}
		}
		for j := range routine.Alarms {
			if routine.Alarms[j].AlarmID == alarmID {
				return report(&routine.Alarms[j]), nil
			}
		}
	}
	return false, fmt.Errorf("eight: alarm %s not found", alarmID)
}

func (o *Occupant) nextAlarmRoutineIDLocked() (string, error) {
	for i := range o.routines {
		routine := &o.routines[i]
		if routine.Override != nil {
			for j := range routine.Override.Alarms {
				if routine.Override.Alarms[j].AlarmID == o.nextAlarmID {
					return routine.ID, nil
				}
			}
		}
		for j := range routine.Alarms {
			if routine.Alarms[j].AlarmID == o.nextAlarmID {
				return routine.ID, nil
			}
		}
	}
	return "", fmt.Errorf("eight: alarm %s not found in any routine", o.nextAlarmID)
}

func (o *Occupant) putAlarmState(ctx context.Context, body map[string]any) error {
	url := o.client.appURL("/v1/users/%s/routines", o.userID)
	return o.client.gateway.Put(ctx, url, map[string]any{"alarm": body}, nil)
}

// AlarmSnooze snoozes the next alarm for the given number of minutes.
func (o *Occupant) AlarmSnooze(ctx context.Context, minutes int) error {
	id := o.NextAlarmID()
	if id == "" {
		return fmt.Errorf("eight: no next alarm set for user %s", o.userID)
	}
	return o.putAlarmState(ctx, map[string]any{"alarmId": id, "snoozeForMinutes": minutes})
}

// AlarmStop stops the next alarm.
func (o *Occupant) AlarmStop(ctx context.Context) error {
	id := o.NextAlarmID()
	if id == "" {
		return fmt.Errorf("eight: no next alarm set for user %s", o.userID)
	}
	return o.putAlarmState(ctx, map[string]any{"alarmId": id, "stopped": true})
}

// AlarmDismiss dismisses the next alarm.
func (o *Occupant) AlarmDismiss(ctx context.Context) error {
	id := o.NextAlarmID()
	if id == "" {
		return fmt.Errorf("eight: no next alarm set for user %s", o.userID)
	}
	return o.putAlarmState(ctx, map[string]any{"alarmId": id, "dismissed": true})
}

func (o *Occupant) putRoutine(ctx context.Context, routine Routine) error {
	url := o.client.appURL("/v2/users/%s/routines/%s", o.userID, routine.ID)
	return o.client.gateway.Put(ctx, url, routine, nil)
}

// SetAlarmEnabled enables or disables an alarm. With empty ids the next
// alarm is targeted; when its routine carries no override yet, one is
// synthesized cloning the base alarm's settings before the write-back.
func (o *Occupant) SetAlarmEnabled(ctx context.Context, routineID, alarmID string, enabled bool) error {
	if routineID != "" && alarmID != "" {
		return o.setAlarmEnabled(ctx, routineID, alarmID, enabled)
	}

	next := o.NextAlarmID()
	if next == "" {
		// Nothing to toggle without a next alarm.
		return nil
	}

	o.mu.Lock()
	resolvedID, err := o.nextAlarmRoutineIDLocked()
	if err != nil {
		o.mu.Unlock()
		return err
	}
	routine, err := o.routineLocked(resolvedID)
	if err != nil {
		o.mu.Unlock()
		return err
	}
	if routine.Override != nil {
		o.mu.Unlock()
		return o.setAlarmEnabled(ctx, resolvedID, next, enabled)
	}

	for i := range routine.Alarms {
		alarm := &routine.Alarms[i]
		if alarm.AlarmID != next {
			continue
		}
		routine.Override = shadowOverride(alarm, enabled)
		payload := *routine
		o.mu.Unlock()
		return o.putRoutine(ctx, payload)
	}
	o.mu.Unlock()
	return fmt.Errorf("eight: alarm %s not found in routine %s", next, resolvedID)
}

// shadowOverride builds an override whose single alarm shadows the given
// base alarm, carrying its opaque settings and stamps verbatim so the base
// record round-trips untouched.
func shadowOverride(alarm *Alarm, enabled bool) *RoutineOverride {
	shadow := Alarm{
		Enabled:              enabled,
		DisabledIndividually: !enabled,
		Settings:             alarm.Settings,
		DismissUntil:         alarm.DismissUntil,
		SnoozeUntil:          alarm.SnoozeUntil,
	}
	if alarm.TimeWithOffset != nil {
		shadow.Time = alarm.TimeWithOffset.Time
	}
	return &RoutineOverride{
		RoutineEnabled: true,
		Alarms:         []Alarm{shadow},
	}
}

func (o *Occupant) setAlarmEnabled(ctx context.Context, routineID, alarmID string, enabled bool) error {
	o.mu.Lock()
	routine, err := o.routineLocked(routineID)
	if err != nil {
		o.mu.Unlock()
		return err
	}

	if routine.Override != nil {
		found := false
		for i := range routine.Override.Alarms {
			if routine.Override.Alarms[i].AlarmID == alarmID {
				routine.Override.Alarms[i].Enabled = enabled
				routine.Override.Alarms[i].DisabledIndividually = !enabled
				found = true
				break
			}
		}
		if !found {
			o.mu.Unlock()
			return &api.ValidationError{Field: "alarm id", Value: alarmID}
		}
		payload := *routine
		o.mu.Unlock()
		return o.putRoutine(ctx, payload)
	}

	// No override yet: shadow the base alarm instead of mutating it, same
	// as the next-alarm path.
	for i := range routine.Alarms {
		if routine.Alarms[i].AlarmID == alarmID {
			routine.Override = shadowOverride(&routine.Alarms[i], enabled)
			payload := *routine
			o.mu.Unlock()
			return o.putRoutine(ctx, payload)
		}
	}
	o.mu.Unlock()
	return &api.ValidationError{Field: "alarm id", Value: alarmID}
}

// SetRoutineAlarm changes the time of a routine's alarm and pushes the
// updated routine back.
func (o *Occupant) SetRoutineAlarm(ctx context.Context, routineID, alarmID, alarmTime string) error {
	if err := o.RefreshRoutines(ctx); err != nil {
		return err
	}

	o.mu.Lock()
	routine, err := o.routineLocked(routineID)
	if err != nil {
		o.mu.Unlock()
		return err
	}
	for i := range routine.Alarms {
		alarm := &routine.Alarms[i]
		if alarm.AlarmID != alarmID {
			continue
		}
		alarm.EnabledSince = time.Now().UTC().Format("2006-01-02T15:04:05Z")
		if alarm.TimeWithOffset == nil {
			alarm.TimeWithOffset = &AlarmTime{}
		}
		alarm.TimeWithOffset.Time = alarmTime
	}
	payload := *routine
	o.mu.Unlock()
	return o.putRoutine(ctx, payload)
}

// SetRoutineBedtime changes a routine's bedtime. Bedtimes from noon on
// belong to the previous day's schedule, hence the day offset flip.
func (o *Occupant) SetRoutineBedtime(ctx context.Context, routineID, bedtime string) error {
	if err := o.RefreshRoutines(ctx); err != nil {
		return err
	}

	o.mu.Lock()
	routine, err := o.routineLocked(routineID)
	if err != nil {
		o.mu.Unlock()
		return err
	}
	if routine.Bedtime == nil {
		routine.Bedtime = &Bedtime{}
	}
	routine.Bedtime.Time = bedtime
	if bedtime >= "12:00:00" {
		routine.Bedtime.DayOffset = "MinusOne"
	} else {
		routine.Bedtime.DayOffset = "Zero"
	}
	payload := *routine
	o.mu.Unlock()
	return o.putRoutine(ctx, payload)
}

// OneOffAlarm describes a single non-recurring alarm.
type OneOffAlarm struct {
	Time                string
	Enabled             bool
	VibrationEnabled    bool
	VibrationPowerLevel int
	VibrationPattern    string
	ThermalEnabled      bool
	ThermalLevel        int
}

// NewOneOffAlarm returns a one-off alarm at the given time with the
// vendor app's default vibration and thermal settings.
func NewOneOffAlarm(alarmTime string) OneOffAlarm {
	return OneOffAlarm{
		Time:                alarmTime,
		Enabled:             true,
		VibrationEnabled:    true,
		VibrationPowerLevel: 50,
		VibrationPattern:    "RISE",
		ThermalEnabled:      true,
		ThermalLevel:        0,
	}
}

// SetOneOffAlarm schedules a one-off alarm.
func (o *Occupant) SetOneOffAlarm(ctx context.Context, alarm OneOffAlarm) error {
	url := o.client.appURL("/v2/users/%s/routines?ignoreDeviceErrors=false", o.userID)
	body := map[string]any{
		"oneOffAlarms": []map[string]any{{
			"time":    alarm.Time,
			"enabled": alarm.Enabled,
			"settings": map[string]any{
				"vibration": map[string]any{
					"enabled":    alarm.VibrationEnabled,
					"powerLevel": alarm.VibrationPowerLevel,
					"pattern":    alarm.VibrationPattern,
				},
				"thermal": map[string]any{
					"enabled": alarm.ThermalEnabled,
					"level":   alarm.ThermalLevel,
				},
			},
		}},
	}
	return o.client.gateway.Put(ctx, url, body, nil)
}
