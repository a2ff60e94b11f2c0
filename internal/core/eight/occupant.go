package eight

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/trymwestin/eightsleep/internal/core/api"
	"github.com/trymwestin/eightsleep/internal/core/units"
)

// UserProfile is the vendor's user record.
type UserProfile struct {
	UserID        string `json:"userId"`
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	CurrentDevice struct {
		ID   string `json:"id"`
		Side string `json:"side"`
	} `json:"currentDevice"`
}

// smartScheduleStages are the sleep stages the autopilot schedule keys
// temperature levels by.
var smartScheduleStages = []string{"bedTimeLevel", "initialSleepLevel", "finalSleepLevel"}

// Occupant holds the per-user state: side assignment, the rolling trend
// window, routines and alarms, base and speaker state, and the derived
// presence. One Occupant exists per discovered user for the life of the
// client.
type Occupant struct {
	client *Client
	userID string
	log    *slog.Logger

	mu              sync.RWMutex
	side            Side
	profile         UserProfile
	trends          []TrendDay
	routines        []Routine
	nextAlarmID     string
	nextAlarm       api.MaybeTime
	bedStateType    string
	smartSchedule   map[string]int
	currentSideTemp api.MaybeFloat
	base            *baseData
	player          *PlayerState
	tracks          []AudioTrack

	// presence estimator state, see presence.go
	present     bool
	observedLow int
}

func newOccupant(client *Client, userID string, side Side, log *slog.Logger) *Occupant {
	return &Occupant{
		client: client,
		userID: userID,
		side:   side,
		log:    log.With("user_id", userID),
	}
}

// UserID returns the stable user id.
func (o *Occupant) UserID() string { return o.userID }

// Side returns the declared side assignment.
func (o *Occupant) Side() Side {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.side
}

// CorrectedSide maps the declared side to the concrete telemetry key side.
// Solo beds report their data under left, and a missing side falls back to
// left rather than failing.
func (o *Occupant) CorrectedSide() Side {
	return o.correctSide(o.Side())
}

func (o *Occupant) correctSide(side Side) Side {
	switch side {
	case SideUnknown:
		o.log.Warn("no side information, defaulting to left for telemetry access")
		return SideLeft
	case SideSolo:
		return SideLeft
	default:
		return side
	}
}

// DisplayName returns the occupant's first name, when known.
func (o *Occupant) DisplayName() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.profile.FirstName
}

// Profile returns the cached user profile.
func (o *Occupant) Profile() UserProfile {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.profile
}

func (o *Occupant) setProfile(p UserProfile) {
	o.mu.Lock()
	o.profile = p
	o.mu.Unlock()
}

// RefreshProfile re-fetches the user profile.
func (o *Occupant) RefreshProfile(ctx context.Context) error {
	var resp userProfileResponse
	url := o.client.clientURL("/users/%s", o.userID)
	if err := o.client.gateway.Get(ctx, url, nil, &resp); err != nil {
		return err
	}
	o.setProfile(resp.User)
	return nil
}

// --- device telemetry reads, keyed by corrected side ---

// HeatingLevel returns the current heating level, falling back through the
// telemetry history when the newest snapshot lacks the side key.
func (o *Occupant) HeatingLevel() (int, bool) {
	side := o.CorrectedSide()
	for _, t := range o.client.TelemetryHistory() {
		if v, ok := t.HeatingLevel(side).Value(); ok {
			return v, true
		}
	}
	return 0, false
}

// TargetHeatingLevel returns the target level from the newest snapshot.
func (o *Occupant) TargetHeatingLevel() (int, bool) {
	t := o.client.Telemetry()
	if t == nil {
		return 0, false
	}
	return t.TargetHeatingLevel(o.CorrectedSide()).Value()
}

// TargetHeatingTemp returns the target level converted to degrees.
func (o *Occupant) TargetHeatingTemp(unit units.Unit) (float64, bool) {
	level, ok := o.TargetHeatingLevel()
	if !ok {
		return 0, false
	}
	return units.ToTemperature(level, unit), true
}

func (o *Occupant) nowHeatingOrCooling(signMatches bool) (bool, bool) {
	t := o.client.Telemetry()
	if t == nil {
		return false, false
	}
	side := o.CorrectedSide()
	if !t.TargetHeatingLevel(side).Present() {
		return false, false
	}
	active, ok := t.NowHeating(side).Value()
	if !ok {
		return false, false
	}
	return active && signMatches, true
}

// NowHeating reports whether the side is actively heating. Unknown when
// either the active flag or the target level is missing; missing data is
// never reported as false.
func (o *Occupant) NowHeating() (bool, bool) {
	target, ok := o.TargetHeatingLevel()
	return o.nowHeatingOrCooling(ok && target > 0)
}

// NowCooling reports whether the side is actively cooling.
func (o *Occupant) NowCooling() (bool, bool) {
	target, ok := o.TargetHeatingLevel()
	return o.nowHeatingOrCooling(ok && target < 0)
}

// HeatingRemaining returns the remaining heat/cool seconds.
func (o *Occupant) HeatingRemaining() (int, bool) {
	t := o.client.Telemetry()
	if t == nil {
		return 0, false
	}
	return t.HeatingDuration(o.CorrectedSide()).Value()
}

// LastSeen returns the vendor's last-presence timestamp for the side.
func (o *Occupant) LastSeen() (time.Time, bool) {
	t := o.client.Telemetry()
	if t == nil {
		return time.Time{}, false
	}
	return t.PresenceEnd(o.CorrectedSide()).In(o.client.Timezone())
}

// PastHeatingLevel returns the heating level n snapshots back, 0 when the
// history does not reach that far.
func (o *Occupant) PastHeatingLevel(n int) int {
	if n < 0 || n >= telemetryHistorySize {
		return 0
	}
	hist := o.client.TelemetryHistory()
	if len(hist) < n+1 {
		return 0
	}
	return hist[n].HeatingLevel(o.CorrectedSide()).Or(0)
}

// BedStateType returns the side's thermal state type (smart, off, ...).
func (o *Occupant) BedStateType() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.bedStateType
}

// CurrentBedTemp returns the side's current surface temperature.
func (o *Occupant) CurrentBedTemp() (float64, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.currentSideTemp.Value()
}

// SmartSchedule returns a copy of the autopilot level schedule.
func (o *Occupant) SmartSchedule() map[string]int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.smartSchedule == nil {
		return nil
	}
	out := make(map[string]int, len(o.smartSchedule))
	for k, v := range o.smartSchedule {
		out[k] = v
	}
	return out
}

// AutopilotTargetTemp returns the temperature the autopilot schedule is
// currently targeting, derived from its bedtime level.
func (o *Occupant) AutopilotTargetTemp(unit units.Unit) (float64, bool) {
	o.mu.RLock()
	level, ok := o.smartSchedule["bedTimeLevel"]
	o.mu.RUnlock()
	if !ok {
		return 0, false
	}
	return units.ToTemperature(level, unit), true
}

// --- trend window reads ---

// Trends returns a copy of the fetched trend window, oldest day first.
func (o *Occupant) Trends() []TrendDay {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]TrendDay, len(o.trends))
	copy(out, o.trends)
	return out
}

// trendDay returns the n-th most recent trend day. The trends slice is
// replaced wholesale on refresh and individual days are never mutated, so
// the returned pointer stays consistent.
func (o *Occupant) trendDay(n int) *TrendDay {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if n < 0 || len(o.trends) < n+1 {
		return nil
	}
	return &o.trends[len(o.trends)-1-n]
}

func (o *Occupant) latestTimeseries() *Timeseries {
	day := o.trendDay(0)
	if day == nil || len(day.Sessions) == 0 {
		return nil
	}
	return &day.Sessions[len(day.Sessions)-1].Timeseries
}

func (o *Occupant) sessionDate(n int) (time.Time, bool) {
	day := o.trendDay(n)
	if day == nil {
		return time.Time{}, false
	}
	return day.PresenceStart.In(o.client.Timezone())
}

func (o *Occupant) sessionProcessing(n int) (bool, bool) {
	day := o.trendDay(n)
	if day == nil {
		return false, false
	}
	return day.Processing, true
}

func (o *Occupant) sleepBreakdown(n int) (SleepBreakdown, bool) {
	day := o.trendDay(n)
	if day == nil {
		return SleepBreakdown{}, false
	}
	b := SleepBreakdown{
		Light: day.LightDuration,
		Deep:  day.DeepDuration,
		Rem:   day.RemDuration,
	}
	if presence, ok := day.PresenceDuration.Value(); ok {
		if sleep, ok := day.SleepDuration.Value(); ok {
			b.Awake = api.Int(presence - sleep)
		}
	}
	return b, true
}

// CurrentSessionDate returns the start of the latest session.
func (o *Occupant) CurrentSessionDate() (time.Time, bool) { return o.sessionDate(0) }

// CurrentSessionProcessing reports whether the latest session is still
// being processed upstream.
func (o *Occupant) CurrentSessionProcessing() (bool, bool) { return o.sessionProcessing(0) }

// CurrentSleepStage returns the stage of the in-progress session. While
// the session is processing the vendor appends a trailing synthetic awake
// marker, so the true stage is the second-to-last entry until processing
// finishes.
func (o *Occupant) CurrentSleepStage() (string, bool) {
	day := o.trendDay(0)
	if day == nil || len(day.Sessions) == 0 {
		return "", false
	}
	stages := day.Sessions[len(day.Sessions)-1].Stages
	if len(stages) == 0 {
		return "", false
	}
	if day.Processing {
		if len(stages) < 2 {
			return "", false
		}
		return stages[len(stages)-2].Stage, true
	}
	return stages[len(stages)-1].Stage, true
}

// CurrentSleepScore returns the sleep score of the in-progress session.
func (o *Occupant) CurrentSleepScore() (int, bool) {
	if day := o.trendDay(0); day != nil {
		return day.Score.Value()
	}
	return 0, false
}

// CurrentSleepFitnessScore returns the fitness score for the latest day.
func (o *Occupant) CurrentSleepFitnessScore() (int, bool) {
	if day := o.trendDay(0); day != nil {
		return day.Score.Value()
	}
	return 0, false
}

// CurrentSleepQualityScore returns the quality composite total.
func (o *Occupant) CurrentSleepQualityScore() (int, bool) {
	if day := o.trendDay(0); day != nil {
		return day.SleepQualityScore.Total.Value()
	}
	return 0, false
}

// CurrentSleepRoutineScore returns the routine composite total.
func (o *Occupant) CurrentSleepRoutineScore() (int, bool) {
	if day := o.trendDay(0); day != nil {
		return day.SleepRoutineScore.Total.Value()
	}
	return 0, false
}

// CurrentSleepDurationScore returns the duration component score.
func (o *Occupant) CurrentSleepDurationScore() (int, bool) {
	if day := o.trendDay(0); day != nil {
		return day.SleepQualityScore.SleepDurationSeconds.Score.Value()
	}
	return 0, false
}

// CurrentLatencyAsleepScore returns the fall-asleep latency score.
func (o *Occupant) CurrentLatencyAsleepScore() (int, bool) {
	if day := o.trendDay(0); day != nil {
		return day.SleepRoutineScore.LatencyAsleepSeconds.Score.Value()
	}
	return 0, false
}

// CurrentLatencyOutScore returns the get-out-of-bed latency score.
func (o *Occupant) CurrentLatencyOutScore() (int, bool) {
	if day := o.trendDay(0); day != nil {
		return day.SleepRoutineScore.LatencyOutSeconds.Score.Value()
	}
	return 0, false
}

// CurrentWakeupConsistencyScore returns the wakeup consistency score.
func (o *Occupant) CurrentWakeupConsistencyScore() (int, bool) {
	if day := o.trendDay(0); day != nil {
		return day.SleepRoutineScore.WakeupConsistency.Score.Value()
	}
	return 0, false
}

// CurrentFitnessSessionDate returns the day key of the latest trend day.
func (o *Occupant) CurrentFitnessSessionDate() (string, bool) {
	if day := o.trendDay(0); day != nil {
		return day.Day, true
	}
	return "", false
}

// TimeSlept returns the sleep duration of the latest session, in seconds.
func (o *Occupant) TimeSlept() (int, bool) {
	if day := o.trendDay(0); day != nil {
		return day.SleepDuration.Value()
	}
	return 0, false
}

// PresenceStart returns the latest session's presence start.
func (o *Occupant) PresenceStart() (time.Time, bool) {
	if day := o.trendDay(0); day != nil {
		return day.PresenceStart.In(o.client.Timezone())
	}
	return time.Time{}, false
}

// PresenceEnd returns the latest session's presence end.
func (o *Occupant) PresenceEnd() (time.Time, bool) {
	if day := o.trendDay(0); day != nil {
		return day.PresenceEnd.In(o.client.Timezone())
	}
	return time.Time{}, false
}

// CurrentHRV returns the current heart rate variability.
func (o *Occupant) CurrentHRV() (float64, bool) {
	if day := o.trendDay(0); day != nil {
		return day.SleepQualityScore.HRV.Current.Value()
	}
	return 0, false
}

// CurrentRespRate returns the current respiratory rate.
func (o *Occupant) CurrentRespRate() (float64, bool) {
	if day := o.trendDay(0); day != nil {
		return day.SleepQualityScore.RespiratoryRate.Current.Value()
	}
	return 0, false
}

// CurrentHeartRate returns the newest heart rate sample.
func (o *Occupant) CurrentHeartRate() (float64, bool) {
	ts := o.latestTimeseries()
	if ts == nil {
		return 0, false
	}
	point, ok := last(ts.HeartRate)
	return point.Value, ok
}

// CurrentRoomTemp returns the newest room temperature sample, in Celsius.
func (o *Occupant) CurrentRoomTemp() (float64, bool) {
	ts := o.latestTimeseries()
	if ts == nil {
		return 0, false
	}
	point, ok := last(ts.TempRoomC)
	return point.Value, ok
}

// CurrentTossAndTurns returns the toss-and-turn count of the latest session.
func (o *Occupant) CurrentTossAndTurns() (int, bool) {
	if day := o.trendDay(0); day != nil {
		return day.TossAndTurns.Value()
	}
	return 0, false
}

// CurrentSleepBreakdown returns stage durations for the latest session.
func (o *Occupant) CurrentSleepBreakdown() (SleepBreakdown, bool) {
	return o.sleepBreakdown(0)
}

// LastSessionDate returns the start of the previous session.
func (o *Occupant) LastSessionDate() (time.Time, bool) { return o.sessionDate(1) }

// LastSessionProcessing reports the previous session's processing state.
func (o *Occupant) LastSessionProcessing() (bool, bool) { return o.sessionProcessing(1) }

// LastSleepScore returns the previous session's sleep score.
func (o *Occupant) LastSleepScore() (int, bool) {
	if day := o.trendDay(1); day != nil {
		return day.Score.Value()
	}
	return 0, false
}

// LastSleepFitnessScore returns the previous day's fitness total.
func (o *Occupant) LastSleepFitnessScore() (int, bool) {
	if day := o.trendDay(1); day != nil {
		return day.SleepFitnessScore.Total.Value()
	}
	return 0, false
}

// LastSleepDurationScore returns the previous day's duration score.
func (o *Occupant) LastSleepDurationScore() (int, bool) {
	if day := o.trendDay(1); day != nil {
		return day.SleepQualityScore.SleepDurationSeconds.Score.Value()
	}
	return 0, false
}

// LastLatencyAsleepScore returns the previous day's fall-asleep score.
func (o *Occupant) LastLatencyAsleepScore() (int, bool) {
	if day := o.trendDay(1); day != nil {
		return day.SleepRoutineScore.LatencyAsleepSeconds.Score.Value()
	}
	return 0, false
}

// LastLatencyOutScore returns the previous day's latency-out score.
func (o *Occupant) LastLatencyOutScore() (int, bool) {
	if day := o.trendDay(1); day != nil {
		return day.SleepRoutineScore.LatencyOutSeconds.Score.Value()
	}
	return 0, false
}

// LastWakeupConsistencyScore returns the previous day's wakeup score.
func (o *Occupant) LastWakeupConsistencyScore() (int, bool) {
	if day := o.trendDay(1); day != nil {
		return day.SleepRoutineScore.WakeupConsistency.Score.Value()
	}
	return 0, false
}

// LastFitnessSessionDate returns the previous trend day's day key.
func (o *Occupant) LastFitnessSessionDate() (string, bool) {
	if day := o.trendDay(1); day != nil {
		return day.Day, true
	}
	return "", false
}

// LastSleepBreakdown returns stage durations for the previous session.
func (o *Occupant) LastSleepBreakdown() (SleepBreakdown, bool) {
	return o.sleepBreakdown(1)
}

// LastBedTemp returns the previous session's average bed temperature.
func (o *Occupant) LastBedTemp() (float64, bool) {
	if day := o.trendDay(1); day != nil {
		return day.SleepQualityScore.TempBedC.Average.Value()
	}
	return 0, false
}

// LastRoomTemp returns the previous session's average room temperature.
func (o *Occupant) LastRoomTemp() (float64, bool) {
	if day := o.trendDay(1); day != nil {
		return day.SleepQualityScore.TempRoomC.Average.Value()
	}
	return 0, false
}

// LastTossAndTurns returns the previous session's toss-and-turn count.
func (o *Occupant) LastTossAndTurns() (int, bool) {
	if day := o.trendDay(1); day != nil {
		return day.TossAndTurns.Value()
	}
	return 0, false
}

// LastRespRate returns the previous session's average respiratory rate.
func (o *Occupant) LastRespRate() (float64, bool) {
	if day := o.trendDay(1); day != nil {
		return day.SleepQualityScore.RespiratoryRate.Average.Value()
	}
	return 0, false
}

// LastHeartRate returns the previous session's average heart rate.
func (o *Occupant) LastHeartRate() (float64, bool) {
	if day := o.trendDay(1); day != nil {
		return day.SleepQualityScore.HeartRate.Average.Value()
	}
	return 0, false
}

// TrendSleepScore returns the sleep score for a specific day key.
func (o *Occupant) TrendSleepScore(date string) (int, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for i := range o.trends {
		if o.trends[i].Day == date {
			return o.trends[i].Score.Value()
		}
	}
	return 0, false
}

// SleepFitnessScore returns the fitness total for a specific day key.
func (o *Occupant) SleepFitnessScore(date string) (int, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for i := range o.trends {
		if o.trends[i].Day == date {
			return o.trends[i].SleepFitnessScore.Total.Value()
		}
	}
	return 0, false
}

// --- refresh operations ---

type currentDeviceResponse struct {
	ID   string `json:"id"`
	Side string `json:"side"`
}

// FetchSide reads the occupant's current side assignment from the vendor.
func (o *Occupant) FetchSide(ctx context.Context) (Side, error) {
	var resp currentDeviceResponse
	url := o.client.clientURL("/users/%s/current-device", o.userID)
	if err := o.client.gateway.Get(ctx, url, nil, &resp); err != nil {
		return SideUnknown, err
	}
	return Side(resp.Side), nil
}

// RefreshUser refreshes the side assignment, the trend window, routines
// and the temperature state in one pass.
func (o *Occupant) RefreshUser(ctx context.Context) error {
	side, err := o.FetchSide(ctx)
	if err != nil {
		return err
	}
	o.mu.Lock()
	o.side = side
	o.mu.Unlock()

	now := time.Now().In(o.client.Timezone())
	from := now.AddDate(0, 0, -1).Format("2006-01-02")
	to := now.AddDate(0, 0, 1).Format("2006-01-02")
	if err := o.RefreshTrends(ctx, from, to); err != nil {
		return err
	}
	if err := o.RefreshRoutines(ctx); err != nil {
		return err
	}

	// Temperature state is best effort, a side that is off returns errors
	// here without the rest of the refresh being useless.
	if err := o.refreshTemperature(ctx); err != nil {
		o.log.Warn("temperature refresh failed", "error", err)
	}
	return nil
}

type trendsResponse struct {
	Days []TrendDay `json:"days"`
}

// RefreshTrends replaces the trend window with a fresh fetch of the given
// date range. The window is a replacement, not an accumulating log.
func (o *Occupant) RefreshTrends(ctx context.Context, from, to string) error {
	params := map[string]string{
		"tz":                   o.client.Timezone().String(),
		"from":                 from,
		"to":                   to,
		"include-main":         "false",
		"include-all-sessions": "true",
		"model-version":        "v2",
	}
	var resp trendsResponse
	url := o.client.clientURL("/users/%s/trends", o.userID)
	if err := o.client.gateway.Get(ctx, url, params, &resp); err != nil {
		return err
	}
	o.mu.Lock()
	o.trends = resp.Days
	o.mu.Unlock()
	return nil
}

type temperatureResponse struct {
	CurrentLevel       api.MaybeInt `json:"currentLevel"`
	CurrentDeviceLevel api.MaybeInt `json:"currentDeviceLevel"`
	CurrentState       struct {
		Type string `json:"type"`
	} `json:"currentState"`
	Smart map[string]int `json:"smart"`
}

func (o *Occupant) refreshTemperature(ctx context.Context) error {
	var resp temperatureResponse
	url := o.client.appURL("/v1/users/%s/temperature", o.userID)
	if err := o.client.gateway.Get(ctx, url, nil, &resp); err != nil {
		return err
	}

	o.mu.Lock()
	o.bedStateType = resp.CurrentState.Type
	if level, ok := resp.CurrentDeviceLevel.Value(); ok {
		o.currentSideTemp = api.Float(units.ToTemperature(level, units.Celsius))
	} else {
		o.currentSideTemp = api.MaybeFloat{}
	}
	o.smartSchedule = resp.Smart
	o.mu.Unlock()
	return nil
}

// --- actions ---

func clampLevel(level int) int {
	if level < -100 {
		return -100
	}
	if level > 100 {
		return 100
	}
	return level
}

// SetBedSide assigns this user to a bed side (solo, left or right).
func (o *Occupant) SetBedSide(ctx context.Context, side Side) error {
	parsed, err := ParseSide(string(side))
	if err != nil {
		return err
	}
	url := o.client.clientURL("/users/%s/current-device", o.userID)
	body := map[string]string{"id": o.client.DeviceID(), "side": string(parsed)}
	o.log.Debug("setting bed side", "side", parsed)
	if err := o.client.gateway.Put(ctx, url, body, nil); err != nil {
		return err
	}
	o.mu.Lock()
	o.side = parsed
	o.mu.Unlock()
	return nil
}

// SetHeatingLevel turns the side on and sets the heating level, optionally
// bounded to a duration in seconds. The level write and the duration write
// are separate vendor calls.
func (o *Occupant) SetHeatingLevel(ctx context.Context, level, durationSeconds int) error {
	level = clampLevel(level)
	if err := o.TurnOnSide(ctx); err != nil {
		return err
	}
	url := o.client.appURL("/v1/users/%s/temperature", o.userID)
	if err := o.client.gateway.Put(ctx, url, map[string]any{"currentLevel": level}, nil); err != nil {
		return err
	}
	body := map[string]any{
		"timeBased": map[string]any{"level": level, "durationSeconds": durationSeconds},
	}
	return o.client.gateway.Put(ctx, url, body, nil)
}

// SetSmartHeatingLevel sets the autopilot level for one sleep stage,
// preserving the other stages' levels.
func (o *Occupant) SetSmartHeatingLevel(ctx context.Context, level int, stage string) error {
	valid := false
	for _, s := range smartScheduleStages {
		if s == stage {
			valid = true
			break
		}
	}
	if !valid {
		return &api.ValidationError{Field: "sleep stage", Value: stage}
	}

	url := o.client.appURL("/v1/users/%s/temperature", o.userID)
	var resp temperatureResponse
	if err := o.client.gateway.Get(ctx, url, nil, &resp); err != nil {
		return err
	}
	schedule := resp.Smart
	if schedule == nil {
		schedule = map[string]int{}
	}
	schedule[stage] = clampLevel(level)
	return o.client.gateway.Put(ctx, url, map[string]any{"smart": schedule}, nil)
}

// IncrementHeatingLevel shifts the current level by offset, clamped to the
// valid range.
func (o *Occupant) IncrementHeatingLevel(ctx context.Context, offset int) error {
	url := o.client.appURL("/v1/users/%s/temperature", o.userID)
	var resp temperatureResponse
	if err := o.client.gateway.Get(ctx, url, nil, &resp); err != nil {
		return err
	}
	level := clampLevel(resp.CurrentLevel.Or(0) + offset)
	return o.client.gateway.Put(ctx, url, map[string]any{"currentLevel": level}, nil)
}

// TurnOnSide switches the side into smart (autopilot) mode.
func (o *Occupant) TurnOnSide(ctx context.Context) error {
	url := o.client.appURL("/v1/users/%s/temperature", o.userID)
	body := map[string]any{"currentState": map[string]string{"type": "smart"}}
	return o.client.gateway.Put(ctx, url, body, nil)
}

// TurnOffSide switches the side off.
func (o *Occupant) TurnOffSide(ctx context.Context) error {
	url := o.client.appURL("/v1/users/%s/temperature", o.userID)
	body := map[string]any{"currentState": map[string]string{"type": "off"}}
	return o.client.gateway.Put(ctx, url, body, nil)
}

// SetAwayMode starts or ends away mode. The action must be "start" or
// "end". The timestamp is backdated a day so the vendor applies the change
// immediately.
func (o *Occupant) SetAwayMode(ctx context.Context, action string) error {
	if action != "start" && action != "end" {
		return &api.ValidationError{Field: "away-mode action", Value: action}
	}
	stamp := time.Now().UTC().Add(-24 * time.Hour).Format("2006-01-02T15:04:05.000Z")
	url := o.client.appURL("/v1/users/%s/away-mode", o.userID)
	body := map[string]any{"awayPeriod": map[string]string{action: stamp}}
	o.log.Debug("setting away mode", "action", action)
	return o.client.gateway.Put(ctx, url, body, nil)
}

// PrimePod queues a priming cycle on the device.
func (o *Occupant) PrimePod(ctx context.Context) error {
	url := o.client.appURL("/v1/devices/%s/priming/tasks", o.client.DeviceID())
	body := map[string]any{
		"notifications": map[string]any{"users": []string{o.userID}, "meta": "rePriming"},
	}
	return o.client.gateway.Post(ctx, url, body, nil)
}
