package eight

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/trymwestin/eightsleep/internal/core/api"
)

// TrendDay is one day's aggregated sleep record from the trends endpoint.
// Scores and durations are all optional; days with no session carry nulls
// almost everywhere.
type TrendDay struct {
	Day              string        `json:"day"`
	Score            api.MaybeInt  `json:"score"`
	PresenceStart    api.MaybeTime `json:"presenceStart"`
	PresenceEnd      api.MaybeTime `json:"presenceEnd"`
	TossAndTurns     api.MaybeInt  `json:"tnt"`
	SleepDuration    api.MaybeInt  `json:"sleepDuration"`
	PresenceDuration api.MaybeInt  `json:"presenceDuration"`
	LightDuration    api.MaybeInt  `json:"lightDuration"`
	DeepDuration     api.MaybeInt  `json:"deepDuration"`
	RemDuration      api.MaybeInt  `json:"remDuration"`
	Processing       bool          `json:"processing"`

	SleepFitnessScore ScoreGroup   `json:"sleepFitnessScore"`
	SleepQualityScore QualityScore `json:"sleepQualityScore"`
	SleepRoutineScore RoutineScore `json:"sleepRoutineScore"`

	Sessions []TrendSession `json:"sessions"`
}

// ScoreGroup holds a composite score total.
type ScoreGroup struct {
	Total api.MaybeInt `json:"total"`
}

// SubScore is a scored component inside a composite score.
type SubScore struct {
	Score api.MaybeInt `json:"score"`
}

// Measurement is a biometric reading with current and session-average values.
type Measurement struct {
	Current api.MaybeFloat `json:"current"`
	Average api.MaybeFloat `json:"average"`
}

// QualityScore breaks the sleep quality composite into its components.
type QualityScore struct {
	Total                api.MaybeInt `json:"total"`
	SleepDurationSeconds SubScore     `json:"sleepDurationSeconds"`
	HRV                  Measurement  `json:"hrv"`
	RespiratoryRate      Measurement  `json:"respiratoryRate"`
	HeartRate            Measurement  `json:"heartRate"`
	TempBedC             Measurement  `json:"tempBedC"`
	TempRoomC            Measurement  `json:"tempRoomC"`
}

// RoutineScore breaks the sleep routine composite into its components.
type RoutineScore struct {
	Total                api.MaybeInt `json:"total"`
	LatencyAsleepSeconds SubScore     `json:"latencyAsleepSeconds"`
	LatencyOutSeconds    SubScore     `json:"latencyOutSeconds"`
	WakeupConsistency    SubScore     `json:"wakeupConsistency"`
}

// TrendSession is one sleep session within a trend day.
type TrendSession struct {
	Stages     []SessionStage `json:"stages"`
	Timeseries Timeseries     `json:"timeseries"`
}

// SessionStage is one entry of a session's stage sequence.
type SessionStage struct {
	Stage    string       `json:"stage"`
	Duration api.MaybeInt `json:"duration"`
}

// Timeseries holds the per-session biometric time series.
type Timeseries struct {
	HeartRate       []TimeseriesPoint `json:"heartRate"`
	RespiratoryRate []TimeseriesPoint `json:"respiratoryRate"`
	TempRoomC       []TimeseriesPoint `json:"tempRoomC"`
	TempBedC        []TimeseriesPoint `json:"tempBedC"`
}

// TimeseriesPoint is one [timestamp, value] pair. The vendor encodes these
// as two-element JSON arrays, not objects.
type TimeseriesPoint struct {
	Time  time.Time
	Value float64
}

func (p *TimeseriesPoint) UnmarshalJSON(raw []byte) error {
	var parts [2]json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return fmt.Errorf("eight: decode timeseries point: %w", err)
	}
	var ts api.MaybeTime
	if err := ts.UnmarshalJSON(parts[0]); err != nil {
		return err
	}
	p.Time, _ = ts.Value()
	if err := json.Unmarshal(parts[1], &p.Value); err != nil {
		return fmt.Errorf("eight: decode timeseries value: %w", err)
	}
	return nil
}

func (p TimeseriesPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{p.Time.Format(time.RFC3339Nano), p.Value})
}

// SleepBreakdown is the per-stage duration split of one session. Awake time
// is derived as presence duration minus sleep duration, the vendor does not
// report it directly.
type SleepBreakdown struct {
	Light api.MaybeInt `json:"light"`
	Deep  api.MaybeInt `json:"deep"`
	Rem   api.MaybeInt `json:"rem"`
	Awake api.MaybeInt `json:"awake"`
}

// last returns the final point of a series, when any.
func last(points []TimeseriesPoint) (TimeseriesPoint, bool) {
	if len(points) == 0 {
		return TimeseriesPoint{}, false
	}
	return points[len(points)-1], true
}
