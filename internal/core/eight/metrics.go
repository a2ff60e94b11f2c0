package eight

// Metric identifies one per-occupant reading exposed to integrations. The
// table below is the single mapping from metric id to accessor; consumers
// enumerate it instead of reflecting over the Occupant type.
type Metric string

const (
	MetricPresence           Metric = "presence"
	MetricSleepStage         Metric = "sleep_stage"
	MetricSleepScore         Metric = "sleep_score"
	MetricSleepQualityScore  Metric = "sleep_quality_score"
	MetricSleepRoutineScore  Metric = "sleep_routine_score"
	MetricHRV                Metric = "hrv"
	MetricHeartRate          Metric = "heart_rate"
	MetricRespiratoryRate    Metric = "respiratory_rate"
	MetricBedTemperature     Metric = "bed_temperature"
	MetricRoomTemperature    Metric = "room_temperature"
	MetricHeatingLevel       Metric = "heating_level"
	MetricTargetHeatingLevel Metric = "target_heating_level"
	MetricHeatingRemaining   Metric = "heating_remaining"
	MetricNowHeating         Metric = "now_heating"
	MetricNowCooling         Metric = "now_cooling"
	MetricBedState           Metric = "bed_state"
	MetricTimeSlept          Metric = "time_slept"
	MetricTossAndTurns       Metric = "toss_and_turns"
	MetricNextAlarm          Metric = "next_alarm"
)

// metricOrder fixes the enumeration order for discovery payloads.
var metricOrder = []Metric{
	MetricPresence,
	MetricSleepStage,
	MetricSleepScore,
	MetricSleepQualityScore,
	MetricSleepRoutineScore,
	MetricHRV,
	MetricHeartRate,
	MetricRespiratoryRate,
	MetricBedTemperature,
	MetricRoomTemperature,
	MetricHeatingLevel,
	MetricTargetHeatingLevel,
	MetricHeatingRemaining,
	MetricNowHeating,
	MetricNowCooling,
	MetricBedState,
	MetricTimeSlept,
	MetricTossAndTurns,
	MetricNextAlarm,
}

var metricTable = map[Metric]func(*Occupant) (any, bool){
	MetricPresence: func(o *Occupant) (any, bool) {
		return o.Present(), true
	},
	MetricSleepStage: func(o *Occupant) (any, bool) {
		v, ok := o.CurrentSleepStage()
		return v, ok
	},
	MetricSleepScore: func(o *Occupant) (any, bool) {
		v, ok := o.CurrentSleepScore()
		return v, ok
	},
	MetricSleepQualityScore: func(o *Occupant) (any, bool) {
		v, ok := o.CurrentSleepQualityScore()
		return v, ok
	},
	MetricSleepRoutineScore: func(o *Occupant) (any, bool) {
		v, ok := o.CurrentSleepRoutineScore()
		return v, ok
	},
	MetricHRV: func(o *Occupant) (any, bool) {
		v, ok := o.CurrentHRV()
		return v, ok
	},
	MetricHeartRate: func(o *Occupant) (any, bool) {
		v, ok := o.CurrentHeartRate()
		return v, ok
	},
	MetricRespiratoryRate: func(o *Occupant) (any, bool) {
		v, ok := o.CurrentRespRate()
		return v, ok
	},
	MetricBedTemperature: func(o *Occupant) (any, bool) {
		v, ok := o.CurrentBedTemp()
		return v, ok
	},
	MetricRoomTemperature: func(o *Occupant) (any, bool) {
		v, ok := o.CurrentRoomTemp()
		return v, ok
	},
	MetricHeatingLevel: func(o *Occupant) (any, bool) {
		v, ok := o.HeatingLevel()
		return v, ok
	},
	MetricTargetHeatingLevel: func(o *Occupant) (any, bool) {
		v, ok := o.TargetHeatingLevel()
		return v, ok
	},
	MetricHeatingRemaining: func(o *Occupant) (any, bool) {
		v, ok := o.HeatingRemaining()
		return v, ok
	},
	MetricNowHeating: func(o *Occupant) (any, bool) {
		v, ok := o.NowHeating()
		return v, ok
	},
	MetricNowCooling: func(o *Occupant) (any, bool) {
		v, ok := o.NowCooling()
		return v, ok
	},
	MetricBedState: func(o *Occupant) (any, bool) {
		v := o.BedStateType()
		return v, v != ""
	},
	MetricTimeSlept: func(o *Occupant) (any, bool) {
		v, ok := o.TimeSlept()
		return v, ok
	},
	MetricTossAndTurns: func(o *Occupant) (any, bool) {
		v, ok := o.CurrentTossAndTurns()
		return v, ok
	},
	MetricNextAlarm: func(o *Occupant) (any, bool) {
		v, ok := o.NextAlarm()
		return v, ok
	},
}

// Metrics lists all metric ids in a stable order.
func Metrics() []Metric {
	out := make([]Metric, len(metricOrder))
	copy(out, metricOrder)
	return out
}

// Metric evaluates a metric against the occupant's current state. The
// second return is false for unknown ids and for metrics with no data yet.
func (o *Occupant) Metric(id Metric) (any, bool) {
	accessor, ok := metricTable[id]
	if !ok {
		return nil, false
	}
	return accessor(o)
}
