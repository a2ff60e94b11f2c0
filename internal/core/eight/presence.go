package eight

import "math"

// Presence is inferred from the shape of the heating-level series because
// the vendor exposes no ground-truth in-bed sensor. A body in the bed
// pushes the measured level above what the climate control accounts for.
//
// Cooling-capable devices do not rest at level zero, so a per-occupant
// low-water mark (observedLow) shifts the baseline: workingLevel is the
// measured level minus the lowest level ever observed. Devices without
// cooling skip the shift.
//
// The thresholds are empirically tuned constants, not derived values.

// trendRunLength is how many recent samples the rising/falling run
// detection looks at, the newest sample included.
const trendRunLength = 4

// Present reports the current derived in-bed state.
func (o *Occupant) Present() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.present
}

// ObservedLow returns the heating-level low-water mark used as the
// presence baseline.
func (o *Occupant) ObservedLow() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.observedLow
}

// recomputePresence re-runs the presence state machine against the newest
// telemetry. Called after every telemetry refresh; reports whether the
// state flipped.
func (o *Occupant) recomputePresence() bool {
	level, ok := o.HeatingLevel()
	if !ok {
		return false
	}
	coolingCapable := o.client.IsCoolingCapable()

	o.mu.Lock()
	if coolingCapable && level < o.observedLow {
		o.observedLow = level
	}
	observedLow := o.observedLow
	present := o.present
	o.mu.Unlock()

	working := level
	if coolingCapable {
		working = level - observedLow
	}

	heating, _ := o.NowHeating()
	coolingNow, _ := o.NowCooling()
	idle := !heating && !coolingNow
	target, hasTarget := o.TargetHeatingLevel()

	// Residual heat beyond the control target implies a body even while
	// the climate control is active.
	gapOK := idle || (hasTarget && working-target >= 8)

	rising, falling := o.heatingTrend()

	next := present
	if !present {
		switch {
		case working > 50 && gapOK:
			next = true
		case working > 25 && rising && gapOK:
			next = true
		}
	} else {
		ceiling := 50
		if coolingCapable {
			ceiling = 35
		}
		switch {
		case working <= 15:
			// Hard failsafe regardless of trend shape.
			next = false
		case working < ceiling && falling:
			next = false
		}
	}

	if next == present {
		return false
	}
	o.mu.Lock()
	o.present = next
	o.mu.Unlock()
	o.log.Debug("presence changed", "present", next, "working_level", working)
	return true
}

// heatingTrend classifies the run shape of the last few heating samples.
// Rising requires every step to gain at least 2 levels; falling requires a
// strict decrease. Both are false until enough history exists.
func (o *Occupant) heatingTrend() (rising, falling bool) {
	if len(o.client.TelemetryHistory()) < trendRunLength {
		return false, false
	}
	var samples [trendRunLength]int
	for i := range samples {
		samples[i] = o.PastHeatingLevel(i)
	}

	rising, falling = true, true
	for i := 0; i < trendRunLength-1; i++ {
		if samples[i]-samples[i+1] < 2 {
			rising = false
		}
		if samples[i] >= samples[i+1] {
			falling = false
		}
	}
	return rising, falling
}

// LogHeatingStats logs rolling mean and deviation of the recent heating
// levels at debug level. Skipped until the history is fully populated with
// non-zero readings.
func (o *Occupant) LogHeatingStats() {
	var last5, last10 []float64
	for i := 0; i < telemetryHistorySize; i++ {
		level := o.PastHeatingLevel(i)
		if level == 0 {
			o.log.Debug("not enough heating history for stats yet")
			return
		}
		if i < 5 {
			last5 = append(last5, float64(level))
		}
		last10 = append(last10, float64(level))
	}

	o.log.Debug("heating history", "side", o.Side(), "levels", last10)
	o.log.Debug("heating stats",
		"mean_5", mean(last5), "stdev_5", stdev(last5),
		"mean_10", mean(last10), "stdev_10", stdev(last10))
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdev(values []float64) float64 {
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		sum += (v - m) * (v - m)
	}
	return math.Sqrt(sum / float64(len(values)-1))
}
