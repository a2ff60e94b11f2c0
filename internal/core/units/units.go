// Package units converts between the vendor's raw heating level scale
// (-100..100) and physical temperatures. The mobile app does not use a
// closed-form formula for this, so the tables below were calibrated by
// sweeping the level range and recording the temperature the app displays.
package units

import (
	"fmt"
	"math"
	"strings"
)

// Unit selects the temperature scale for a conversion.
type Unit string

const (
	Celsius    Unit = "celsius"
	Fahrenheit Unit = "fahrenheit"
)

// ParseUnit normalizes a user-supplied unit string. Accepts the short forms
// "c" and "f" that the vendor app uses.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "c", "celsius":
		return Celsius, nil
	case "f", "fahrenheit":
		return Fahrenheit, nil
	default:
		return "", fmt.Errorf("units: unknown temperature unit %q", s)
	}
}

type entry struct {
	level   int
	degrees float64
}

// Calibrated level → whole-degree mappings. Keys are non-uniformly spaced;
// values are strictly increasing so ToLevel(ToTemperature(l)) round-trips
// exactly at every table key.
var celsiusTable = []entry{
	{-100, 13}, {-97, 14}, {-94, 15}, {-91, 16}, {-87, 17}, {-83, 18},
	{-78, 19}, {-72, 20}, {-66, 21}, {-59, 22}, {-52, 23}, {-45, 24},
	{-38, 25}, {-31, 26}, {-24, 27}, {-17, 28}, {-10, 29}, {-3, 30},
	{4, 31}, {11, 32}, {18, 33}, {26, 34}, {34, 35}, {43, 36},
	{52, 37}, {64, 38}, {76, 39}, {88, 41}, {100, 44},
}

var fahrenheitTable = []entry{
	{-100, 55}, {-97, 57}, {-94, 58}, {-91, 60}, {-87, 62}, {-83, 64},
	{-78, 66}, {-72, 68}, {-66, 70}, {-59, 72}, {-52, 74}, {-45, 76},
	{-38, 78}, {-31, 80}, {-24, 81}, {-17, 83}, {-10, 84}, {-3, 86},
	{4, 88}, {11, 90}, {18, 92}, {26, 94}, {34, 95}, {43, 97},
	{52, 99}, {64, 101}, {76, 103}, {88, 106}, {100, 110},
}

func table(unit Unit) []entry {
	if unit == Celsius {
		return celsiusTable
	}
	return fahrenheitTable
}

// ToTemperature converts a raw heating level to degrees by linear
// interpolation between the two bracketing table entries. An exact table hit
// short-circuits; levels outside the table clamp to the nearest edge value.
func ToTemperature(level int, unit Unit) float64 {
	t := table(unit)

	if level <= t[0].level {
		return t[0].degrees
	}
	last := t[len(t)-1]
	if level >= last.level {
		return last.degrees
	}

	for i := 1; i < len(t); i++ {
		if level == t[i].level {
			return t[i].degrees
		}
		if t[i].level > level {
			prev := t[i-1]
			ratio := float64(level-prev.level) / float64(t[i].level-prev.level)
			return prev.degrees + ratio*(t[i].degrees-prev.degrees)
		}
	}
	return last.degrees
}

// ToLevel converts degrees back to a raw heating level with a
// nearest-neighbor scan over the table values, ties going to the
// first-encountered entry. This is a coarser quantization than
// ToTemperature's interpolation, so the two are deliberately not exact
// inverses of each other.
func ToLevel(degrees float64, unit Unit) int {
	t := table(unit)

	best := t[0].level
	bestDiff := math.Inf(1)
	for _, e := range t {
		if diff := math.Abs(e.degrees - degrees); diff < bestDiff {
			bestDiff = diff
			best = e.level
		}
	}
	return best
}
