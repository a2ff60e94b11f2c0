package units

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUnit(t *testing.T) {
	for in, want := range map[string]Unit{
		"c":          Celsius,
		"C":          Celsius,
		"celsius":    Celsius,
		" Celsius ":  Celsius,
		"f":          Fahrenheit,
		"fahrenheit": Fahrenheit,
	} {
		got, err := ParseUnit(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseUnit("kelvin")
	assert.Error(t, err)
}

func TestToTemperatureExactHits(t *testing.T) {
	assert.Equal(t, 13.0, ToTemperature(-100, Celsius))
	assert.Equal(t, 30.0, ToTemperature(-3, Celsius))
	assert.Equal(t, 44.0, ToTemperature(100, Celsius))
	assert.Equal(t, 55.0, ToTemperature(-100, Fahrenheit))
	assert.Equal(t, 110.0, ToTemperature(100, Fahrenheit))
}

func TestToTemperatureClampsOutsideRange(t *testing.T) {
	assert.Equal(t, 13.0, ToTemperature(-150, Celsius))
	assert.Equal(t, 44.0, ToTemperature(150, Celsius))
	assert.Equal(t, 55.0, ToTemperature(-101, Fahrenheit))
	assert.Equal(t, 110.0, ToTemperature(101, Fahrenheit))
}

func TestToTemperatureInterpolates(t *testing.T) {
	// Halfway between {-10, 29} and {-3, 30}.
	got := ToTemperature(-7, Celsius)
	assert.Greater(t, got, 29.0)
	assert.Less(t, got, 30.0)
}

func TestToTemperatureMonotonic(t *testing.T) {
	for _, unit := range []Unit{Celsius, Fahrenheit} {
		prev := ToTemperature(-100, unit)
		for level := -99; level <= 100; level++ {
			cur := ToTemperature(level, unit)
			assert.GreaterOrEqual(t, cur, prev, "unit %s level %d", unit, level)
			prev = cur
		}
	}
}

func TestRoundTripAtTableKeys(t *testing.T) {
	for _, unit := range []Unit{Celsius, Fahrenheit} {
		for _, e := range table(unit) {
			got := ToLevel(ToTemperature(e.level, unit), unit)
			assert.Equal(t, e.level, got, "unit %s level %d", unit, e.level)
		}
	}
}

func TestToLevelNearestNeighbor(t *testing.T) {
	// 29.4 is closer to 29 degrees (level -10) than 30 (level -3).
	assert.Equal(t, -10, ToLevel(29.4, Celsius))
	// Far outside the table snaps to an edge.
	assert.Equal(t, -100, ToLevel(0, Celsius))
	assert.Equal(t, 100, ToLevel(200, Celsius))
}
