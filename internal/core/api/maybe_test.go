package api

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaybeFloatAbsentForms(t *testing.T) {
	type doc struct {
		V MaybeFloat `json:"v"`
	}

	for _, raw := range []string{`{}`, `{"v": null}`, `{"v": "None"}`} {
		var d doc
		require.NoError(t, json.Unmarshal([]byte(raw), &d), raw)
		assert.False(t, d.V.Present(), raw)
		_, ok := d.V.Value()
		assert.False(t, ok, raw)
	}

	var d doc
	require.NoError(t, json.Unmarshal([]byte(`{"v": 27.5}`), &d))
	v, ok := d.V.Value()
	require.True(t, ok)
	assert.Equal(t, 27.5, v)
}

func TestMaybeIntOr(t *testing.T) {
	var v MaybeInt
	assert.Equal(t, 7, v.Or(7))

	require.NoError(t, json.Unmarshal([]byte(`42`), &v))
	assert.Equal(t, 42, v.Or(7))
}

func TestMaybeBoolRoundTrip(t *testing.T) {
	var v MaybeBool
	require.NoError(t, json.Unmarshal([]byte(`false`), &v))
	b, ok := v.Value()
	require.True(t, ok)
	assert.False(t, b, "explicit false must not read as absent")

	out, err := json.Marshal(Bool(true))
	require.NoError(t, err)
	assert.Equal(t, `true`, string(out))

	out, err = json.Marshal(MaybeBool{})
	require.NoError(t, err)
	assert.Equal(t, `null`, string(out), "absent marshals as null")
}

func TestMaybeTimeFormats(t *testing.T) {
	var v MaybeTime
	require.NoError(t, json.Unmarshal([]byte(`"2026-03-01T08:30:00.000Z"`), &v))
	ts, ok := v.Value()
	require.True(t, ok)
	assert.Equal(t, 2026, ts.Year())
	assert.Equal(t, 30, ts.Minute())

	// Naive timestamps are interpreted as UTC.
	require.NoError(t, json.Unmarshal([]byte(`"2026-03-01T08:30:00"`), &v))
	ts, ok = v.Value()
	require.True(t, ok)
	assert.Equal(t, time.UTC, ts.Location())

	// Unix seconds.
	require.NoError(t, json.Unmarshal([]byte(`1767225600`), &v))
	ts, ok = v.Value()
	require.True(t, ok)
	assert.Equal(t, int64(1767225600), ts.Unix())

	require.NoError(t, json.Unmarshal([]byte(`"None"`), &v))
	assert.False(t, v.Present())
}

func TestMaybeStringNoneIsAbsent(t *testing.T) {
	var v MaybeString
	require.NoError(t, json.Unmarshal([]byte(`"None"`), &v))
	assert.False(t, v.Present())

	require.NoError(t, json.Unmarshal([]byte(`"smart"`), &v))
	s, ok := v.Value()
	require.True(t, ok)
	assert.Equal(t, "smart", s)
}
