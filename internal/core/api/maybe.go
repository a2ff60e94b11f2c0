package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// The vendor API reports missing values three different ways: an absent
// key, a JSON null, and the literal string "None". The Maybe types below
// normalize all three into one "absent" state at the deserialization
// boundary so accessors never have to special-case the quirk again.

var jsonNull = []byte("null")

func isAbsent(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, jsonNull) || bytes.Equal(raw, []byte(`"None"`))
}

// MaybeFloat is an optional float64.
type MaybeFloat struct {
	value float64
	ok    bool
}

// Float returns a present MaybeFloat, mainly for tests and fixtures.
func Float(v float64) MaybeFloat { return MaybeFloat{value: v, ok: true} }

func (m *MaybeFloat) UnmarshalJSON(raw []byte) error {
	*m = MaybeFloat{}
	if isAbsent(raw) {
		return nil
	}
	if err := json.Unmarshal(raw, &m.value); err != nil {
		return fmt.Errorf("api: decode optional float: %w", err)
	}
	m.ok = true
	return nil
}

func (m MaybeFloat) MarshalJSON() ([]byte, error) {
	if !m.ok {
		return jsonNull, nil
	}
	return json.Marshal(m.value)
}

// Value returns the held float and whether one is present.
func (m MaybeFloat) Value() (float64, bool) { return m.value, m.ok }

// Present reports whether a value is held.
func (m MaybeFloat) Present() bool { return m.ok }

// MaybeInt is an optional integer.
type MaybeInt struct {
	value int
	ok    bool
}

// Int returns a present MaybeInt.
func Int(v int) MaybeInt { return MaybeInt{value: v, ok: true} }

func (m *MaybeInt) UnmarshalJSON(raw []byte) error {
	*m = MaybeInt{}
	if isAbsent(raw) {
		return nil
	}
	// Some endpoints serialize integral values as floats.
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("api: decode optional int: %w", err)
	}
	m.value = int(f)
	m.ok = true
	return nil
}

func (m MaybeInt) MarshalJSON() ([]byte, error) {
	if !m.ok {
		return jsonNull, nil
	}
	return json.Marshal(m.value)
}

// Value returns the held int and whether one is present.
func (m MaybeInt) Value() (int, bool) { return m.value, m.ok }

// Present reports whether a value is held.
func (m MaybeInt) Present() bool { return m.ok }

// Or returns the held int, or def when absent.
func (m MaybeInt) Or(def int) int {
	if !m.ok {
		return def
	}
	return m.value
}

// MaybeBool is an optional boolean.
type MaybeBool struct {
	value bool
	ok    bool
}

// Bool returns a present MaybeBool.
func Bool(v bool) MaybeBool { return MaybeBool{value: v, ok: true} }

func (m *MaybeBool) UnmarshalJSON(raw []byte) error {
	*m = MaybeBool{}
	if isAbsent(raw) {
		return nil
	}
	if err := json.Unmarshal(raw, &m.value); err != nil {
		return fmt.Errorf("api: decode optional bool: %w", err)
	}
	m.ok = true
	return nil
}

func (m MaybeBool) MarshalJSON() ([]byte, error) {
	if !m.ok {
		return jsonNull, nil
	}
	return json.Marshal(m.value)
}

// Value returns the held bool and whether one is present.
func (m MaybeBool) Value() (bool, bool) { return m.value, m.ok }

// Present reports whether a value is held.
func (m MaybeBool) Present() bool { return m.ok }

// MaybeString is an optional string. "None" counts as absent.
type MaybeString struct {
	value string
	ok    bool
}

// String returns a present MaybeString.
func String(v string) MaybeString { return MaybeString{value: v, ok: true} }

func (m *MaybeString) UnmarshalJSON(raw []byte) error {
	*m = MaybeString{}
	if isAbsent(raw) {
		return nil
	}
	if err := json.Unmarshal(raw, &m.value); err != nil {
		return fmt.Errorf("api: decode optional string: %w", err)
	}
	m.ok = true
	return nil
}

func (m MaybeString) MarshalJSON() ([]byte, error) {
	if !m.ok {
		return jsonNull, nil
	}
	return json.Marshal(m.value)
}

// Value returns the held string and whether one is present.
func (m MaybeString) Value() (string, bool) { return m.value, m.ok }

// Present reports whether a value is held.
func (m MaybeString) Present() bool { return m.ok }

// MaybeTime is an optional timestamp. The vendor mixes RFC3339 strings
// (with or without a zone, naive values meaning UTC) and unix seconds.
type MaybeTime struct {
	value time.Time
	ok    bool
}

// Time returns a present MaybeTime.
func Time(v time.Time) MaybeTime { return MaybeTime{value: v, ok: true} }

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func (m *MaybeTime) UnmarshalJSON(raw []byte) error {
	*m = MaybeTime{}
	if isAbsent(raw) {
		return nil
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] != '"' {
		// Unix seconds.
		secs, err := strconv.ParseFloat(string(trimmed), 64)
		if err != nil {
			return fmt.Errorf("api: decode optional time: %w", err)
		}
		m.value = time.Unix(int64(secs), 0).UTC()
		m.ok = true
		return nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return fmt.Errorf("api: decode optional time: %w", err)
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		m.value = t
		m.ok = true
		return nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			m.value = t.UTC()
			m.ok = true
			return nil
		}
	}
	return fmt.Errorf("api: unsupported time format %q", s)
}

func (m MaybeTime) MarshalJSON() ([]byte, error) {
	if !m.ok {
		return jsonNull, nil
	}
	return json.Marshal(m.value.Format(time.RFC3339Nano))
}

// Value returns the held time and whether one is present.
func (m MaybeTime) Value() (time.Time, bool) { return m.value, m.ok }

// Present reports whether a value is held.
func (m MaybeTime) Present() bool { return m.ok }

// In returns the held time shifted into loc, when present.
func (m MaybeTime) In(loc *time.Location) (time.Time, bool) {
	if !m.ok {
		return time.Time{}, false
	}
	return m.value.In(loc), true
}
