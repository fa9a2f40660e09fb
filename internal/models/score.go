package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// MissingMarker is the sentinel recorded for missing work. It counts as zero.
const MissingMarker = "M"

// Score is a raw recorded score exactly as the grade-entry grid stored it:
// a number, the "M" marker, free text, or nothing.
type Score string

// ScoreOf formats a numeric score.
func ScoreOf(v float64) Score {
	return Score(strconv.FormatFloat(v, 'f', -1, 64))
}

// Missing returns the "M" marker score.
func Missing() Score {
	return Score(MissingMarker)
}

// IsEmpty reports whether nothing was recorded.
func (s Score) IsEmpty() bool {
	return strings.TrimSpace(string(s)) == ""
}

// IsMissing reports whether the score is the "M" marker.
func (s Score) IsMissing() bool {
	return strings.EqualFold(strings.TrimSpace(string(s)), MissingMarker)
}

// Normalize resolves the score to a number. "M" is zero; empty, unparsable and
// non-finite values report ok=false and must be left out of every average.
func (s Score) Normalize() (float64, bool) {
	trimmed := strings.TrimSpace(string(s))
	if trimmed == "" {
		return 0, false
	}
	if strings.EqualFold(trimmed, MissingMarker) {
		return 0, true
	}
	v, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// UnmarshalJSON accepts numbers, strings and null.
func (s *Score) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*s = ""
	case data[0] == '"':
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		*s = Score(raw)
	default:
		var num json.Number
		if err := json.Unmarshal(data, &num); err != nil {
			// booleans, objects and arrays are not scores
			*s = ""
			return nil
		}
		*s = Score(num.String())
	}
	return nil
}

// MarshalJSON keeps numeric scores numeric and everything else as text.
func (s Score) MarshalJSON() ([]byte, error) {
	if s.IsEmpty() {
		return []byte("null"), nil
	}
	trimmed := strings.TrimSpace(string(s))
	if v, err := strconv.ParseFloat(trimmed, 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
		return []byte(strconv.FormatFloat(v, 'f', -1, 64)), nil
	}
	return json.Marshal(string(s))
}
