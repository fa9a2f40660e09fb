package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreNormalize(t *testing.T) {
	cases := []struct {
		name  string
		score Score
		value float64
		ok    bool
	}{
		{"number", "8", 8, true},
		{"decimal", " 7.5 ", 7.5, true},
		{"missing marker", "M", 0, true},
		{"missing marker lower case padded", "  m ", 0, true},
		{"empty", "", 0, false},
		{"blank", "   ", 0, false},
		{"text", "absent", 0, false},
		{"trailing junk", "8abc", 0, false},
		{"nan", "NaN", 0, false},
		{"infinity", "Inf", 0, false},
		{"negative passes through", "-2", -2, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, ok := tc.score.Normalize()
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.value, v)
		})
	}
}

func TestScoreJSON(t *testing.T) {
	var entry GradeEntry
	require.NoError(t, json.Unmarshal([]byte(`{"k":8,"t":"M","c":null,"a":"9.5","grade":true}`), &entry))
	assert.Equal(t, Score("8"), entry.K)
	assert.True(t, entry.T.IsMissing())
	assert.True(t, entry.C.IsEmpty())
	assert.Equal(t, Score("9.5"), entry.A)
	assert.True(t, entry.Grade.IsEmpty())

	out, err := json.Marshal(entry)
	require.NoError(t, err)
	assert.JSONEq(t, `{"k":8,"t":"M","a":9.5}`, string(out))
}

func TestNumberJSON(t *testing.T) {
	var unit Unit
	require.NoError(t, json.Unmarshal([]byte(`{"id":"u1","weight":"40"}`), &unit))
	assert.True(t, unit.Weight.Valid)
	assert.Equal(t, 40.0, unit.WeightPercent())

	require.NoError(t, json.Unmarshal([]byte(`{"id":"u1","weight":"forty"}`), &unit))
	assert.False(t, unit.Weight.Valid)
	assert.Equal(t, 0.0, unit.WeightPercent())

	var assignment Assignment
	require.NoError(t, json.Unmarshal([]byte(`{"id":"a1","weight":null,"total":"x"}`), &assignment))
	assert.Equal(t, DefaultAssignmentWeight, assignment.WeightFactor())
	assert.Equal(t, 0.0, assignment.TotalMax())

	out, err := json.Marshal(Assignment{ID: "a1", Weight: NewNumber(2), CategoryTotals: map[Category]Number{CategoryKnowledge: NewNumber(10)}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"a1","name":"","order":0,"weight":2,"is_submitted":false,"category_totals":{"k":10},"total":null}`, string(out))
}

func TestCategoryWeightsDefault(t *testing.T) {
	var nilWeights CategoryWeights
	assert.Equal(t, DefaultCategoryWeight, nilWeights.Weight(CategoryThinking))

	weights := CategoryWeights{CategoryKnowledge: NewNumber(40), CategoryThinking: {}}
	assert.Equal(t, 40.0, weights.Weight(CategoryKnowledge))
	assert.Equal(t, DefaultCategoryWeight, weights.Weight(CategoryThinking))
	assert.Equal(t, DefaultCategoryWeight, weights.Weight(CategoryApplication))
}

func TestOrderedUnitsIsStable(t *testing.T) {
	class := ClassConfig{Units: []Unit{
		{ID: "b", Order: 2},
		{ID: "a", Order: 1},
		{ID: "final", Order: 1, IsFinal: true},
		{ID: "c", Order: 2},
	}}
	ids := func(units []Unit) []string {
		out := make([]string, 0, len(units))
		for _, u := range units {
			out = append(out, u.ID)
		}
		return out
	}
	assert.Equal(t, []string{"a", "final", "b", "c"}, ids(class.OrderedUnits()))
	assert.Equal(t, []string{"a", "b", "c"}, ids(class.TermUnits()))
	final, ok := class.FinalUnit()
	require.True(t, ok)
	assert.Equal(t, "final", final.ID)
	assert.Equal(t, "b", class.Units[0].ID)
}

func TestGradeEntryMerge(t *testing.T) {
	current := GradeEntry{K: "8", T: "7"}
	merged := current.Merge(GradeEntry{T: "M", C: "6"}, false)
	assert.Equal(t, GradeEntry{K: "8", T: "M", C: "6"}, merged)

	cleared := current.Merge(GradeEntry{K: "9"}, true)
	assert.Equal(t, GradeEntry{K: "9"}, cleared)
	assert.True(t, GradeEntry{}.IsEmpty())
}
