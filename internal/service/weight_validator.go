package service

import (
	"math"

	"github.com/noah-isme/gradebook-api/internal/models"
)

// IsValidWeightDistribution reports whether the proposed term-unit weights add
// up to 100 once the raw sum is rounded half up. Only the sum is rounded, so
// 99.6 passes and 99.4 does not. Non-finite weights count as 0.
func IsValidWeightDistribution(unitWeights []float64) bool {
	return math.Floor(weightTotal(unitWeights)+0.5) == 100
}

// weightTotal sums the finite weights.
func weightTotal(weights []float64) float64 {
	sum := 0.0
	for _, weight := range weights {
		if math.IsNaN(weight) || math.IsInf(weight, 0) {
			continue
		}
		sum += weight
	}
	return sum
}

// proposedWeights reads lenient weight entries; unparsable ones count as 0.
func proposedWeights(entries []models.Number) []float64 {
	weights := make([]float64, len(entries))
	for i, entry := range entries {
		weights[i] = entry.Or(0)
	}
	return weights
}
