// Package scoring holds the pure score and rank math. It has no
// persistence or transport concerns so the calculations can be tested
// in isolation.
package scoring

import "math"

// Blend weights for the final score. The AI channel is carried through
// the data model but contributes nothing until automated review ships.
const (
	AIScoreWeight    = 0.0
	HumanScoreWeight = 1.0
)

// DefaultCriterionWeight applies when a rubric criterion carries no
// explicit weight.
const DefaultCriterionWeight = 1.0

// Round2 rounds half away from zero to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Overall computes a single judge's weighted average across criteria.
// Criteria missing from weights use DefaultCriterionWeight; if the total
// weight is zero the plain arithmetic mean is used instead.
func Overall(criteriaScores map[string]float64, weights map[string]float64) float64 {
	if len(criteriaScores) == 0 {
		return 0
	}
	var weightedSum, totalWeight float64
	for criterion, score := range criteriaScores {
		w, ok := weights[criterion]
		if !ok {
			w = DefaultCriterionWeight
		}
		weightedSum += score * w
		totalWeight += w
	}
	if totalWeight == 0 {
		var sum float64
		for _, score := range criteriaScores {
			sum += score
		}
		return sum / float64(len(criteriaScores))
	}
	return weightedSum / totalWeight
}

// Mean returns the arithmetic mean of vals, or 0 for an empty slice.
func Mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// FinalScore blends the AI and human averages and rounds to two places.
func FinalScore(aiAverage, humanAverage float64) float64 {
	return Round2(AIScoreWeight*aiAverage + HumanScoreWeight*humanAverage)
}
