// Package confidence turns a normalized result and its validation report
// into a 0-100 confidence with a per-factor breakdown.
package confidence

import "github.com/fishlens/fishlens/pkg/models"

// Penalties per violation kind.
var Penalties = map[models.ViolationKind]int{
	models.ViolationMissingField:     -25,
	models.ViolationContradiction:    -20,
	models.ViolationOutOfRange:       -10,
	models.ViolationMalformedNumeric: -15,
}

// Plausibility tuning: each in-range sub-score further than
// plausibilitySpread from the freshness score costs plausibilityStep, up
// to plausibilityCap in total.
const (
	plausibilitySpread = 3
	plausibilityStep   = -5
	plausibilityCap    = -15
)

// Score computes the confidence for r given its report. Components always
// sum to Percentage, which stays within 0..100.
func Score(r models.NormalizedResult, report models.ValidationReport) models.ConfidenceScore {
	c := map[string]int{
		models.FactorBase:                   100,
		models.FactorStructuralCompleteness: completeness(r) - 100,
		models.FactorValidatorPenalty:       penalty(report),
		models.FactorNumericPlausibility:    plausibility(r),
		models.FactorFloor:                  0,
	}

	total := 0
	for _, v := range c {
		total += v
	}
	if total < 0 {
		c[models.FactorFloor] = -total
		total = 0
	}
	return models.ConfidenceScore{Percentage: total, Components: c}
}

// completeness is 100 * present / required for the result's kind.
func completeness(r models.NormalizedResult) int {
	required := r.Kind.RequiredFields()
	if required == 0 {
		return 100
	}
	present := 0
	if r.Kind.WantsSpecies() && r.Species.State == models.StatePresent {
		present++
	}
	if r.Kind.WantsFreshness() && r.Freshness.Score.State != models.StateAbsent {
		present++
	}
	return 100 * present / required
}

func penalty(report models.ValidationReport) int {
	p := 0
	for _, v := range report.Violations {
		p += Penalties[v.Kind]
	}
	return p
}

func plausibility(r models.NormalizedResult) int {
	score := r.Freshness.Score
	if !score.InRange() {
		return 0
	}
	p := 0
	for _, s := range r.SubScores {
		if !s.Score.InRange() {
			continue
		}
		d := s.Score.Value - score.Value
		if d < 0 {
			d = -d
		}
		if d > plausibilitySpread {
			p += plausibilityStep
		}
	}
	if p < plausibilityCap {
		p = plausibilityCap
	}
	return p
}
