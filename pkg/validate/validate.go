// Package validate checks a normalized result against the structural rules
// for its analysis kind.
package validate

import (
	"fmt"

	"github.com/fishlens/fishlens/pkg/models"
)

// Field names used in violations.
const (
	FieldSpecies           = "species"
	FieldFreshnessScore    = "freshness.score"
	FieldFreshnessCategory = "freshness.category"
	subScorePrefix         = "sub_scores."
)

// Contradiction thresholds: a very_fresh grade needs a score of at least
// veryFreshMin and a not_fresh grade at most notFreshMax.
const (
	veryFreshMin = 4
	notFreshMax  = 6
)

// SubScoreField returns the violation field name for a sub-score parameter.
func SubScoreField(parameter string) string {
	return subScorePrefix + parameter
}

// Validate runs the rules in fixed order: required fields, numeric range,
// contradiction, malformed numerics. A numeric reported missing is not
// evaluated by later rules. The input is never modified.
func Validate(r models.NormalizedResult, kind models.AnalysisKind) models.ValidationReport {
	var vs []models.Violation
	add := func(k models.ViolationKind, field, detail string) {
		vs = append(vs, models.Violation{Kind: k, Field: field, Detail: detail})
	}

	scoreMissing := false
	if kind.WantsSpecies() && r.Species.State != models.StatePresent {
		add(models.ViolationMissingField, FieldSpecies, "species name not found")
	}
	if kind.WantsFreshness() && r.Freshness.Score.State == models.StateAbsent {
		add(models.ViolationMissingField, FieldFreshnessScore, "freshness score not found")
		scoreMissing = true
	}

	if kind.WantsFreshness() {
		score := r.Freshness.Score
		if !scoreMissing && score.Present() && score.OutOfRange {
			add(models.ViolationOutOfRange, FieldFreshnessScore, rangeDetail(score.Value))
		}
		for _, s := range r.SubScores {
			if s.Score.Present() && s.Score.OutOfRange {
				add(models.ViolationOutOfRange, SubScoreField(s.Parameter), rangeDetail(s.Score.Value))
			}
		}

		if !scoreMissing && score.InRange() {
			switch {
			case r.Freshness.Category == models.CategoryVeryFresh && score.Value < veryFreshMin:
				add(models.ViolationContradiction, FieldFreshnessCategory,
					fmt.Sprintf("category very_fresh but score %d is below %d", score.Value, veryFreshMin))
			case r.Freshness.Category == models.CategoryNotFresh && score.Value > notFreshMax:
				add(models.ViolationContradiction, FieldFreshnessCategory,
					fmt.Sprintf("category not_fresh but score %d is above %d", score.Value, notFreshMax))
			}
		}

		if !scoreMissing && score.State == models.StateMalformed {
			add(models.ViolationMalformedNumeric, FieldFreshnessScore, fmt.Sprintf("no integer in %q", score.Raw))
		}
		for _, s := range r.SubScores {
			if s.Score.State == models.StateMalformed {
				add(models.ViolationMalformedNumeric, SubScoreField(s.Parameter), fmt.Sprintf("no integer in %q", s.Score.Raw))
			}
		}
	}

	return models.ValidationReport{Valid: len(vs) == 0, Violations: vs}
}

func rangeDetail(v int) string {
	return fmt.Sprintf("value %d outside [%d, %d]", v, models.ScoreMin, models.ScoreMax)
}
