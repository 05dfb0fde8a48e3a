package validate

import (
	"reflect"
	"testing"

	"github.com/fishlens/fishlens/pkg/models"
)

func freshResult(score models.Numeric, cat models.FreshnessCategory, subs ...models.SubScore) models.NormalizedResult {
	r := models.EmptyResult(models.KindFreshness)
	r.Freshness.Category = cat
	r.Freshness.Score = score
	r.SubScores = subs
	return r
}

func sub(param string, n models.Numeric) models.SubScore {
	return models.SubScore{Parameter: param, Label: param, Score: n}
}

func TestValidateClean(t *testing.T) {
	r := models.EmptyResult(models.KindBoth)
	r.Species = models.Species{State: models.StatePresent, Name: "Kakap"}
	r.Freshness.Category = models.CategoryFresh
	r.Freshness.Score = models.PresentNumeric(7)
	r.SubScores = []models.SubScore{sub("eyes", models.PresentNumeric(8))}

	rep := Validate(r, models.KindBoth)
	if !rep.Valid || len(rep.Violations) != 0 {
		t.Errorf("expected valid report, got %+v", rep)
	}
}

func TestValidateMissingFields(t *testing.T) {
	r := models.EmptyResult(models.KindBoth)
	rep := Validate(r, models.KindBoth)

	want := []models.ViolationKind{models.ViolationMissingField, models.ViolationMissingField}
	if !reflect.DeepEqual(rep.Kinds(), want) {
		t.Errorf("expected %v, got %v", want, rep.Kinds())
	}
	if rep.Valid {
		t.Error("expected invalid report")
	}
	if rep.Violations[0].Field != FieldSpecies || rep.Violations[1].Field != FieldFreshnessScore {
		t.Errorf("unexpected fields: %+v", rep.Violations)
	}
}

func TestValidateKindScopesRequiredFields(t *testing.T) {
	r := models.EmptyResult(models.KindSpecies)
	r.Species = models.Species{State: models.StatePresent, Name: "Bandeng"}
	if rep := Validate(r, models.KindSpecies); !rep.Valid {
		t.Errorf("species result without freshness should be valid, got %+v", rep)
	}

	r = freshResult(models.PresentNumeric(5), models.CategoryAbsent)
	if rep := Validate(r, models.KindFreshness); !rep.Valid {
		t.Errorf("freshness result without species should be valid, got %+v", rep)
	}
}

func TestValidateOutOfRange(t *testing.T) {
	r := freshResult(models.PresentNumeric(12), models.CategoryAbsent,
		sub("eyes", models.PresentNumeric(0)),
		sub("gills", models.PresentNumeric(9)),
	)
	before := r.Clone()
	rep := Validate(r, models.KindFreshness)

	if rep.Count(models.ViolationOutOfRange) != 2 {
		t.Fatalf("expected 2 out_of_range, got %+v", rep.Violations)
	}
	if rep.Violations[0].Field != FieldFreshnessScore || rep.Violations[1].Field != SubScoreField("eyes") {
		t.Errorf("unexpected fields: %+v", rep.Violations)
	}
	if r.Freshness.Score.Value != 12 {
		t.Errorf("expected original value 12 preserved, got %d", r.Freshness.Score.Value)
	}
	if !reflect.DeepEqual(r, before) {
		t.Error("validate modified its input")
	}
}

func TestValidateContradiction(t *testing.T) {
	tests := []struct {
		name  string
		cat   models.FreshnessCategory
		score models.Numeric
		want  bool
	}{
		{"very fresh low score", models.CategoryVeryFresh, models.PresentNumeric(3), true},
		{"very fresh at threshold", models.CategoryVeryFresh, models.PresentNumeric(4), false},
		{"not fresh high score", models.CategoryNotFresh, models.PresentNumeric(8), true},
		{"not fresh at threshold", models.CategoryNotFresh, models.PresentNumeric(6), false},
		{"fresh any score", models.CategoryFresh, models.PresentNumeric(1), false},
		{"out of range not compared", models.CategoryVeryFresh, models.PresentNumeric(0), false},
		{"malformed not compared", models.CategoryNotFresh, models.MalformedNumeric("tinggi"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep := Validate(freshResult(tt.score, tt.cat), models.KindFreshness)
			if got := rep.Has(models.ViolationContradiction); got != tt.want {
				t.Errorf("expected contradiction=%v, got %+v", tt.want, rep.Violations)
			}
		})
	}
}

func TestValidateMalformed(t *testing.T) {
	r := freshResult(models.MalformedNumeric("tinggi"), models.CategoryFresh,
		sub("gills", models.MalformedNumeric("merah")),
		sub("eyes", models.AbsentNumeric()),
	)
	rep := Validate(r, models.KindFreshness)

	want := []models.ViolationKind{models.ViolationMalformedNumeric, models.ViolationMalformedNumeric}
	if !reflect.DeepEqual(rep.Kinds(), want) {
		t.Errorf("expected %v, got %v", want, rep.Kinds())
	}
}

func TestValidateRuleOrder(t *testing.T) {
	r := models.EmptyResult(models.KindBoth)
	r.Freshness.Category = models.CategoryVeryFresh
	r.SubScores = []models.SubScore{
		sub("flesh", models.MalformedNumeric("lembek")),
		sub("eyes", models.PresentNumeric(11)),
	}
	rep := Validate(r, models.KindBoth)

	want := []models.ViolationKind{
		models.ViolationMissingField,
		models.ViolationMissingField,
		models.ViolationOutOfRange,
		models.ViolationMalformedNumeric,
	}
	if !reflect.DeepEqual(rep.Kinds(), want) {
		t.Errorf("expected %v, got %v", want, rep.Kinds())
	}
}
