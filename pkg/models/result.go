package models

// Sub-score and freshness score bounds, inclusive.
const (
	ScoreMin = 1
	ScoreMax = 9
)

// FieldState marks whether a normalized field carried a usable value.
type FieldState string

const (
	StateAbsent    FieldState = "absent"
	StatePresent   FieldState = "present"
	StateMalformed FieldState = "malformed"
)

// FreshnessCategory is the canonical textual freshness grade.
type FreshnessCategory string

const (
	CategoryAbsent       FreshnessCategory = "absent"
	CategoryVeryFresh    FreshnessCategory = "very_fresh"
	CategoryFresh        FreshnessCategory = "fresh"
	CategoryLessFresh    FreshnessCategory = "less_fresh"
	CategoryNotFresh     FreshnessCategory = "not_fresh"
	CategoryUnrecognized FreshnessCategory = "unrecognized"
)

// Numeric is an integer reading taken from model text. Value always holds the
// integer as written; Clamped is only for display and OutOfRange records that
// the two differ.
type Numeric struct {
	State      FieldState `json:"state"`
	Value      int        `json:"value,omitempty"`
	Clamped    int        `json:"clamped,omitempty"`
	OutOfRange bool       `json:"out_of_range,omitempty"`
	Raw        string     `json:"raw,omitempty"`
}

// AbsentNumeric returns a Numeric with no value.
func AbsentNumeric() Numeric {
	return Numeric{State: StateAbsent}
}

// PresentNumeric returns a Numeric for v, flagging values outside [ScoreMin, ScoreMax].
func PresentNumeric(v int) Numeric {
	n := Numeric{State: StatePresent, Value: v, Clamped: v}
	switch {
	case v < ScoreMin:
		n.Clamped = ScoreMin
		n.OutOfRange = true
	case v > ScoreMax:
		n.Clamped = ScoreMax
		n.OutOfRange = true
	}
	return n
}

// MalformedNumeric returns a Numeric for text that held no integer.
func MalformedNumeric(raw string) Numeric {
	return Numeric{State: StateMalformed, Raw: raw}
}

// Present reports whether the numeric carries a parsed integer.
func (n Numeric) Present() bool { return n.State == StatePresent }

// InRange reports whether the numeric is present and within bounds.
func (n Numeric) InRange() bool { return n.State == StatePresent && !n.OutOfRange }

// Species identifies the fish.
type Species struct {
	State          FieldState `json:"state"`
	Name           string     `json:"name,omitempty"`
	ScientificName string     `json:"scientific_name,omitempty"`
}

// Freshness holds the textual grade and the overall 1-9 score.
type Freshness struct {
	Category     FreshnessCategory `json:"category"`
	CategoryText string            `json:"category_text,omitempty"` // set only for CategoryUnrecognized
	Score        Numeric           `json:"score"`
}

// SubScore is one parameter-level reading such as eyes or gills.
type SubScore struct {
	Parameter string  `json:"parameter"`
	Label     string  `json:"label"`
	Score     Numeric `json:"score"`
}

// NormalizedResult is the canonical structured form of a model response.
// Fields outside Kind are always absent.
type NormalizedResult struct {
	Kind      AnalysisKind `json:"kind"`
	Species   Species      `json:"species"`
	Freshness Freshness    `json:"freshness"`
	SubScores []SubScore   `json:"sub_scores,omitempty"`
	Notes     []string     `json:"notes,omitempty"`
}

// EmptyResult returns a result for kind with every field absent.
func EmptyResult(kind AnalysisKind) NormalizedResult {
	return NormalizedResult{
		Kind:    kind,
		Species: Species{State: StateAbsent},
		Freshness: Freshness{
			Category: CategoryAbsent,
			Score:    AbsentNumeric(),
		},
	}
}

// Clone returns a deep copy.
func (r NormalizedResult) Clone() NormalizedResult {
	out := r
	if r.SubScores != nil {
		out.SubScores = append([]SubScore(nil), r.SubScores...)
	}
	if r.Notes != nil {
		out.Notes = append([]string(nil), r.Notes...)
	}
	return out
}
