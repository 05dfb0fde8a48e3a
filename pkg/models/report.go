package models

// ViolationKind tags a validation finding.
type ViolationKind string

const (
	ViolationMissingField     ViolationKind = "missing_field"
	ViolationOutOfRange       ViolationKind = "out_of_range"
	ViolationContradiction    ViolationKind = "contradiction"
	ViolationMalformedNumeric ViolationKind = "malformed_numeric"
)

// Violation is one rule failure found by the validator.
type Violation struct {
	Kind   ViolationKind `json:"kind"`
	Field  string        `json:"field"`
	Detail string        `json:"detail,omitempty"`
}

// ValidationReport lists violations in rule evaluation order.
type ValidationReport struct {
	Valid      bool        `json:"valid"`
	Violations []Violation `json:"violations,omitempty"`
}

// Kinds returns the violation kinds in order.
func (r ValidationReport) Kinds() []ViolationKind {
	kinds := make([]ViolationKind, 0, len(r.Violations))
	for _, v := range r.Violations {
		kinds = append(kinds, v.Kind)
	}
	return kinds
}

// Has reports whether any violation has the given kind.
func (r ValidationReport) Has(kind ViolationKind) bool {
	for _, v := range r.Violations {
		if v.Kind == kind {
			return true
		}
	}
	return false
}

// Count returns the number of violations of the given kind.
func (r ValidationReport) Count(kind ViolationKind) int {
	n := 0
	for _, v := range r.Violations {
		if v.Kind == kind {
			n++
		}
	}
	return n
}

// Clone returns a deep copy.
func (r ValidationReport) Clone() ValidationReport {
	out := r
	if r.Violations != nil {
		out.Violations = append([]Violation(nil), r.Violations...)
	}
	return out
}

// Confidence factor names used in ConfidenceScore.Components.
const (
	FactorBase                   = "base"
	FactorStructuralCompleteness = "structural_completeness"
	FactorValidatorPenalty       = "validator_penalty"
	FactorNumericPlausibility    = "numeric_plausibility"
	FactorFloor                  = "floor"
)

// ConfidenceScore is a 0-100 confidence with its per-factor breakdown.
// Components always sum to Percentage.
type ConfidenceScore struct {
	Percentage int            `json:"percentage"`
	Components map[string]int `json:"components"`
}

// Clone returns a deep copy.
func (c ConfidenceScore) Clone() ConfidenceScore {
	out := ConfidenceScore{Percentage: c.Percentage}
	if c.Components != nil {
		out.Components = make(map[string]int, len(c.Components))
		for k, v := range c.Components {
			out.Components[k] = v
		}
	}
	return out
}
