package models

import (
	"fmt"
	"strings"
)

// AnalysisKind selects which fields an analysis must produce.
type AnalysisKind string

const (
	KindSpecies   AnalysisKind = "species"
	KindFreshness AnalysisKind = "freshness"
	KindBoth      AnalysisKind = "both"
)

// AllKinds lists every analysis kind in canonical order.
var AllKinds = []AnalysisKind{KindSpecies, KindFreshness, KindBoth}

// ParseAnalysisKind converts a user-supplied string into an AnalysisKind.
func ParseAnalysisKind(s string) (AnalysisKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "species", "spesies", "jenis":
		return KindSpecies, nil
	case "freshness", "kesegaran":
		return KindFreshness, nil
	case "both", "full", "lengkap":
		return KindBoth, nil
	}
	return "", fmt.Errorf("unknown analysis kind %q", s)
}

// WantsSpecies reports whether the kind requires a species name.
func (k AnalysisKind) WantsSpecies() bool {
	return k == KindSpecies || k == KindBoth
}

// WantsFreshness reports whether the kind requires a freshness score.
func (k AnalysisKind) WantsFreshness() bool {
	return k == KindFreshness || k == KindBoth
}

// RequiredFields returns the number of required fields for the kind.
func (k AnalysisKind) RequiredFields() int {
	n := 0
	if k.WantsSpecies() {
		n++
	}
	if k.WantsFreshness() {
		n++
	}
	return n
}

// Valid reports whether k is one of the known kinds.
func (k AnalysisKind) Valid() bool {
	return k == KindSpecies || k == KindFreshness || k == KindBoth
}
