package normalize

import (
	"strconv"
	"strings"

	"github.com/fishlens/fishlens/pkg/models"
)

// Serialize renders r as canonical labeled text. Normalizing the output
// with the same kind yields r again.
func (n *Normalizer) Serialize(r models.NormalizedResult) string {
	m := n.m
	var b strings.Builder
	line := func(label, value string) {
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteByte('\n')
	}

	if r.Kind.WantsSpecies() {
		line(m.fieldLabels[FieldSpecies], n.speciesText(r.Species))
	}
	if r.Kind.WantsFreshness() {
		category := m.unknownLabel
		switch r.Freshness.Category {
		case models.CategoryAbsent:
		case models.CategoryUnrecognized:
			category = r.Freshness.CategoryText
		default:
			category = m.categoryLabels[r.Freshness.Category]
		}
		line(m.fieldLabels[FieldFreshnessCategory], category)
		line(m.fieldLabels[FieldFreshnessScore], n.numericText(r.Freshness.Score))

		if len(r.SubScores) > 0 {
			b.WriteString(m.sectionLabels[SectionParameters])
			b.WriteString(":\n")
			for _, s := range r.SubScores {
				line(s.Label, n.numericText(s.Score))
			}
		}
	}
	for _, note := range r.Notes {
		line(m.sectionLabels[SectionNotes], note)
	}
	return b.String()
}

func (n *Normalizer) speciesText(s models.Species) string {
	if s.State != models.StatePresent {
		return n.m.unknownLabel
	}
	if s.ScientificName == "" {
		return s.Name
	}
	return s.Name + " (" + s.ScientificName + ")"
}

func (n *Normalizer) numericText(v models.Numeric) string {
	switch v.State {
	case models.StatePresent:
		return strconv.Itoa(v.Value)
	case models.StateMalformed:
		return v.Raw
	default:
		return n.m.unknownLabel
	}
}
