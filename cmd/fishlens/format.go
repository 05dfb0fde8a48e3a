package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fishlens/fishlens/pkg/engine"
	"github.com/fishlens/fishlens/pkg/models"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var factorOrder = []string{
	models.FactorBase,
	models.FactorStructuralCompleteness,
	models.FactorValidatorPenalty,
	models.FactorNumericPlausibility,
	models.FactorFloor,
}

func formatConfidence(score models.ConfidenceScore, report models.ValidationReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Confidence: %d%%", score.Percentage)
	var parts []string
	for _, f := range factorOrder {
		if v, ok := score.Components[f]; ok && v != 0 {
			parts = append(parts, fmt.Sprintf("%s %+d", f, v))
		}
	}
	if len(parts) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(parts, ", "))
	}
	b.WriteString("\n")

	for _, v := range report.Violations {
		fmt.Fprintf(&b, "  ! %-18s %-28s %s\n", v.Kind, v.Field, v.Detail)
	}
	return b.String()
}

func formatMatches(matches []engine.SimilarMatch) string {
	if len(matches) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Similar cached images (not reused):\n")
	for _, m := range matches {
		fmt.Fprintf(&b, "  %s  distance %d\n", m.Fingerprint, m.Distance)
	}
	return b.String()
}

func formatEntries(entries []models.CacheEntry) string {
	if len(entries) == 0 {
		return "No cached entries.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-34s %-10s %5s %6s %-20s\n", "FINGERPRINT", "KIND", "CONF", "HITS", "CREATED")
	b.WriteString(strings.Repeat("-", 80) + "\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%-34s %-10s %4d%% %6d %-20s\n",
			e.Fingerprint, e.Kind, e.Confidence.Percentage, e.HitCount,
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return b.String()
}
