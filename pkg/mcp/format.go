package mcp

import (
	"fmt"
	"strings"

	"github.com/fishlens/fishlens/pkg/engine"
	"github.com/fishlens/fishlens/pkg/models"
	"github.com/fishlens/fishlens/pkg/normalize"
)

var factorOrder = []string{
	models.FactorBase,
	models.FactorStructuralCompleteness,
	models.FactorValidatorPenalty,
	models.FactorNumericPlausibility,
	models.FactorFloor,
}

// formatAnalysis renders a canonical result with its confidence breakdown
// and validator findings.
func formatAnalysis(canonical string, score models.ConfidenceScore, report models.ValidationReport) string {
	var b strings.Builder
	b.WriteString(canonical)
	if !strings.HasSuffix(canonical, "\n") {
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nConfidence: %d%%\n", score.Percentage)
	for _, f := range factorOrder {
		if v, ok := score.Components[f]; ok {
			fmt.Fprintf(&b, "  %-24s %+4d\n", f, v)
		}
	}
	if len(report.Violations) == 0 {
		b.WriteString("\nValidation: ok\n")
		return b.String()
	}
	fmt.Fprintf(&b, "\nValidation: %d issue(s)\n", len(report.Violations))
	for _, v := range report.Violations {
		fmt.Fprintf(&b, "  %-18s %-28s %s\n", v.Kind, v.Field, v.Detail)
	}
	return b.String()
}

// formatLookup renders a lookup answer.
func formatLookup(norm *normalize.Normalizer, lr engine.LookupResult) string {
	switch lr.Outcome {
	case engine.OutcomeExactHit:
		e := lr.Entry
		header := fmt.Sprintf("Exact hit (hits: %d, cached: %s)\n\n",
			e.HitCount, e.CreatedAt.Format("2006-01-02 15:04:05"))
		return header + formatAnalysis(norm.Serialize(e.Result), e.Confidence, e.Report)
	case engine.OutcomeSimilarMatches:
		var b strings.Builder
		b.WriteString("Miss. Similar cached images (advisory only):\n")
		fmt.Fprintf(&b, "%-34s %8s\n", "Fingerprint", "Distance")
		b.WriteString(strings.Repeat("-", 43) + "\n")
		for _, m := range lr.Matches {
			fmt.Fprintf(&b, "%-34s %8d\n", m.Fingerprint, m.Distance)
		}
		return b.String()
	default:
		return "Miss. No cached analysis for this image."
	}
}

// formatCacheStats formats cache stats as text.
func formatCacheStats(stats models.CacheStats) string {
	total := stats.Hits + stats.Misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	return fmt.Sprintf("Cache Statistics\n"+
		"  Entries:     %d / %d\n"+
		"  Hits:        %d\n"+
		"  Misses:      %d\n"+
		"  Hit Rate:    %.1f%%\n"+
		"  Evictions:   %d\n"+
		"  Expirations: %d\n",
		stats.Entries, stats.Capacity, stats.Hits, stats.Misses, hitRate,
		stats.Evictions, stats.Expirations)
}

// formatAuditEntries formats audit entries as a text table.
func formatAuditEntries(entries []models.AuditEntry) string {
	if len(entries) == 0 {
		return "No audit entries found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-36s %-20s %-34s %-10s %-10s %5s  %s\n",
		"Request ID", "Time", "Fingerprint", "Kind", "Outcome", "Conf", "Violations")
	b.WriteString(strings.Repeat("-", 140) + "\n")
	for _, e := range entries {
		issues := make([]string, len(e.Violations))
		for i, v := range e.Violations {
			issues[i] = string(v)
		}
		detail := strings.Join(issues, ",")
		if e.Error != "" {
			detail = e.Error
		}
		fmt.Fprintf(&b, "%-36s %-20s %-34s %-10s %-10s %4d%%  %s\n",
			e.RequestID, e.CreatedAt.Format("2006-01-02 15:04:05"),
			e.Fingerprint, e.Kind, e.Outcome, e.Confidence, detail)
	}
	return b.String()
}
