package audit

import "github.com/fishlens/fishlens/pkg/models"

// Finalized builds the entry for a result that was normalized and cached.
// vocab is the normalizer's vocabulary version.
func Finalized(source string, vocab int, fp models.Fingerprint, kind models.AnalysisKind, raw, normalized string,
	score models.ConfidenceScore, report models.ValidationReport) models.AuditEntry {
	return models.AuditEntry{
		Fingerprint:       fp.String(),
		Kind:              kind,
		Outcome:           models.OutcomeFinalized,
		Confidence:        score.Percentage,
		Violations:        report.Kinds(),
		RawText:           raw,
		Normalized:        normalized,
		Source:            source,
		VocabularyVersion: vocab,
	}
}

// Rejected builds the entry for raw text that could not be finalized.
func Rejected(source string, vocab int, fp models.Fingerprint, kind models.AnalysisKind, raw string, err error) models.AuditEntry {
	e := models.AuditEntry{
		Fingerprint:       fp.String(),
		Kind:              kind,
		Outcome:           models.OutcomeRejected,
		RawText:           raw,
		Source:            source,
		VocabularyVersion: vocab,
	}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// Reused builds the entry for an exact cache hit served without the model.
func Reused(source string, entry models.CacheEntry) models.AuditEntry {
	return models.AuditEntry{
		Fingerprint: entry.Fingerprint.String(),
		Kind:        entry.Kind,
		Outcome:     models.OutcomeReused,
		Confidence:  entry.Confidence.Percentage,
		Violations:  entry.Report.Kinds(),
		Source:      source,
	}
}
