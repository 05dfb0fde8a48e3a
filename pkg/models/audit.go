package models

import "time"

// AuditEntry records one finalize call. VocabularyVersion identifies the
// vocabulary that normalized RawText and is zero for reused entries.
type AuditEntry struct {
	RequestID         string          `json:"request_id"`
	Fingerprint       string          `json:"fingerprint"`
	Kind              AnalysisKind    `json:"kind"`
	Outcome           string          `json:"outcome"` // "finalized", "rejected", "reused"
	Confidence        int             `json:"confidence"`
	Violations        []ViolationKind `json:"violations,omitempty"`
	Error             string          `json:"error,omitempty"`
	RawText           string          `json:"raw_text,omitempty"`
	Normalized        string          `json:"normalized,omitempty"`
	Source            string          `json:"source,omitempty"` // "cli", "mcp"
	VocabularyVersion int             `json:"vocabulary_version,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// Audit outcomes.
const (
	OutcomeFinalized = "finalized"
	OutcomeRejected  = "rejected"
	OutcomeReused    = "reused"
)

// AuditConfig controls the audit logging subsystem.
type AuditConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DBPath        string `yaml:"db_path"`
	RetentionDays int    `yaml:"retention_days"`
	IncludeRaw    bool   `yaml:"include_raw"`
	MaxRawSize    int    `yaml:"max_raw_size"` // bytes
}

// AuditQueryOpts specifies filters for querying audit entries.
type AuditQueryOpts struct {
	Kind        AnalysisKind
	Outcome     string
	Fingerprint string
	RequestID   string
	Since       time.Time
	Limit       int
}

// AuditStat holds aggregate audit counts for a kind/outcome/day combination.
type AuditStat struct {
	Kind          AnalysisKind
	Outcome       string
	Day           string
	Count         int
	AvgConfidence float64
}
