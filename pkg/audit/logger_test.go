package audit

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/fishlens/fishlens/pkg/models"
)

func tempCfg(t *testing.T) models.AuditConfig {
	t.Helper()
	return models.AuditConfig{
		Enabled:       true,
		DBPath:        filepath.Join(t.TempDir(), "audit_test.db"),
		RetentionDays: 90,
		IncludeRaw:    true,
		MaxRawSize:    1024,
	}
}

func mustNew(t *testing.T, cfg models.AuditConfig) *Logger {
	t.Helper()
	l, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func sampleEntry() models.AuditEntry {
	return models.AuditEntry{
		RequestID:         "req-001",
		Fingerprint:       "0123456789abcdef0123456789abcdef",
		Kind:              models.KindFreshness,
		Outcome:           models.OutcomeFinalized,
		Confidence:        65,
		Violations:        []models.ViolationKind{models.ViolationMissingField, models.ViolationOutOfRange},
		RawText:           "Skor Kesegaran: 12",
		Normalized:        "Freshness Score: 12\n",
		Source:            "cli",
		VocabularyVersion: 3,
		CreatedAt:         time.Now(),
	}
}

func TestLogAndQuery(t *testing.T) {
	l := mustNew(t, tempCfg(t))
	ctx := context.Background()

	entry := sampleEntry()
	if err := l.Log(ctx, entry); err != nil {
		t.Fatalf("Log: %v", err)
	}

	entries, err := l.Query(ctx, models.AuditQueryOpts{Kind: models.KindFreshness})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	got := entries[0]
	if got.RequestID != "req-001" {
		t.Errorf("expected req-001, got %s", got.RequestID)
	}
	if !reflect.DeepEqual(got.Violations, entry.Violations) {
		t.Errorf("expected violations %v, got %v", entry.Violations, got.Violations)
	}
	if got.RawText != entry.RawText || got.Confidence != 65 || got.Source != "cli" || got.VocabularyVersion != 3 {
		t.Errorf("unexpected entry: %+v", got)
	}
}

func TestMigrateAddsVocabularyVersion(t *testing.T) {
	cfg := tempCfg(t)
	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		t.Fatal(err)
	}
	_, err = db.Exec(`CREATE TABLE audit_log (
		request_id TEXT PRIMARY KEY, fingerprint TEXT NOT NULL, kind TEXT NOT NULL,
		outcome TEXT NOT NULL, confidence INTEGER NOT NULL DEFAULT 0, violations TEXT,
		error TEXT, raw_text TEXT, normalized TEXT, source TEXT, created_at DATETIME NOT NULL)`)
	db.Close()
	if err != nil {
		t.Fatal(err)
	}

	l := mustNew(t, cfg)
	ctx := context.Background()
	if err := l.Log(ctx, sampleEntry()); err != nil {
		t.Fatalf("Log: %v", err)
	}
	entries, err := l.Query(ctx, models.AuditQueryOpts{RequestID: "req-001"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 || entries[0].VocabularyVersion != 3 {
		t.Errorf("expected vocabulary version 3, got %+v", entries)
	}
}

func TestQueryFilters(t *testing.T) {
	l := mustNew(t, tempCfg(t))
	ctx := context.Background()

	_ = l.Log(ctx, sampleEntry())
	rejected := sampleEntry()
	rejected.RequestID = "req-002"
	rejected.Outcome = models.OutcomeRejected
	rejected.Kind = models.KindSpecies
	rejected.Fingerprint = "ffffffffffffffffffffffffffffffff"
	rejected.Violations = nil
	rejected.Error = "no recognizable content"
	_ = l.Log(ctx, rejected)

	tests := []struct {
		name string
		opts models.AuditQueryOpts
		want int
	}{
		{"all", models.AuditQueryOpts{}, 2},
		{"request id", models.AuditQueryOpts{RequestID: "req-002"}, 1},
		{"outcome", models.AuditQueryOpts{Outcome: models.OutcomeRejected}, 1},
		{"fingerprint", models.AuditQueryOpts{Fingerprint: "0123456789abcdef0123456789abcdef"}, 1},
		{"kind", models.AuditQueryOpts{Kind: models.KindBoth}, 0},
		{"since", models.AuditQueryOpts{Since: time.Now().Add(time.Hour)}, 0},
		{"limit", models.AuditQueryOpts{Limit: 1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := l.Query(ctx, tt.opts)
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if len(entries) != tt.want {
				t.Errorf("expected %d entries, got %d", tt.want, len(entries))
			}
		})
	}

	entries, _ := l.Query(ctx, models.AuditQueryOpts{RequestID: "req-002"})
	if entries[0].Error != "no recognizable content" || entries[0].Violations != nil {
		t.Errorf("unexpected rejected entry: %+v", entries[0])
	}
}

func TestFillsRequestID(t *testing.T) {
	l := mustNew(t, tempCfg(t))
	ctx := context.Background()

	entry := sampleEntry()
	entry.RequestID = ""
	entry.CreatedAt = time.Time{}
	if err := l.Log(ctx, entry); err != nil {
		t.Fatalf("Log: %v", err)
	}

	entries, _ := l.Query(ctx, models.AuditQueryOpts{})
	if len(entries) != 1 || len(entries[0].RequestID) != 36 {
		t.Fatalf("expected generated request id, got %+v", entries)
	}
	if entries[0].CreatedAt.IsZero() {
		t.Error("expected created_at to be filled in")
	}
}

func TestRawTruncation(t *testing.T) {
	cfg := tempCfg(t)
	cfg.MaxRawSize = 16
	l := mustNew(t, cfg)
	ctx := context.Background()

	entry := sampleEntry()
	entry.RawText = strings.Repeat("x", 100)
	if err := l.Log(ctx, entry); err != nil {
		t.Fatalf("Log: %v", err)
	}

	entries, err := l.Query(ctx, models.AuditQueryOpts{RequestID: "req-001"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries[0].RawText) != 16 {
		t.Errorf("expected truncated raw text len 16, got %d", len(entries[0].RawText))
	}
}

func TestRawExcluded(t *testing.T) {
	cfg := tempCfg(t)
	cfg.IncludeRaw = false
	l := mustNew(t, cfg)
	ctx := context.Background()

	if err := l.Log(ctx, sampleEntry()); err != nil {
		t.Fatalf("Log: %v", err)
	}

	entries, err := l.Query(ctx, models.AuditQueryOpts{RequestID: "req-001"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if entries[0].RawText != "" {
		t.Errorf("expected empty raw text, got %q", entries[0].RawText)
	}
	if entries[0].Normalized == "" {
		t.Error("normalized text should be kept")
	}
}

func TestCleanup(t *testing.T) {
	cfg := tempCfg(t)
	cfg.RetentionDays = 0 // everything is old
	l := mustNew(t, cfg)
	ctx := context.Background()

	entry := sampleEntry()
	entry.CreatedAt = time.Now().AddDate(0, 0, -1)
	_ = l.Log(ctx, entry)

	deleted, err := l.Cleanup(ctx)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted, got %d", deleted)
	}
}

func TestStats(t *testing.T) {
	l := mustNew(t, tempCfg(t))
	ctx := context.Background()

	_ = l.Log(ctx, sampleEntry())
	e2 := sampleEntry()
	e2.RequestID = "req-002"
	e2.Confidence = 85
	_ = l.Log(ctx, e2)

	stats, err := l.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if len(stats) == 0 {
		t.Fatal("expected stats")
	}
	if stats[0].Count != 2 {
		t.Errorf("expected count 2, got %d", stats[0].Count)
	}
	if stats[0].AvgConfidence != 75 {
		t.Errorf("expected average confidence 75, got %v", stats[0].AvgConfidence)
	}
	if stats[0].Kind != models.KindFreshness || stats[0].Outcome != models.OutcomeFinalized {
		t.Errorf("unexpected grouping: %+v", stats[0])
	}
}

func TestNewRequestIDUnique(t *testing.T) {
	a, b := NewRequestID(), NewRequestID()
	if a == b {
		t.Error("expected distinct request ids")
	}
}

func TestNilLoggerSafe(t *testing.T) {
	var l *Logger
	if err := l.Log(context.Background(), sampleEntry()); err != nil {
		t.Errorf("nil logger should be safe: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("nil logger close should be safe: %v", err)
	}
}

func TestNewInvalidPath(t *testing.T) {
	cfg := models.AuditConfig{
		Enabled: true,
		DBPath:  filepath.Join(os.TempDir(), "nonexistent", "deep", "path", "audit.db"),
	}
	_, err := New(cfg)
	if err == nil {
		t.Error("expected error for invalid path")
	}
}
