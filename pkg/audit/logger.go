package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/fishlens/fishlens/pkg/models"
)

// Logger writes and queries audit entries in a dedicated SQLite database.
type Logger struct {
	db   *sql.DB
	cfg  models.AuditConfig
	done chan struct{}
	wg   sync.WaitGroup
}

// New opens the audit SQLite database and creates the schema.
func New(cfg models.AuditConfig) (*Logger, error) {
	db, err := sql.Open("sqlite", cfg.DBPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}

	l := &Logger{
		db:   db,
		cfg:  cfg,
		done: make(chan struct{}),
	}

	l.wg.Add(1)
	go l.retentionLoop()

	return l, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS audit_log (
		request_id   TEXT PRIMARY KEY,
		fingerprint  TEXT NOT NULL,
		kind         TEXT NOT NULL,
		outcome      TEXT NOT NULL,
		confidence   INTEGER NOT NULL DEFAULT 0,
		violations   TEXT,
		error        TEXT,
		raw_text     TEXT,
		normalized   TEXT,
		source       TEXT,
		created_at   DATETIME NOT NULL,
		vocabulary_version INTEGER NOT NULL DEFAULT 0
	)`)
	if err != nil {
		return err
	}
	// Tables created before vocabulary versions were recorded.
	var n int
	err = db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('audit_log') WHERE name = 'vocabulary_version'`).Scan(&n)
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := db.Exec(`ALTER TABLE audit_log ADD COLUMN vocabulary_version INTEGER NOT NULL DEFAULT 0`); err != nil {
			return err
		}
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_fingerprint ON audit_log(fingerprint)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_log(created_at)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_outcome ON audit_log(kind, outcome)`)
	return err
}

// NewRequestID returns a fresh random request identifier.
func NewRequestID() string {
	return uuid.NewString()
}

// Log inserts an audit entry. Missing request IDs and timestamps are filled
// in; raw model text is kept only when the config asks for it.
func (l *Logger) Log(ctx context.Context, entry models.AuditEntry) error {
	if l == nil || l.db == nil {
		return nil
	}
	if entry.RequestID == "" {
		entry.RequestID = NewRequestID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	raw := entry.RawText
	normalized := entry.Normalized
	if !l.cfg.IncludeRaw {
		raw = ""
	}
	if l.cfg.MaxRawSize > 0 {
		if len(raw) > l.cfg.MaxRawSize {
			raw = raw[:l.cfg.MaxRawSize]
		}
		if len(normalized) > l.cfg.MaxRawSize {
			normalized = normalized[:l.cfg.MaxRawSize]
		}
	}

	violations := make([]string, len(entry.Violations))
	for i, v := range entry.Violations {
		violations[i] = string(v)
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO audit_log
		(request_id, fingerprint, kind, outcome, confidence, violations,
		 error, raw_text, normalized, source, created_at, vocabulary_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RequestID, entry.Fingerprint, string(entry.Kind), entry.Outcome,
		entry.Confidence, strings.Join(violations, ","),
		entry.Error, raw, normalized, entry.Source, entry.CreatedAt.UTC(),
		entry.VocabularyVersion,
	)
	if err != nil {
		return fmt.Errorf("audit log: %w", err)
	}
	return nil
}

// Query returns audit entries matching the given options, newest first.
func (l *Logger) Query(ctx context.Context, opts models.AuditQueryOpts) ([]models.AuditEntry, error) {
	q := `SELECT request_id, fingerprint, kind, outcome, confidence, violations,
		error, raw_text, normalized, source, created_at, vocabulary_version
		FROM audit_log WHERE 1=1`
	var args []any

	if opts.RequestID != "" {
		q += " AND request_id = ?"
		args = append(args, opts.RequestID)
	}
	if opts.Kind != "" {
		q += " AND kind = ?"
		args = append(args, string(opts.Kind))
	}
	if opts.Outcome != "" {
		q += " AND outcome = ?"
		args = append(args, opts.Outcome)
	}
	if opts.Fingerprint != "" {
		q += " AND fingerprint = ?"
		args = append(args, opts.Fingerprint)
	}
	if !opts.Since.IsZero() {
		q += " AND created_at >= ?"
		args = append(args, opts.Since.UTC())
	}

	q += " ORDER BY created_at DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var kind string
		var violations, errText, raw, normalized, source sql.NullString
		if err := rows.Scan(
			&e.RequestID, &e.Fingerprint, &kind, &e.Outcome, &e.Confidence,
			&violations, &errText, &raw, &normalized, &source, &e.CreatedAt,
			&e.VocabularyVersion,
		); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		e.Kind = models.AnalysisKind(kind)
		if violations.String != "" {
			for _, v := range strings.Split(violations.String, ",") {
				e.Violations = append(e.Violations, models.ViolationKind(v))
			}
		}
		e.Error = errText.String
		e.RawText = raw.String
		e.Normalized = normalized.String
		e.Source = source.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats returns aggregate counts grouped by kind, outcome and day.
func (l *Logger) Stats(ctx context.Context) ([]models.AuditStat, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT kind, outcome, date(created_at) as day, count(*) as cnt, avg(confidence)
		 FROM audit_log GROUP BY kind, outcome, day ORDER BY day DESC, kind, outcome`)
	if err != nil {
		return nil, fmt.Errorf("audit stats: %w", err)
	}
	defer rows.Close()

	var stats []models.AuditStat
	for rows.Next() {
		var s models.AuditStat
		var kind string
		var day sql.NullString
		var avg sql.NullFloat64
		if err := rows.Scan(&kind, &s.Outcome, &day, &s.Count, &avg); err != nil {
			return nil, fmt.Errorf("scan audit stat: %w", err)
		}
		s.Kind = models.AnalysisKind(kind)
		s.Day = day.String
		s.AvgConfidence = avg.Float64
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Cleanup deletes entries older than the configured retention period.
func (l *Logger) Cleanup(ctx context.Context) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -l.cfg.RetentionDays).UTC()
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM audit_log WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close stops the retention goroutine and closes the database.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	close(l.done)
	l.wg.Wait()
	return l.db.Close()
}

func (l *Logger) retentionLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			_, _ = l.Cleanup(context.Background())
		}
	}
}
