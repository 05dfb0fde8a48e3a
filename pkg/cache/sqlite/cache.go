package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fishlens/fishlens/pkg/models"
)

// Store is a snapshot store for cache entries backed by SQLite.
type Store struct {
	db    *sql.DB
	ttl   time.Duration
	saves atomic.Int64
	loads atomic.Int64
}

// Stats describes the stored snapshot.
type Stats struct {
	Entries   int64                         `json:"entries"`
	ByKind    map[models.AnalysisKind]int64 `json:"by_kind"`
	TotalHits int64                         `json:"total_hits"`
	Saves     int64                         `json:"saves"`
	Loads     int64                         `json:"loads"`
}

const createCacheTable = `
CREATE TABLE IF NOT EXISTS cache_entries (
	fingerprint TEXT NOT NULL,
	kind TEXT NOT NULL,
	result BLOB NOT NULL,
	confidence BLOB NOT NULL,
	report BLOB NOT NULL,
	created_at DATETIME NOT NULL,
	hit_count INTEGER NOT NULL DEFAULT 1,
	PRIMARY KEY (fingerprint, kind)
);
`

// New opens the snapshot database. Entries older than ttl are skipped on
// load; zero keeps everything.
func New(dbPath string, ttl time.Duration) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	if _, err := db.Exec(createCacheTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	return &Store{db: db, ttl: ttl}, nil
}

// Put stores a single entry, replacing any previous one for its key.
func (s *Store) Put(e models.CacheEntry) error {
	if err := put(s.db, e); err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// SaveAll upserts entries. Rows for other keys are left alone, so processes
// sharing one database never drop each other's entries.
func (s *Store) SaveAll(entries []models.CacheEntry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("cache save: %w", err)
	}
	defer tx.Rollback()

	for _, e := range entries {
		if err := put(tx, e); err != nil {
			return fmt.Errorf("cache save: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cache save: %w", err)
	}
	s.saves.Add(1)
	return nil
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func put(db execer, e models.CacheEntry) error {
	result, err := json.Marshal(e.Result)
	if err != nil {
		return err
	}
	conf, err := json.Marshal(e.Confidence)
	if err != nil {
		return err
	}
	report, err := json.Marshal(e.Report)
	if err != nil {
		return err
	}
	_, err = db.Exec(
		`INSERT OR REPLACE INTO cache_entries (fingerprint, kind, result, confidence, report, created_at, hit_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Fingerprint.String(), string(e.Kind), result, conf, report, e.CreatedAt.UTC(), e.HitCount,
	)
	return err
}

// Get returns the stored entry for key. Expired entries are reported missing.
func (s *Store) Get(key models.CacheKey) (models.CacheEntry, bool, error) {
	rows, err := s.db.Query(selectEntries+` WHERE fingerprint = ? AND kind = ?`,
		key.Fingerprint.String(), string(key.Kind))
	if err != nil {
		return models.CacheEntry{}, false, fmt.Errorf("cache get: %w", err)
	}
	entries, err := s.scan(rows)
	if err != nil || len(entries) == 0 {
		return models.CacheEntry{}, false, err
	}
	return entries[0], true, nil
}

// Delete removes the stored entry for key and reports whether one existed.
func (s *Store) Delete(key models.CacheKey) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM cache_entries WHERE fingerprint = ? AND kind = ?`,
		key.Fingerprint.String(), string(key.Kind))
	if err != nil {
		return false, fmt.Errorf("cache delete: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// LoadAll returns every unexpired entry, oldest first.
func (s *Store) LoadAll() ([]models.CacheEntry, error) {
	rows, err := s.db.Query(selectEntries + ` ORDER BY created_at, fingerprint, kind`)
	if err != nil {
		return nil, fmt.Errorf("cache load: %w", err)
	}
	entries, err := s.scan(rows)
	if err != nil {
		return nil, err
	}
	s.loads.Add(1)
	return entries, nil
}

const selectEntries = `SELECT fingerprint, kind, result, confidence, report, created_at, hit_count FROM cache_entries`

func (s *Store) scan(rows *sql.Rows) ([]models.CacheEntry, error) {
	defer rows.Close()

	now := time.Now()
	var entries []models.CacheEntry
	for rows.Next() {
		var e models.CacheEntry
		var fp, kind string
		var result, conf, report []byte
		if err := rows.Scan(&fp, &kind, &result, &conf, &report, &e.CreatedAt, &e.HitCount); err != nil {
			return nil, fmt.Errorf("scan cache row: %w", err)
		}
		if s.ttl > 0 && now.Sub(e.CreatedAt) > s.ttl {
			continue
		}
		parsed, err := models.ParseFingerprint(fp)
		if err != nil {
			return nil, fmt.Errorf("scan cache row: %w", err)
		}
		e.Fingerprint = parsed
		e.Kind = models.AnalysisKind(kind)
		if err := json.Unmarshal(result, &e.Result); err != nil {
			return nil, fmt.Errorf("decode cached result %s: %w", fp, err)
		}
		if err := json.Unmarshal(conf, &e.Confidence); err != nil {
			return nil, fmt.Errorf("decode cached confidence %s: %w", fp, err)
		}
		if err := json.Unmarshal(report, &e.Report); err != nil {
			return nil, fmt.Errorf("decode cached report %s: %w", fp, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats returns counts for the stored snapshot.
func (s *Store) Stats() (Stats, error) {
	st := Stats{
		ByKind: make(map[models.AnalysisKind]int64),
		Saves:  s.saves.Load(),
		Loads:  s.loads.Load(),
	}
	rows, err := s.db.Query(`SELECT kind, COUNT(*), COALESCE(SUM(hit_count), 0) FROM cache_entries GROUP BY kind`)
	if err != nil {
		return Stats{}, fmt.Errorf("cache stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var count, hits int64
		if err := rows.Scan(&kind, &count, &hits); err != nil {
			return Stats{}, fmt.Errorf("cache stats: %w", err)
		}
		st.ByKind[models.AnalysisKind(kind)] = count
		st.Entries += count
		st.TotalHits += hits
	}
	return st, rows.Err()
}

// Clear removes stored entries. If expiredOnly is true, only entries older
// than the store TTL are removed. It returns the number of rows deleted.
func (s *Store) Clear(expiredOnly bool) (int64, error) {
	var res sql.Result
	var err error
	switch {
	case !expiredOnly:
		res, err = s.db.Exec(`DELETE FROM cache_entries`)
	case s.ttl > 0:
		res, err = s.db.Exec(`DELETE FROM cache_entries WHERE created_at < ?`, time.Now().Add(-s.ttl).UTC())
	default:
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("cache clear: %w", err)
	}
	return res.RowsAffected()
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
