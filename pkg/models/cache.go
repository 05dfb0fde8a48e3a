package models

import "time"

// CacheKey identifies one analysis of one image.
type CacheKey struct {
	Fingerprint Fingerprint  `json:"fingerprint"`
	Kind        AnalysisKind `json:"kind"`
}

// CacheEntry stores a finalized analysis.
type CacheEntry struct {
	Fingerprint Fingerprint      `json:"fingerprint"`
	Kind        AnalysisKind     `json:"kind"`
	Result      NormalizedResult `json:"result"`
	Confidence  ConfidenceScore  `json:"confidence"`
	Report      ValidationReport `json:"report"`
	CreatedAt   time.Time        `json:"created_at"`
	HitCount    int64            `json:"hit_count"`
}

// Key returns the entry's cache key.
func (e CacheEntry) Key() CacheKey {
	return CacheKey{Fingerprint: e.Fingerprint, Kind: e.Kind}
}

// Clone returns a deep copy that shares no memory with e.
func (e CacheEntry) Clone() CacheEntry {
	out := e
	out.Result = e.Result.Clone()
	out.Confidence = e.Confidence.Clone()
	out.Report = e.Report.Clone()
	return out
}

// CacheStats reports cache performance metrics.
type CacheStats struct {
	Entries     int64 `json:"entries"`
	Capacity    int64 `json:"capacity,omitempty"`
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Evictions   int64 `json:"evictions"`
	Expirations int64 `json:"expirations"`
}
