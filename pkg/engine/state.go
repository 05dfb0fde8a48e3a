package engine

import (
	"context"

	"github.com/fishlens/fishlens/pkg/models"
)

// State is one step of the per-request flow.
type State string

const (
	StateFingerprinting State = "fingerprinting"
	StateCacheLookup    State = "cache_lookup"
	StateCacheHit       State = "cache_hit"
	StateCacheMiss      State = "cache_miss"
	StateNormalizing    State = "normalizing"
	StateValidating     State = "validating"
	StateScoring        State = "scoring"
	StateCacheWrite     State = "cache_write"
	StateDone           State = "done"
)

// ModelFunc produces raw model text for an image. It is the only blocking
// step of a request; retries are up to the implementation.
type ModelFunc func(ctx context.Context, image []byte, kind models.AnalysisKind) (string, error)

// Analysis is the outcome of Analyze.
type Analysis struct {
	Fingerprint models.Fingerprint      `json:"fingerprint"`
	Reused      bool                    `json:"reused"`
	HitCount    int64                   `json:"hit_count"`
	Result      models.NormalizedResult `json:"result"`
	Confidence  models.ConfidenceScore  `json:"confidence"`
	Report      models.ValidationReport `json:"report"`
	Matches     []SimilarMatch          `json:"matches,omitempty"`
	Raw         string                  `json:"raw,omitempty"`
	States      []State                 `json:"states"`
}
