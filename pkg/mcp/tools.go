package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fishlens/fishlens/pkg/audit"
	"github.com/fishlens/fishlens/pkg/models"
)

type fingerprintArgs struct {
	Path        string `json:"path"`
	ImageBase64 string `json:"image_base64"`
}

type keyArgs struct {
	Fingerprint string `json:"fingerprint"`
	Kind        string `json:"kind"`
}

type finalizeArgs struct {
	keyArgs
	RawText string `json:"raw_text"`
}

type auditSearchArgs struct {
	Kind        string `json:"kind"`
	Outcome     string `json:"outcome"`
	Fingerprint string `json:"fingerprint"`
	Since       string `json:"since"`
}

type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

var toolHandlers = map[string]toolHandler{
	"fishlens_fingerprint":  handleFingerprint,
	"fishlens_lookup":       handleLookup,
	"fishlens_finalize":     handleFinalize,
	"fishlens_cache_stats":  handleCacheStats,
	"fishlens_audit_search": handleAuditSearch,
}

var kindSchema = map[string]any{
	"type":        "string",
	"enum":        []string{"species", "freshness", "both"},
	"description": "Which fields the analysis must produce",
}

var fingerprintSchema = map[string]any{
	"type":        "string",
	"description": "32-character hex fingerprint from fishlens_fingerprint",
}

var allTools = []ToolDefinition{
	{
		Name:        "fishlens_fingerprint",
		Description: "Compute the perceptual fingerprint of a fish image (JPEG, PNG, GIF, WebP, BMP or TIFF).",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "Path to the image file",
				},
				"image_base64": map[string]any{
					"type":        "string",
					"description": "Base64-encoded image bytes, used when path is empty",
				},
			},
		},
	},
	{
		Name:        "fishlens_lookup",
		Description: "Check the result cache for an image. Reports an exact hit with the stored analysis, or near-duplicate fingerprints, or a miss.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"fingerprint", "kind"},
			"properties": map[string]any{
				"fingerprint": fingerprintSchema,
				"kind":        kindSchema,
			},
		},
	},
	{
		Name:        "fishlens_finalize",
		Description: "Normalize, validate and score raw vision model output, then cache it under the fingerprint.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"fingerprint", "kind", "raw_text"},
			"properties": map[string]any{
				"fingerprint": fingerprintSchema,
				"kind":        kindSchema,
				"raw_text": map[string]any{
					"type":        "string",
					"description": "The model's raw answer (markdown, key/value text or JSON)",
				},
			},
		},
	},
	{
		Name:        "fishlens_cache_stats",
		Description: "Show result cache statistics (entries, hits, misses, evictions).",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "fishlens_audit_search",
		Description: "Search the finalize audit log with optional filters.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"kind": kindSchema,
				"outcome": map[string]any{
					"type":        "string",
					"enum":        []string{models.OutcomeFinalized, models.OutcomeRejected, models.OutcomeReused},
					"description": "Filter by outcome (optional)",
				},
				"fingerprint": fingerprintSchema,
				"since": map[string]any{
					"type":        "string",
					"description": "Start date in YYYY-MM-DD format (optional)",
				},
			},
		},
	},
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
	}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
		IsError: true,
	}
}

func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func (a keyArgs) parse() (models.Fingerprint, models.AnalysisKind, error) {
	if a.Fingerprint == "" {
		return models.Fingerprint{}, "", errors.New("fingerprint is required")
	}
	fp, err := models.ParseFingerprint(a.Fingerprint)
	if err != nil {
		return models.Fingerprint{}, "", err
	}
	kind, err := models.ParseAnalysisKind(a.Kind)
	if err != nil {
		return models.Fingerprint{}, "", err
	}
	return fp, kind, nil
}

func handleFingerprint(_ context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args fingerprintArgs
	if err := decodeArgs(rawArgs, &args); err != nil {
		return errorResult(err.Error())
	}

	var data []byte
	var err error
	switch {
	case args.Path != "":
		data, err = os.ReadFile(args.Path)
	case args.ImageBase64 != "":
		data, err = base64.StdEncoding.DecodeString(args.ImageBase64)
	default:
		return errorResult("path or image_base64 is required")
	}
	if err != nil {
		return errorResult("Error reading image: " + err.Error())
	}

	fp, err := s.engine.Fingerprint(data)
	if err != nil {
		return errorResult("Error fingerprinting image: " + err.Error())
	}
	return textResult("Fingerprint: " + fp.String())
}

func handleLookup(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args keyArgs
	if err := decodeArgs(rawArgs, &args); err != nil {
		return errorResult(err.Error())
	}
	fp, kind, err := args.parse()
	if err != nil {
		return errorResult(err.Error())
	}

	lr := s.engine.Lookup(fp, kind)
	if lr.Entry != nil {
		s.audit(ctx, audit.Reused("mcp", *lr.Entry))
	}
	return textResult(formatLookup(s.engine.Normalizer(), lr))
}

func handleFinalize(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args finalizeArgs
	if err := decodeArgs(rawArgs, &args); err != nil {
		return errorResult(err.Error())
	}
	fp, kind, err := args.parse()
	if err != nil {
		return errorResult(err.Error())
	}

	res, err := s.engine.Finalize(fp, kind, args.RawText)
	if err != nil {
		s.audit(ctx, audit.Rejected("mcp", s.engine.Normalizer().VocabularyVersion(), fp, kind, args.RawText, err))
		return errorResult("Error finalizing analysis: " + err.Error())
	}

	norm := s.engine.Normalizer()
	canonical := norm.Serialize(res.Result)
	s.audit(ctx, audit.Finalized("mcp", norm.VocabularyVersion(), fp, kind, args.RawText,
		canonical, res.Confidence, res.Report))
	return textResult(formatAnalysis(canonical, res.Confidence, res.Report))
}

func handleCacheStats(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	return textResult(formatCacheStats(s.engine.Stats()))
}

func handleAuditSearch(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.auditor == nil {
		return textResult("Audit logging is not configured.")
	}
	var args auditSearchArgs
	if err := decodeArgs(rawArgs, &args); err != nil {
		return errorResult(err.Error())
	}

	opts := models.AuditQueryOpts{
		Outcome:     args.Outcome,
		Fingerprint: args.Fingerprint,
		Limit:       50,
	}
	if args.Kind != "" {
		kind, err := models.ParseAnalysisKind(args.Kind)
		if err != nil {
			return errorResult(err.Error())
		}
		opts.Kind = kind
	}
	if args.Since != "" {
		t, err := time.Parse("2006-01-02", args.Since)
		if err != nil {
			return errorResult("Invalid since date (use YYYY-MM-DD): " + err.Error())
		}
		opts.Since = t
	}

	entries, err := s.auditor.Query(ctx, opts)
	if err != nil {
		return errorResult("Error searching audit log: " + err.Error())
	}
	return textResult(formatAuditEntries(entries))
}
