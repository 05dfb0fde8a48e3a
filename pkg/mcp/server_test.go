package mcp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fishlens/fishlens/pkg/engine"
	"github.com/fishlens/fishlens/pkg/models"
)

const freshReport = `Tingkat Kesegaran: Segar
Skor Kesegaran: 8
Parameter:
- Mata: 8
- Insang: 7`

const testFingerprint = "00ff00ff00ff00ff0f0f0f0f0f0f0f0f"

// fakeAuditor implements Auditor for testing.
type fakeAuditor struct {
	entries []models.AuditEntry
}

func (f *fakeAuditor) Log(_ context.Context, e models.AuditEntry) error {
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeAuditor) Query(_ context.Context, opts models.AuditQueryOpts) ([]models.AuditEntry, error) {
	var out []models.AuditEntry
	for _, e := range f.entries {
		if opts.Outcome != "" && e.Outcome != opts.Outcome {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func newTestServer(t *testing.T, auditor Auditor) *Server {
	t.Helper()
	return New(engine.New(engine.DefaultConfig()), auditor, "test")
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(x*4 ^ y*5)})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func sendAndReceive(t *testing.T, srv *Server, req Request) Response {
	t.Helper()
	line, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	line = append(line, '\n')

	var out bytes.Buffer
	if err := srv.Run(context.Background(), bytes.NewReader(line), &out); err != nil {
		t.Fatal(err)
	}

	var resp Response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nraw: %s", err, out.String())
	}
	return resp
}

func callTool(t *testing.T, srv *Server, name string, args any) ToolCallResult {
	t.Helper()
	rawArgs, err := json.Marshal(args)
	if err != nil {
		t.Fatal(err)
	}
	params, _ := json.Marshal(ToolCallParams{Name: name, Arguments: rawArgs})
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`1`),
		Method:  "tools/call",
		Params:  params,
	})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	data, _ := json.Marshal(resp.Result)
	var result ToolCallResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Content) == 0 {
		t.Fatal("expected content")
	}
	return result
}

func TestInitialize(t *testing.T) {
	srv := newTestServer(t, nil)
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`1`),
		Method:  "initialize",
	})

	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	data, _ := json.Marshal(resp.Result)
	var result InitializeResult
	json.Unmarshal(data, &result)

	if result.ProtocolVersion != protocolVersion {
		t.Errorf("protocol version = %s, want %s", result.ProtocolVersion, protocolVersion)
	}
	if result.ServerInfo.Name != "fishlens" {
		t.Errorf("server name = %s, want fishlens", result.ServerInfo.Name)
	}
}

func TestToolsList(t *testing.T) {
	srv := newTestServer(t, nil)
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`2`),
		Method:  "tools/list",
	})

	data, _ := json.Marshal(resp.Result)
	var result ToolsListResult
	json.Unmarshal(data, &result)

	if len(result.Tools) != len(toolHandlers) {
		t.Errorf("got %d tools, want %d", len(result.Tools), len(toolHandlers))
	}
	for _, tool := range result.Tools {
		if _, ok := toolHandlers[tool.Name]; !ok {
			t.Errorf("listed tool %s has no handler", tool.Name)
		}
	}
}

func TestToolCallFingerprint(t *testing.T) {
	srv := newTestServer(t, nil)
	data := testPNG(t)
	want, err := srv.engine.Fingerprint(data)
	if err != nil {
		t.Fatal(err)
	}

	res := callTool(t, srv, "fishlens_fingerprint", map[string]string{
		"image_base64": base64.StdEncoding.EncodeToString(data),
	})
	if res.IsError || !strings.Contains(res.Content[0].Text, want.String()) {
		t.Errorf("expected fingerprint %s, got: %s", want, res.Content[0].Text)
	}

	path := filepath.Join(t.TempDir(), "fish.png")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	res = callTool(t, srv, "fishlens_fingerprint", map[string]string{"path": path})
	if res.IsError || !strings.Contains(res.Content[0].Text, want.String()) {
		t.Errorf("expected fingerprint %s from path, got: %s", want, res.Content[0].Text)
	}
}

func TestToolCallFingerprintErrors(t *testing.T) {
	srv := newTestServer(t, nil)
	tests := map[string]map[string]string{
		"no input":    {},
		"undecodable": {"image_base64": base64.StdEncoding.EncodeToString([]byte("not an image"))},
		"bad base64":  {"image_base64": "!!!"},
		"no file":     {"path": filepath.Join(t.TempDir(), "missing.jpg")},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			if res := callTool(t, srv, "fishlens_fingerprint", args); !res.IsError {
				t.Errorf("expected isError, got: %s", res.Content[0].Text)
			}
		})
	}
}

func TestFinalizeThenLookup(t *testing.T) {
	aud := &fakeAuditor{}
	srv := newTestServer(t, aud)

	res := callTool(t, srv, "fishlens_lookup", map[string]string{
		"fingerprint": testFingerprint, "kind": "freshness",
	})
	if !strings.HasPrefix(res.Content[0].Text, "Miss") {
		t.Errorf("expected miss on empty cache, got: %s", res.Content[0].Text)
	}

	res = callTool(t, srv, "fishlens_finalize", map[string]string{
		"fingerprint": testFingerprint, "kind": "freshness", "raw_text": freshReport,
	})
	if res.IsError {
		t.Fatalf("finalize failed: %s", res.Content[0].Text)
	}
	text := res.Content[0].Text
	if !strings.Contains(text, "Freshness Score: 8") || !strings.Contains(text, "Confidence:") {
		t.Errorf("unexpected finalize output: %s", text)
	}

	res = callTool(t, srv, "fishlens_lookup", map[string]string{
		"fingerprint": testFingerprint, "kind": "kesegaran",
	})
	if !strings.Contains(res.Content[0].Text, "Exact hit (hits: 2") {
		t.Errorf("expected exact hit with 2 hits, got: %s", res.Content[0].Text)
	}

	if len(aud.entries) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(aud.entries))
	}
	if aud.entries[0].Outcome != models.OutcomeFinalized || aud.entries[1].Outcome != models.OutcomeReused {
		t.Errorf("unexpected audit outcomes: %s, %s", aud.entries[0].Outcome, aud.entries[1].Outcome)
	}
	if aud.entries[0].Source != "mcp" || aud.entries[0].Fingerprint != testFingerprint || aud.entries[0].VocabularyVersion != 3 {
		t.Errorf("unexpected audit entry: %+v", aud.entries[0])
	}

	res = callTool(t, srv, "fishlens_cache_stats", map[string]string{})
	if !strings.Contains(res.Content[0].Text, "Entries:     1 / 500") {
		t.Errorf("unexpected cache stats: %s", res.Content[0].Text)
	}
}

func TestFinalizeRejected(t *testing.T) {
	aud := &fakeAuditor{}
	srv := newTestServer(t, aud)

	res := callTool(t, srv, "fishlens_finalize", map[string]string{
		"fingerprint": testFingerprint, "kind": "both", "raw_text": "Maaf, gambar tidak jelas sehingga ikan tidak dapat dianalisis.",
	})
	if !res.IsError {
		t.Errorf("expected isError, got: %s", res.Content[0].Text)
	}
	if len(aud.entries) != 1 || aud.entries[0].Outcome != models.OutcomeRejected || aud.entries[0].Error == "" {
		t.Errorf("expected one rejected audit entry, got %+v", aud.entries)
	}

	res = callTool(t, srv, "fishlens_lookup", map[string]string{
		"fingerprint": testFingerprint, "kind": "both",
	})
	if !strings.HasPrefix(res.Content[0].Text, "Miss") {
		t.Errorf("rejected analysis must not be cached, got: %s", res.Content[0].Text)
	}
}

func TestLookupInvalidArguments(t *testing.T) {
	srv := newTestServer(t, nil)
	tests := map[string]map[string]string{
		"missing fingerprint": {"kind": "species"},
		"bad fingerprint":     {"fingerprint": "xyz", "kind": "species"},
		"bad kind":            {"fingerprint": testFingerprint, "kind": "weight"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			if res := callTool(t, srv, "fishlens_lookup", args); !res.IsError {
				t.Errorf("expected isError, got: %s", res.Content[0].Text)
			}
		})
	}
}

func TestAuditSearch(t *testing.T) {
	res := callTool(t, newTestServer(t, nil), "fishlens_audit_search", map[string]string{})
	if !strings.Contains(res.Content[0].Text, "not configured") {
		t.Errorf("expected 'not configured', got: %s", res.Content[0].Text)
	}

	aud := &fakeAuditor{entries: []models.AuditEntry{
		{RequestID: "req-1", Fingerprint: testFingerprint, Kind: models.KindSpecies, Outcome: models.OutcomeFinalized, Confidence: 100},
		{RequestID: "req-2", Fingerprint: testFingerprint, Kind: models.KindSpecies, Outcome: models.OutcomeRejected, Error: "no recognizable content"},
	}}
	srv := newTestServer(t, aud)

	res = callTool(t, srv, "fishlens_audit_search", map[string]string{"outcome": "rejected"})
	text := res.Content[0].Text
	if !strings.Contains(text, "req-2") || strings.Contains(text, "req-1") {
		t.Errorf("unexpected audit search output: %s", text)
	}

	res = callTool(t, srv, "fishlens_audit_search", map[string]string{"since": "last week"})
	if !res.IsError {
		t.Error("expected isError for invalid since date")
	}
}

func TestUnknownTool(t *testing.T) {
	res := callTool(t, newTestServer(t, nil), "fishlens_weight", map[string]string{})
	if !res.IsError {
		t.Error("expected isError for unknown tool")
	}
}

func TestNotificationNoResponse(t *testing.T) {
	srv := newTestServer(t, nil)

	line, _ := json.Marshal(Request{
		JSONRPC: "2.0",
		Method:  "notifications/initialized",
	})
	line = append(line, '\n')

	var out bytes.Buffer
	_ = srv.Run(context.Background(), bytes.NewReader(line), &out)

	if out.Len() != 0 {
		t.Errorf("expected no output for notification, got: %s", out.String())
	}
}

func TestParseErrorKeepsServing(t *testing.T) {
	srv := newTestServer(t, nil)
	input := "{not json\n" + `{"jsonrpc":"2.0","id":7,"method":"ping"}` + "\n"

	var out bytes.Buffer
	if err := srv.Run(context.Background(), strings.NewReader(input), &out); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 responses, got %d: %s", len(lines), out.String())
	}
	var first, second Response
	json.Unmarshal([]byte(lines[0]), &first)
	json.Unmarshal([]byte(lines[1]), &second)
	if first.Error == nil || first.Error.Code != CodeParseError {
		t.Errorf("expected parse error, got %+v", first)
	}
	if second.Error != nil || string(second.ID) != "7" {
		t.Errorf("expected ping response with id 7, got %+v", second)
	}
}

func TestUnknownMethod(t *testing.T) {
	resp := sendAndReceive(t, newTestServer(t, nil), Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`9`),
		Method:  "unknown/method",
	})

	if resp.Error == nil {
		t.Fatal("expected error for unknown method")
	}
	if resp.Error.Code != CodeMethodNotFound {
		t.Errorf("error code = %d, want %d", resp.Error.Code, CodeMethodNotFound)
	}
}
