package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pilothouse-hq/ganymede/pkg/audit"
	auditstorage "pilothouse-hq/ganymede/pkg/audit/storage"
	"pilothouse-hq/ganymede/pkg/config"
	"pilothouse-hq/ganymede/pkg/engine"
	"pilothouse-hq/ganymede/pkg/limits"
	"pilothouse-hq/ganymede/pkg/policy"
	"pilothouse-hq/ganymede/pkg/policy/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, policies ...*policy.Policy) *Server {
	t.Helper()

	st := store.New(store.WithLogger(discardLogger()))
	if err := st.ReplaceAll(policies); err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}
	tracker := limits.NewTracker(time.UTC, discardLogger())
	eng := engine.New(st, tracker, engine.WithLogger(discardLogger()))

	cfg := config.NewDefault()
	return NewServer(&cfg.Server, &cfg.Telemetry.Metrics, eng, st, auditstorage.NewMemoryStorage(), nil, discardLogger())
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func blockingPolicy(id string) *policy.Policy {
	return &policy.Policy{
		ID:                id,
		Name:              id,
		Scope:             policy.ScopeGlobal,
		Mode:              policy.ModeEnforce,
		Enabled:           true,
		AuthorityRequired: policy.AuthorityOperator,
		Guards: []policy.Guard{{
			Condition: "metrics.cvr_1h >= 0.02",
			Message:   "CVR below safe floor",
		}},
	}
}

func evalBody(actionID string, metrics map[string]float64) map[string]any {
	return map[string]any{
		"action": map[string]any{
			"id":       actionID,
			"type":     "reweight",
			"algo_key": "traffic_mix",
			"data":     map[string]any{"weight": 0.5},
		},
		"context": map[string]any{"metrics": metrics},
	}
}

// =============================================================================
// Evaluation endpoints
// =============================================================================

func TestEvaluateEndpoint(t *testing.T) {
	srv := newTestServer(t, blockingPolicy("cvr-floor"))
	handler := srv.Handler()

	rec := doJSON(t, handler, "POST", "/v1/evaluate",
		evalBody("a1", map[string]float64{"cvr_1h": 0.01}), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var result engine.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Decision != audit.DecisionBlocked || !result.Enforced {
		t.Errorf("Decision = %q Enforced = %v, want enforced block", result.Decision, result.Enforced)
	}
}

func TestEvaluatePersistsAudit(t *testing.T) {
	srv := newTestServer(t, blockingPolicy("cvr-floor"))
	handler := srv.Handler()

	doJSON(t, handler, "POST", "/v1/evaluate",
		evalBody("a1", map[string]float64{"cvr_1h": 0.01}), nil)

	rec := doJSON(t, handler, "GET", "/v1/evaluations?kind=action", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Total   int64          `json:"total"`
		Entries []*audit.Entry `json:"entries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || len(resp.Entries) != 1 {
		t.Fatalf("total = %d entries = %d, want 1 action entry", resp.Total, len(resp.Entries))
	}
	if resp.Entries[0].Decision != audit.DecisionBlocked {
		t.Errorf("stored decision = %q, want blocked", resp.Entries[0].Decision)
	}
}

func TestPreviewPersistsNothing(t *testing.T) {
	srv := newTestServer(t, blockingPolicy("cvr-floor"))
	handler := srv.Handler()

	rec := doJSON(t, handler, "POST", "/v1/preview",
		evalBody("a1", map[string]float64{"cvr_1h": 0.01}), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var result engine.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.ModeEffective != "preview" {
		t.Errorf("ModeEffective = %q, want preview", result.ModeEffective)
	}

	rec = doJSON(t, handler, "GET", "/v1/evaluations", nil, nil)
	var resp struct {
		Total int64 `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 0 {
		t.Errorf("total = %d, previews must not be persisted", resp.Total)
	}
}

func TestEvaluateRejectsBadBody(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.Handler()

	req := httptest.NewRequest("POST", "/v1/evaluate", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, handler, "POST", "/v1/evaluate", map[string]any{}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d for missing action, want 400", rec.Code)
	}
}

func TestBypassRequiresAdmin(t *testing.T) {
	srv := newTestServer(t, blockingPolicy("cvr-floor"))
	handler := srv.Handler()

	body := evalBody("a1", map[string]float64{"cvr_1h": 0.01})
	body["bypass"] = true

	rec := doJSON(t, handler, "POST", "/v1/evaluate", body, map[string]string{
		"X-Ganymede-Authority": "operator",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 for operator bypass", rec.Code)
	}

	rec = doJSON(t, handler, "POST", "/v1/evaluate", body, map[string]string{
		"X-Ganymede-Authority": "admin",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for admin bypass", rec.Code)
	}
	var result engine.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Decision != audit.DecisionAllowed {
		t.Errorf("Decision = %q, want allowed under bypass", result.Decision)
	}
}

// =============================================================================
// Policy management endpoints
// =============================================================================

func TestPolicyCRUD(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.Handler()
	admin := map[string]string{"X-Ganymede-Authority": "admin"}

	p := blockingPolicy("cvr-floor")

	rec := doJSON(t, handler, "POST", "/v1/policies", p, admin)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, "GET", "/v1/policies/cvr-floor", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status = %d", rec.Code)
	}

	p.Name = "renamed"
	rec = doJSON(t, handler, "PUT", "/v1/policies/cvr-floor", p, admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, "DELETE", "/v1/policies/cvr-floor", nil, admin)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status = %d", rec.Code)
	}

	rec = doJSON(t, handler, "GET", "/v1/policies/cvr-floor", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: status = %d, want 404", rec.Code)
	}
}

func TestPolicyCreateRequiresAuthority(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.Handler()

	p := blockingPolicy("cvr-floor")
	p.AuthorityRequired = policy.AuthorityAdmin

	// No header: viewer.
	rec := doJSON(t, handler, "POST", "/v1/policies", p, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 for viewer creating admin policy", rec.Code)
	}

	rec = doJSON(t, handler, "POST", "/v1/policies", p, map[string]string{
		"X-Ganymede-Authority": "operator",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 for operator creating admin policy", rec.Code)
	}
}

func TestPolicyCreateRejectsInvalid(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.Handler()

	p := blockingPolicy("bad")
	p.Guards[0].Condition = "metrics.cvr_1h >=" // truncated expression

	rec := doJSON(t, handler, "POST", "/v1/policies", p, map[string]string{
		"X-Ganymede-Authority": "admin",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422 for invalid policy", rec.Code)
	}
}

func TestUpdateIDMismatch(t *testing.T) {
	srv := newTestServer(t, blockingPolicy("cvr-floor"))
	handler := srv.Handler()

	p := blockingPolicy("other-id")
	rec := doJSON(t, handler, "PUT", "/v1/policies/cvr-floor", p, map[string]string{
		"X-Ganymede-Authority": "admin",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for ID mismatch", rec.Code)
	}
}

// =============================================================================
// Health and stats
// =============================================================================

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, blockingPolicy("cvr-floor"))
	rec := doJSON(t, srv.Handler(), "GET", "/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["policies_loaded"] != float64(1) {
		t.Errorf("policies_loaded = %v, want 1", resp["policies_loaded"])
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv := newTestServer(t, blockingPolicy("cvr-floor"))
	handler := srv.Handler()

	doJSON(t, handler, "POST", "/v1/evaluate", evalBody("a1", map[string]float64{"cvr_1h": 0.01}), nil)
	doJSON(t, handler, "POST", "/v1/evaluate", evalBody("a2", map[string]float64{"cvr_1h": 0.05}), nil)

	rec := doJSON(t, handler, "GET", "/v1/evaluations/stats", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var stats audit.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.Total != 2 || stats.Blocked != 1 || stats.Allowed != 1 {
		t.Errorf("stats = %+v, want total 2, blocked 1, allowed 1", stats)
	}
}

func TestBadQueryParameters(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.Handler()

	for _, path := range []string{
		"/v1/evaluations?limit=-1",
		"/v1/evaluations?offset=zero",
		"/v1/evaluations?start_time=yesterday",
	} {
		rec := doJSON(t, handler, "GET", path, nil, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", path, rec.Code)
		}
	}
}
