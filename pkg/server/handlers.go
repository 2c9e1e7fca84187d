package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"pilothouse-hq/ganymede/pkg/audit"
	"pilothouse-hq/ganymede/pkg/engine"
	"pilothouse-hq/ganymede/pkg/policy"
)

// evaluateRequest is the body for POST /v1/evaluate and /v1/preview.
type evaluateRequest struct {
	Action  *engine.Action  `json:"action"`
	Context *engine.Context `json:"context"`
	Bypass  bool            `json:"bypass,omitempty"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	s.evaluate(w, r, false)
}

// handlePreview always evaluates dry-run: no limit consumption, no dedup,
// no audit persistence.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	s.evaluate(w, r, true)
}

func (s *Server) evaluate(w http.ResponseWriter, r *http.Request, preview bool) {
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Action == nil {
		writeError(w, http.StatusBadRequest, "action is required")
		return
	}
	if req.Bypass && !preview {
		caller, err := callerAuthority(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if !caller.AtLeast(policy.AuthorityAdmin) {
			writeError(w, http.StatusForbidden, "bypass requires admin authority")
			return
		}
	}

	start := time.Now()
	result, err := s.engine.Evaluate(req.Action, req.Context, engine.Options{
		Preview: preview,
		Bypass:  req.Bypass && !preview,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.record(result, time.Since(start))

	if !preview && !result.Deduped {
		if err := s.audit.Store(r.Context(), result.Entries); err != nil {
			s.logger.Error("failed to persist audit entries",
				"action_id", result.ActionID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, result)
}

// record feeds the evaluation outcome into the metrics collector.
func (s *Server) record(result *engine.Result, duration time.Duration) {
	if s.collector == nil {
		return
	}
	s.collector.RecordEvaluation(string(result.Decision), result.ModeEffective, duration)
	if result.Deduped {
		s.collector.RecordDedupHit()
	}
	if result.ModeEffective == "override" {
		s.collector.RecordOverride()
	}
	for _, pr := range result.Policies {
		if pr.Decision == audit.DecisionBlocked {
			s.collector.RecordPolicyBlock(pr.PolicyID, pr.Mode)
		}
	}
}

func (s *Server) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version":  s.store.Snapshot().Version,
		"policies": s.store.List(),
	})
}

func (s *Server) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	p, ok := s.store.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "policy not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleCreatePolicy(w http.ResponseWriter, r *http.Request) {
	caller, err := callerAuthority(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var p policy.Policy
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid policy body: "+err.Error())
		return
	}

	if err := s.store.Create(&p, caller); err != nil {
		writeStoreError(w, err)
		return
	}
	s.logger.Info("policy created", "policy_id", p.ID, "caller", caller.String())
	writeJSON(w, http.StatusCreated, &p)
}

func (s *Server) handleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	caller, err := callerAuthority(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var p policy.Policy
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid policy body: "+err.Error())
		return
	}
	if p.ID == "" {
		p.ID = r.PathValue("id")
	}
	if p.ID != r.PathValue("id") {
		writeError(w, http.StatusBadRequest, "policy ID in body does not match URL")
		return
	}

	if err := s.store.Update(&p, caller); err != nil {
		writeStoreError(w, err)
		return
	}
	s.logger.Info("policy updated", "policy_id", p.ID, "caller", caller.String())
	writeJSON(w, http.StatusOK, &p)
}

func (s *Server) handleDeletePolicy(w http.ResponseWriter, r *http.Request) {
	caller, err := callerAuthority(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := r.PathValue("id")
	if err := s.store.Delete(id, caller); err != nil {
		writeStoreError(w, err)
		return
	}
	s.logger.Info("policy deleted", "policy_id", id, "caller", caller.String())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListEvaluations(w http.ResponseWriter, r *http.Request) {
	query, err := parseAuditQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := s.audit.Query(r.Context(), query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total, err := s.audit.Count(r.Context(), query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total":   total,
		"entries": entries,
	})
}

func (s *Server) handleEvaluationStats(w http.ResponseWriter, r *http.Request) {
	query, err := parseAuditQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	stats, err := s.audit.Stats(r.Context(), query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"snapshot_version": s.store.Snapshot().Version,
		"policies_loaded":  s.store.Snapshot().Len(),
	})
}

// parseAuditQuery builds an audit query from URL parameters.
func parseAuditQuery(r *http.Request) (*audit.Query, error) {
	q := r.URL.Query()
	query := &audit.Query{
		AlgoKey:  q.Get("algo_key"),
		PolicyID: q.Get("policy_id"),
		ActionID: q.Get("action_id"),
		Decision: audit.Decision(q.Get("decision")),
		Kind:     audit.Kind(q.Get("kind")),
		Limit:    100,
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, &queryError{"limit must be a positive integer"}
		}
		query.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, &queryError{"offset must be a non-negative integer"}
		}
		query.Offset = n
	}
	if v := q.Get("start_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, &queryError{"start_time must be RFC3339"}
		}
		query.StartTime = &t
	}
	if v := q.Get("end_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, &queryError{"end_time must be RFC3339"}
		}
		query.EndTime = &t
	}

	return query, nil
}

type queryError struct {
	msg string
}

func (e *queryError) Error() string { return e.msg }
