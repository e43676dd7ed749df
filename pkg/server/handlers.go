package server

import (
	"encoding/json"
	"net/http"
	"time"

	"mercator-hq/sentinel/pkg/decision"
	"mercator-hq/sentinel/pkg/pipeline"
	"mercator-hq/sentinel/pkg/timeout"
)

// maxRequestBody bounds the admission request body size.
const maxRequestBody = 1 << 20

// evaluateRequest is the admission request body.
type evaluateRequest struct {
	Operation      string         `json:"operation"`
	Parameters     map[string]any `json:"parameters"`
	SessionID      string         `json:"session_id"`
	UserContext    map[string]any `json:"user_context,omitempty"`
	SessionContext map[string]any `json:"session_context,omitempty"`
	SecurityLevel  string         `json:"security_level,omitempty"`
	OperationClass string         `json:"operation_class,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// handleEvaluate runs one operation through the pipeline and returns
// the terminal decision. The pipeline always answers, so the only
// error statuses here are for malformed requests.
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req evaluateRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Operation == "" {
		writeError(w, http.StatusBadRequest, "operation is required")
		return
	}

	d := s.pipeline.EvaluateSync(r.Context(), pipeline.Request{
		Operation:      req.Operation,
		Parameters:     req.Parameters,
		SessionID:      req.SessionID,
		UserContext:    req.UserContext,
		SessionContext: req.SessionContext,
		RequestID:      requestIDFromContext(r.Context()),
		SecurityLevel:  req.SecurityLevel,
		OperationClass: timeout.OperationClass(req.OperationClass),
	})

	if s.recorder != nil {
		s.recorder.Record(d)
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		writeError(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// statsResponse mirrors pipeline.Stats with wire-friendly field names.
type statsResponse struct {
	Total         int64                       `json:"total"`
	BySource      map[decision.Source]int64   `json:"by_source"`
	ByVerdict     map[decision.Verdict]int64  `json:"by_verdict"`
	Escalated     int64                       `json:"escalated"`
	FallbackUsed  int64                       `json:"fallback_used"`
	TimeoutUsed   int64                       `json:"timeout_used"`
	AverageTimeMS float64                     `json:"average_time_ms"`
	CacheHitRate  float64                     `json:"cache_hit_rate"`
	FastPathShare float64                     `json:"fast_path_share"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st := s.pipeline.Stats()
	writeJSON(w, http.StatusOK, statsResponse{
		Total:         st.Total,
		BySource:      st.BySource,
		ByVerdict:     st.ByVerdict,
		Escalated:     st.Escalated,
		FallbackUsed:  st.FallbackUsed,
		TimeoutUsed:   st.TimeoutUsed,
		AverageTimeMS: float64(st.AverageTime) / float64(time.Millisecond),
		CacheHitRate:  st.CacheHitRate,
		FastPathShare: st.FastPathShare,
	})
}
