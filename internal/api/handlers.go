package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/studio-suggest/internal/apperr"
	"github.com/sells-group/studio-suggest/internal/model"
	"github.com/sells-group/studio-suggest/internal/store"
)

// maxBody bounds request bodies.
const maxBody = 8 << 20

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// decodeOptionalBody is decodeBody for endpoints whose body may be omitted.
// An empty body, including a chunked one with no length, leaves v as is.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		badRequest(w, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// handleSignals accepts one signal object or an array of them. A single
// signal answers with its generate result, an array with a batch tally.
func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		badRequest(w, "invalid request body")
		return
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		badRequest(w, "request body is empty")
		return
	}

	if raw[0] == '[' {
		var sigs []model.Signal
		if err := json.Unmarshal(raw, &sigs); err != nil {
			badRequest(w, "invalid request body: "+err.Error())
			return
		}
		writeJSON(w, http.StatusOK, s.engine.ProcessSignals(r.Context(), sigs))
		return
	}

	var sig model.Signal
	if err := json.Unmarshal(raw, &sig); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}
	res, err := s.engine.Generate(r.Context(), sig)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	filter, err := parseSuggestionFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := s.engine.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if out == nil {
		out = []model.Suggestion{}
	}
	writeJSON(w, http.StatusOK, out)
}

func parseSuggestionFilter(q url.Values) (store.SuggestionFilter, error) {
	f := store.SuggestionFilter{
		Status:     model.SuggestionStatus(q.Get("status")),
		Type:       model.SuggestionType(q.Get("type")),
		SourceType: q.Get("source_type"),
		SourceID:   q.Get("source_id"),
		EntityCode: q.Get("entity"),
	}
	var err error
	if v := q.Get("min_confidence"); v != "" {
		if f.MinConfidence, err = strconv.ParseFloat(v, 64); err != nil || f.MinConfidence < 0 || f.MinConfidence > 1 {
			return f, apperr.Invalid("min_confidence must be a number in [0,1], got %q", v)
		}
	}
	if f.Limit, err = intParam(q, "limit", 50); err != nil {
		return f, err
	}
	if f.Offset, err = intParam(q, "offset", 0); err != nil {
		return f, err
	}
	return f, nil
}

func intParam(q url.Values, name string, def int) (int, error) {
	v := q.Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, apperr.Invalid("%s must be a non-negative integer, got %q", name, v)
	}
	return n, nil
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	out, err := s.engine.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	out, err := s.engine.Preview(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	out, err := s.engine.Changes(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if out == nil {
		out = []model.ChangeRecord{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	var d model.Decision
	if !decodeBody(w, r, &d) {
		return
	}
	out, err := s.engine.Decide(r.Context(), chi.URLParam(r, "id"), d)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type bulkDecisionRequest struct {
	IDs []string `json:"ids"`
	model.Decision
}

func (s *Server) handleBulkDecision(w http.ResponseWriter, r *http.Request) {
	var req bulkDecisionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, r, apperr.MissingData("ids"))
		return
	}
	tally, err := s.engine.BulkDecide(r.Context(), req.IDs, req.Decision)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tally)
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	out, err := s.engine.Apply(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	out, err := s.engine.Rollback(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	out, err := s.engine.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.PatternFilter{
		PatternType: q.Get("pattern_type"),
		PatternKey:  q.Get("pattern_key"),
		ActiveOnly:  q.Get("active") == "true",
	}
	var err error
	if filter.Limit, err = intParam(q, "limit", 0); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := s.engine.Patterns(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if out == nil {
		out = []model.Pattern{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGenerateRules(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MinEvidence int `json:"min_evidence"`
	}
	if !decodeOptionalBody(w, r, &req) {
		return
	}
	changed, err := s.engine.GenerateRules(r.Context(), req.MinEvidence)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if changed == nil {
		changed = []model.Pattern{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"changed": changed})
}
