package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sqlmind/sqlmind/internal/engine"
	"github.com/sqlmind/sqlmind/internal/executor"
	"github.com/sqlmind/sqlmind/internal/session"
)

type queryRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id"`
	Execute   bool   `json:"execute"`
}

type queryResponse struct {
	engine.Resolution
	Session        *session.Session `json:"session,omitempty"`
	Result         *executor.Result `json:"result,omitempty"`
	ExecutionError string           `json:"execution_error,omitempty"`
}

func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Resolver == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "RESOLVER_NOT_CONFIGURED", "resolver is not configured", false, nil)
		return
	}

	var request queryRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}
	if request.Execute && deps.Executor == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "EXECUTION_NOT_CONFIGURED", "no execution backend is configured", false, nil)
		return
	}

	resolution := deps.Resolver.ProcessQuery(r.Context(), request.Question)
	response := queryResponse{Resolution: resolution}

	if deps.Sessions != nil && strings.TrimSpace(request.SessionID) != "" {
		s, err := deps.Sessions.Apply(request.SessionID, session.EventQueryResolved, func(s *session.Session) {
			s.Question = request.Question
			s.SQL = resolution.SQL
			s.Source = resolution.Source
		})
		if err == nil {
			response.Session = &s
		}
	}

	if request.Execute {
		result, err := deps.Executor.Execute(r.Context(), resolution.SQL)
		if err != nil {
			// The resolution itself is still useful; report the execution
			// failure alongside it instead of discarding the SQL.
			response.ExecutionError = err.Error()
		} else {
			response.Result = &result
		}
	}

	writeJSON(w, http.StatusOK, response)
}
