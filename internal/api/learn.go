package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sqlmind/sqlmind/internal/engine"
	"github.com/sqlmind/sqlmind/internal/nl2sql"
	"github.com/sqlmind/sqlmind/internal/session"
)

type learnSuccessRequest struct {
	Question  string `json:"question"`
	SQL       string `json:"sql"`
	SessionID string `json:"session_id"`
}

type learnCorrectionRequest struct {
	Question     string `json:"question"`
	GeneratedSQL string `json:"generated_sql"`
	CorrectedSQL string `json:"corrected_sql"`
	Feedback     string `json:"feedback"`
	SessionID    string `json:"session_id"`
}

type learnCorrectionResponse struct {
	Record  engine.CorrectionRecord `json:"record"`
	Session *session.Session        `json:"session,omitempty"`
}

func handleLearnSuccess(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Resolver == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "RESOLVER_NOT_CONFIGURED", "resolver is not configured", false, nil)
		return
	}

	var request learnSuccessRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid learn request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Question) == "" || strings.TrimSpace(request.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "FIELDS_REQUIRED", "question and sql are required", false, nil)
		return
	}
	if err := nl2sql.ValidateReadOnly(request.SQL); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_NOT_ALLOWED", "only read-only SELECT/WITH statements can be learned: "+err.Error(), false, nil)
		return
	}

	if err := deps.Resolver.LearnFromSuccess(request.Question, request.SQL); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "LEARN_REJECTED", err.Error(), false, nil)
		return
	}

	response := map[string]any{"status": "learned"}
	if s, ok := applySessionEvent(deps, request.SessionID, session.EventConfirmed); ok {
		response["session"] = s
	}
	writeJSON(w, http.StatusOK, response)
}

func handleLearnCorrection(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Resolver == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "RESOLVER_NOT_CONFIGURED", "resolver is not configured", false, nil)
		return
	}

	var request learnCorrectionRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid correction request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Question) == "" || strings.TrimSpace(request.CorrectedSQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "FIELDS_REQUIRED", "question and corrected_sql are required", false, nil)
		return
	}
	if err := nl2sql.ValidateReadOnly(request.CorrectedSQL); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_NOT_ALLOWED", "corrected_sql must be a read-only SELECT/WITH statement: "+err.Error(), false, nil)
		return
	}

	record, err := deps.Resolver.LearnFromCorrection(request.Question, request.GeneratedSQL, request.CorrectedSQL, request.Feedback)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "CORRECTION_REJECTED", err.Error(), false, nil)
		return
	}

	response := learnCorrectionResponse{Record: record}
	if s, ok := applyCorrectionSessionEvents(deps, request.SessionID); ok {
		response.Session = &s
	}
	writeJSON(w, http.StatusOK, response)
}

func applySessionEvent(deps Dependencies, sessionID string, event session.Event) (session.Session, bool) {
	if deps.Sessions == nil || strings.TrimSpace(sessionID) == "" {
		return session.Session{}, false
	}
	s, err := deps.Sessions.Apply(sessionID, event, nil)
	if err != nil {
		return session.Session{}, false
	}
	return s, true
}

// applyCorrectionSessionEvents moves a session that is still awaiting
// confirmation through the rejection first, then records the correction.
func applyCorrectionSessionEvents(deps Dependencies, sessionID string) (session.Session, bool) {
	if deps.Sessions == nil || strings.TrimSpace(sessionID) == "" {
		return session.Session{}, false
	}
	s, err := deps.Sessions.Apply(sessionID, session.EventCorrectionGiven, nil)
	if err == nil {
		return s, true
	}
	var invalid *session.InvalidTransitionError
	if errors.As(err, &invalid) && invalid.From == session.StateAwaitingConfirmation {
		if _, err := deps.Sessions.Apply(sessionID, session.EventRejected, nil); err == nil {
			if s, err := deps.Sessions.Apply(sessionID, session.EventCorrectionGiven, nil); err == nil {
				return s, true
			}
		}
	}
	return session.Session{}, false
}
