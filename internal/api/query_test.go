package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sqlmind/sqlmind/internal/config"
	"github.com/sqlmind/sqlmind/internal/engine"
	"github.com/sqlmind/sqlmind/internal/executor"
	"github.com/sqlmind/sqlmind/internal/session"
)

type fakeExecutor struct {
	result  executor.Result
	err     error
	lastSQL string
}

func (f *fakeExecutor) Execute(_ context.Context, sqlText string) (executor.Result, error) {
	f.lastSQL = sqlText
	return f.result, f.err
}

func postJSON(t *testing.T, handler http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestQueryResolvesQuestion(t *testing.T) {
	handler := newTestHandler(t, nil)
	rec := postJSON(t, handler, "/v1/query", `{"question": "Покажи что-нибудь интересное"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}

	var response queryResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if response.Source != engine.SourceFallback {
		t.Fatalf("source = %q", response.Source)
	}
	if response.SQL != "SELECT * FROM videos LIMIT 10" {
		t.Fatalf("sql = %q", response.SQL)
	}
	if !response.NeedsValidation {
		t.Fatal("fallback answers must be flagged for validation")
	}
}

func TestQueryExactCacheAfterLearning(t *testing.T) {
	resolver := testResolver(t)
	handler := newTestHandler(t, func(_ *config.Config, deps *Dependencies) {
		deps.Resolver = resolver
	})

	if err := resolver.LearnFromSuccess("Сколько видео у креатора 42?", "SELECT COUNT(*) FROM videos WHERE creator_id = '42'"); err != nil {
		t.Fatalf("learn: %v", err)
	}

	rec := postJSON(t, handler, "/v1/query", `{"question": "Сколько видео у креатора 42?"}`)
	var response queryResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if response.Source != engine.SourceExactCache {
		t.Fatalf("source = %q", response.Source)
	}
	if response.NeedsValidation {
		t.Fatal("exact cache hit should not need validation")
	}
}

func TestQueryValidation(t *testing.T) {
	handler := newTestHandler(t, nil)

	rec := postJSON(t, handler, "/v1/query", `{"question": "   "}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("blank question status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "QUESTION_REQUIRED") {
		t.Fatalf("body = %s", rec.Body.String())
	}

	rec = postJSON(t, handler, "/v1/query", `{"question": "x", "bogus": true}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown field status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "INVALID_JSON") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestQueryTracksSession(t *testing.T) {
	handler := newTestHandler(t, nil)
	rec := postJSON(t, handler, "/v1/query", `{"question": "Сколько всего видео?", "session_id": "tg-100"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}

	var response queryResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if response.Session == nil {
		t.Fatal("session missing from response")
	}
	if response.Session.State != session.StateAwaitingConfirmation {
		t.Fatalf("session state = %q", response.Session.State)
	}
	if response.Session.Question != "Сколько всего видео?" {
		t.Fatalf("session question = %q", response.Session.Question)
	}
	if response.Session.SQL != response.SQL {
		t.Fatalf("session sql = %q, resolution sql = %q", response.Session.SQL, response.SQL)
	}
}

func TestQueryExecutesWhenRequested(t *testing.T) {
	exec := &fakeExecutor{result: executor.Result{
		Columns:  []string{"count"},
		Rows:     [][]any{{int64(12)}},
		RowCount: 1,
		Duration: 3 * time.Millisecond,
	}}
	handler := newTestHandler(t, func(_ *config.Config, deps *Dependencies) {
		deps.Executor = exec
	})

	rec := postJSON(t, handler, "/v1/query", `{"question": "Сколько всего видео?", "execute": true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}

	var response queryResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if response.Result == nil {
		t.Fatal("result missing")
	}
	if response.Result.RowCount != 1 {
		t.Fatalf("row count = %d", response.Result.RowCount)
	}
	if exec.lastSQL != response.SQL {
		t.Fatalf("executed %q, resolved %q", exec.lastSQL, response.SQL)
	}
}

func TestQueryReportsExecutionFailure(t *testing.T) {
	handler := newTestHandler(t, func(_ *config.Config, deps *Dependencies) {
		deps.Executor = &fakeExecutor{err: errors.New("relation does not exist")}
	})

	rec := postJSON(t, handler, "/v1/query", `{"question": "Сколько всего видео?", "execute": true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var response queryResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if response.SQL == "" {
		t.Fatal("resolution should survive an execution failure")
	}
	if !strings.Contains(response.ExecutionError, "relation does not exist") {
		t.Fatalf("execution_error = %q", response.ExecutionError)
	}
	if response.Result != nil {
		t.Fatal("result should be omitted on failure")
	}
}

func TestQueryExecuteWithoutBackend(t *testing.T) {
	handler := newTestHandler(t, nil)
	rec := postJSON(t, handler, "/v1/query", `{"question": "Сколько всего видео?", "execute": true}`)
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "EXECUTION_NOT_CONFIGURED") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}
