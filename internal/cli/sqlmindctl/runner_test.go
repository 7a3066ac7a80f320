package sqlmindctl

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRunQueryCommand(t *testing.T) {
	var gotMethod, gotPath, gotAPIKey string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("X-API-Key")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sql":"SELECT COUNT(*) FROM videos","source":"exact_cache"}`))
	}))
	defer srv.Close()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	code := Run(context.Background(), []string{
		"-base-url", srv.URL,
		"-api-key", "k1",
		"query", "-session", "tg-1", "-execute", "Сколько", "всего", "видео?",
	}, Options{
		Stdout:  &stdout,
		Stderr:  &stderr,
		Timeout: 2 * time.Second,
	})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if gotMethod != http.MethodPost || gotPath != "/v1/query" {
		t.Fatalf("request = %s %s", gotMethod, gotPath)
	}
	if gotAPIKey != "k1" {
		t.Fatalf("api key = %q", gotAPIKey)
	}
	if gotBody["question"] != "Сколько всего видео?" {
		t.Fatalf("question = %q", gotBody["question"])
	}
	if gotBody["session_id"] != "tg-1" || gotBody["execute"] != true {
		t.Fatalf("body = %v", gotBody)
	}
	if stdout.Len() == 0 {
		t.Fatal("expected command output")
	}
}

func TestRunQueryRequiresQuestion(t *testing.T) {
	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"query"}, Options{Stderr: &stderr})
	if code != 2 {
		t.Fatalf("exit code = %d", code)
	}
	if stderr.Len() == 0 {
		t.Fatal("expected usage output")
	}
}

func TestRunCorrectCommand(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		_, _ = w.Write([]byte(`{"record":{"question":"q"}}`))
	}))
	defer srv.Close()

	code := Run(context.Background(), []string{
		"-base-url", srv.URL,
		"correct",
		"-generated", "SELECT COUNT(*) FROM video_snapshots",
		"-feedback", "не та таблица",
		"Сколько видео?", "SELECT COUNT(*) FROM videos",
	}, Options{})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if gotPath != "/v1/learn/correction" {
		t.Fatalf("path = %s", gotPath)
	}
	if gotBody["generated_sql"] != "SELECT COUNT(*) FROM video_snapshots" {
		t.Fatalf("generated_sql = %q", gotBody["generated_sql"])
	}
	if gotBody["corrected_sql"] != "SELECT COUNT(*) FROM videos" {
		t.Fatalf("corrected_sql = %q", gotBody["corrected_sql"])
	}
	if gotBody["feedback"] != "не та таблица" {
		t.Fatalf("feedback = %q", gotBody["feedback"])
	}
}

func TestRunAdminCommands(t *testing.T) {
	cases := map[string]string{
		"optimize":    "/v1/admin/optimize",
		"save":        "/v1/admin/save",
		"archive":     "/v1/admin/archive",
		"clear-cache": "/v1/admin/cache/clear",
		"stats":       "/v1/stats",
		"schema":      "/v1/schema",
	}
	for command, wantPath := range cases {
		var gotMethod, gotPath string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotMethod = r.Method
			gotPath = r.URL.Path
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		}))

		code := Run(context.Background(), []string{"-base-url", srv.URL, command}, Options{})
		srv.Close()
		if code != 0 {
			t.Fatalf("%s: exit code = %d", command, code)
		}
		if gotPath != wantPath {
			t.Fatalf("%s: path = %s", command, gotPath)
		}
		wantMethod := http.MethodPost
		if command == "stats" || command == "schema" {
			wantMethod = http.MethodGet
		}
		if gotMethod != wantMethod {
			t.Fatalf("%s: method = %s", command, gotMethod)
		}
	}
}

func TestRunReturnsErrorOnHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error_code":"FORBIDDEN"}`))
	}))
	defer srv.Close()

	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "stats"}, Options{Stderr: &stderr})
	if code != 1 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
}

func TestRunUnknownCommand(t *testing.T) {
	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"unknown"}, Options{Stderr: &stderr})
	if code != 2 {
		t.Fatalf("exit code = %d", code)
	}
	if stderr.Len() == 0 {
		t.Fatal("expected usage output")
	}
}
