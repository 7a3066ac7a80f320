package sqlmindctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

// request is a fully prepared API call built from a CLI command.
type request struct {
	method string
	path   string
	body   any
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("sqlmindctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "SQLMind API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 10*time.Second), "HTTP timeout (e.g. 10s)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	command := strings.TrimSpace(fs.Arg(0))
	call, err := buildRequest(command, fs.Args()[1:], stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n\n", err)
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	endpoint := strings.TrimRight(*baseURL, "/") + call.path
	code, responseBody, err := doRequest(ctx, client, call, endpoint, *apiKey)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

func buildRequest(command string, args []string, stderr io.Writer) (request, error) {
	switch command {
	case "health":
		return request{method: http.MethodGet, path: "/v1/health"}, nil
	case "ready":
		return request{method: http.MethodGet, path: "/v1/ready"}, nil
	case "stats":
		return request{method: http.MethodGet, path: "/v1/stats"}, nil
	case "schema":
		return request{method: http.MethodGet, path: "/v1/schema"}, nil
	case "optimize":
		return request{method: http.MethodPost, path: "/v1/admin/optimize"}, nil
	case "save":
		return request{method: http.MethodPost, path: "/v1/admin/save"}, nil
	case "clear-cache":
		return request{method: http.MethodPost, path: "/v1/admin/cache/clear"}, nil
	case "archive":
		return request{method: http.MethodPost, path: "/v1/admin/archive"}, nil
	case "query":
		fs := flag.NewFlagSet("query", flag.ContinueOnError)
		fs.SetOutput(stderr)
		sessionID := fs.String("session", "", "session ID to track the confirmation flow")
		execute := fs.Bool("execute", false, "run the translated SQL against the configured backend")
		if err := fs.Parse(args); err != nil {
			return request{}, err
		}
		question := strings.TrimSpace(strings.Join(fs.Args(), " "))
		if question == "" {
			return request{}, fmt.Errorf("query: a question is required")
		}
		return request{method: http.MethodPost, path: "/v1/query", body: map[string]any{
			"question":   question,
			"session_id": *sessionID,
			"execute":    *execute,
		}}, nil
	case "learn-success":
		fs := flag.NewFlagSet("learn-success", flag.ContinueOnError)
		fs.SetOutput(stderr)
		sessionID := fs.String("session", "", "session ID to confirm")
		if err := fs.Parse(args); err != nil {
			return request{}, err
		}
		if fs.NArg() != 2 {
			return request{}, fmt.Errorf("learn-success: expected <question> <sql>")
		}
		return request{method: http.MethodPost, path: "/v1/learn/success", body: map[string]any{
			"question":   fs.Arg(0),
			"sql":        fs.Arg(1),
			"session_id": *sessionID,
		}}, nil
	case "correct":
		fs := flag.NewFlagSet("correct", flag.ContinueOnError)
		fs.SetOutput(stderr)
		generated := fs.String("generated", "", "the SQL the engine produced")
		feedback := fs.String("feedback", "", "free-form note on what was wrong")
		sessionID := fs.String("session", "", "session ID awaiting the correction")
		if err := fs.Parse(args); err != nil {
			return request{}, err
		}
		if fs.NArg() != 2 {
			return request{}, fmt.Errorf("correct: expected <question> <corrected-sql>")
		}
		return request{method: http.MethodPost, path: "/v1/learn/correction", body: map[string]any{
			"question":      fs.Arg(0),
			"generated_sql": *generated,
			"corrected_sql": fs.Arg(1),
			"feedback":      *feedback,
			"session_id":    *sessionID,
		}}, nil
	default:
		return request{}, fmt.Errorf("unknown command %q", command)
	}
}

func doRequest(ctx context.Context, client *http.Client, call request, url, apiKey string) (int, []byte, error) {
	var payload io.Reader
	if call.body != nil {
		encoded, err := json.Marshal(call.body)
		if err != nil {
			return 0, nil, err
		}
		payload = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, call.method, url, payload)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if call.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: sqlmindctl [flags] <command> [command flags] [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health                                GET  /v1/health")
	_, _ = fmt.Fprintln(w, "  ready                                 GET  /v1/ready")
	_, _ = fmt.Fprintln(w, "  stats                                 GET  /v1/stats")
	_, _ = fmt.Fprintln(w, "  schema                                GET  /v1/schema")
	_, _ = fmt.Fprintln(w, "  query [-session ID] [-execute] <q>    POST /v1/query")
	_, _ = fmt.Fprintln(w, "  learn-success [-session ID] <q> <sql> POST /v1/learn/success")
	_, _ = fmt.Fprintln(w, "  correct [-generated SQL] [-feedback N] [-session ID] <q> <sql>")
	_, _ = fmt.Fprintln(w, "                                        POST /v1/learn/correction")
	_, _ = fmt.Fprintln(w, "  optimize                              POST /v1/admin/optimize")
	_, _ = fmt.Fprintln(w, "  save                                  POST /v1/admin/save")
	_, _ = fmt.Fprintln(w, "  clear-cache                           POST /v1/admin/cache/clear")
	_, _ = fmt.Fprintln(w, "  archive                               POST /v1/admin/archive")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
