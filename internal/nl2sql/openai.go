package nl2sql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// OpenAITranslator speaks the OpenAI-compatible chat completions protocol,
// which also covers self-hosted gateways exposing the same surface.
type OpenAITranslator struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	client      *http.Client
}

func NewOpenAITranslator(cfg OpenAIConfig) (*OpenAITranslator, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-4o-mini"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &OpenAITranslator{
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       model,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: timeout},
	}, nil
}

func (t *OpenAITranslator) Translate(ctx context.Context, req Request) (Result, error) {
	body, err := json.Marshal(buildChatPayload(t.model, t.temperature, req))
	if err != nil {
		return Result{}, fmt.Errorf("marshal chat payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("request chat completion: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read chat response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return Result{}, fmt.Errorf("chat completion failed status=%d body=%s", resp.StatusCode, string(rawBody))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		return Result{}, fmt.Errorf("decode chat completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return Result{}, fmt.Errorf("empty chat completion choices: %w", ErrNoTranslation)
	}

	sql := ExtractSQL(parsed.Choices[0].Message.Content)
	if sql == "" {
		return Result{}, fmt.Errorf("model returned no SQL: %w", ErrNoTranslation)
	}
	if err := ValidateReadOnly(sql); err != nil {
		return Result{}, fmt.Errorf("unsafe translation: %w", err)
	}
	return Result{
		SQL:        sql,
		Confidence: ScoreConfidence(sql),
		Provider:   "openai-compatible",
		Model:      t.model,
	}, nil
}

func buildChatPayload(model string, temperature float64, req Request) map[string]any {
	systemPrompt := "You are a professional SQL translator. Convert Russian natural language questions " +
		"into a single PostgreSQL SELECT statement. Return ONLY SQL, no markdown, no explanation. " +
		"Use DATE() for date comparisons and proper JOINs when needed."

	var userPrompt strings.Builder
	if req.SchemaDescription != "" {
		userPrompt.WriteString("Database schema:\n\n")
		userPrompt.WriteString(req.SchemaDescription)
		userPrompt.WriteString("\n\n")
	}
	if len(req.PreviousCorrections) > 0 {
		userPrompt.WriteString("Previous corrections (learn from these):\n")
		corrections := req.PreviousCorrections
		if len(corrections) > 3 {
			corrections = corrections[len(corrections)-3:]
		}
		for _, c := range corrections {
			fmt.Fprintf(&userPrompt, "\nQuestion: %s\nWrong SQL: %s\nCorrect SQL: %s\n", c.Question, c.WrongSQL, c.CorrectedSQL)
		}
		userPrompt.WriteString("\n")
	}
	userPrompt.WriteString("Convert this question to SQL:\n\n")
	userPrompt.WriteString(strings.TrimSpace(req.Question))

	return map[string]any{
		"model": model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt.String()},
		},
		"temperature": temperature,
	}
}

// ExtractSQL pulls the first SELECT statement out of a model reply, tolerating
// markdown fences and trailing prose.
func ExtractSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		trimmed = strings.TrimSpace(trimmed)
	}
	if idx := strings.Index(trimmed, ";"); idx >= 0 {
		trimmed = strings.TrimSpace(trimmed[:idx])
	}
	return trimmed
}
