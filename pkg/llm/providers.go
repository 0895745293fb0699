package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// ProviderConfig selects and configures a completion backend.
type ProviderConfig struct {
	Provider string // "openai", "anthropic", "local", "simulated"
	BaseURL  string
	APIKey   string
	Model    string
}

// NewClient builds a Client from configuration. Unknown providers and the
// empty provider fall back to the simulated client so the decision pipeline
// stays usable without external credentials.
func NewClient(cfg ProviderConfig, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return &openAIClient{cfg: cfg, http: newRetryingClient(), logger: logger}
	case "anthropic":
		return &anthropicClient{cfg: cfg, http: newRetryingClient(), logger: logger}
	case "local", "ollama":
		return &localClient{cfg: cfg, http: newRetryingClient(), logger: logger}
	default:
		logger.Info("using simulated llm client", "provider", cfg.Provider)
		return NewSimulated()
	}
}

func newRetryingClient() *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 3
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 5 * time.Second
	c.HTTPClient.Timeout = 60 * time.Second
	c.Logger = nil
	return c
}

func postJSON(ctx context.Context, client *retryablehttp.Client, url string, headers map[string]string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, truncate(string(data), 200))
	}
	return data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

type openAIClient struct {
	cfg    ProviderConfig
	http   *retryablehttp.Client
	logger *slog.Logger
}

func (c *openAIClient) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	if c.cfg.APIKey == "" {
		return "", ErrMissingCredentials
	}
	base := c.cfg.BaseURL
	if base == "" {
		base = "https://api.openai.com"
	}
	body := map[string]any{
		"model":       c.cfg.Model,
		"messages":    []map[string]string{{"role": "user", "content": prompt}},
		"temperature": opts.Temperature,
		"max_tokens":  opts.MaxTokens,
	}
	data, err := postJSON(ctx, c.http, base+"/v1/chat/completions",
		map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}, body)
	if err != nil {
		return "", err
	}
	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("decoding completion: %w", err)
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return "", ErrEmptyCompletion
	}
	return out.Choices[0].Message.Content, nil
}

type anthropicClient struct {
	cfg    ProviderConfig
	http   *retryablehttp.Client
	logger *slog.Logger
}

func (c *anthropicClient) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	if c.cfg.APIKey == "" {
		return "", ErrMissingCredentials
	}
	base := c.cfg.BaseURL
	if base == "" {
		base = "https://api.anthropic.com"
	}
	body := map[string]any{
		"model":       c.cfg.Model,
		"max_tokens":  opts.MaxTokens,
		"temperature": opts.Temperature,
		"messages":    []map[string]string{{"role": "user", "content": prompt}},
	}
	data, err := postJSON(ctx, c.http, base+"/v1/messages", map[string]string{
		"x-api-key":         c.cfg.APIKey,
		"anthropic-version": "2023-06-01",
	}, body)
	if err != nil {
		return "", err
	}
	var out struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("decoding completion: %w", err)
	}
	if len(out.Content) == 0 || out.Content[0].Text == "" {
		return "", ErrEmptyCompletion
	}
	return out.Content[0].Text, nil
}

// localClient talks to an Ollama-compatible endpoint. No credentials needed.
type localClient struct {
	cfg    ProviderConfig
	http   *retryablehttp.Client
	logger *slog.Logger
}

func (c *localClient) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	base := c.cfg.BaseURL
	if base == "" {
		base = "http://localhost:11434"
	}
	body := map[string]any{
		"model":  c.cfg.Model,
		"prompt": prompt,
		"stream": false,
		"options": map[string]any{
			"temperature": opts.Temperature,
			"num_predict": opts.MaxTokens,
		},
	}
	data, err := postJSON(ctx, c.http, base+"/api/generate", nil, body)
	if err != nil {
		return "", err
	}
	var out struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("decoding completion: %w", err)
	}
	if out.Response == "" {
		return "", ErrEmptyCompletion
	}
	return out.Response, nil
}
