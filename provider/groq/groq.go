// Package groq implements copilot.GenerationProvider against the Groq
// OpenAI-compatible chat completions API.
//
// Works unchanged against OpenAI, OpenRouter, Together, Ollama, vLLM, and
// any other endpoint that implements the same API; point WithBaseURL at it.
package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/finsight/copilot"
)

const defaultBaseURL = "https://api.groq.com/openai/v1"

const defaultSystemPrompt = "You are a helpful assistant. Answer using only the provided context."

// Option configures a Provider.
type Option func(*Provider)

// WithBaseURL overrides the API base URL. The /chat/completions path is
// appended automatically.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// WithSystemPrompt replaces the default system message.
func WithSystemPrompt(prompt string) Option {
	return func(p *Provider) { p.systemPrompt = prompt }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(p *Provider) { p.temperature = &t }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(p *Provider) { p.maxTokens = n }
}

// Provider implements copilot.GenerationProvider for Groq and other
// OpenAI-compatible chat APIs.
type Provider struct {
	apiKey       string
	model        string
	baseURL      string
	systemPrompt string
	temperature  *float64
	maxTokens    int
	client       *http.Client
}

var _ copilot.GenerationProvider = (*Provider)(nil)

// New creates a chat completion provider for the given model.
func New(apiKey, model string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:       apiKey,
		model:        model,
		baseURL:      defaultBaseURL,
		systemPrompt: defaultSystemPrompt,
		client:       &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Name returns "groq/<model>".
func (p *Provider) Name() string { return "groq/" + p.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate sends the prompt as a user message and returns the completion.
func (p *Provider) Generate(ctx context.Context, prompt string) (string, error) {
	body := chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: p.systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("groq: marshal request: %w", err)
	}

	url := p.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("groq: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("groq: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", p.httpErr(resp)
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("groq: decode response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("groq: response has no choices")
	}
	return strings.TrimSpace(chatResp.Choices[0].Message.Content), nil
}

// httpErr reads the response body and returns an ErrHTTP for retry middleware.
// Parses the Retry-After header when present (429/503 responses).
func (p *Provider) httpErr(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	return &copilot.ErrHTTP{
		Status:     resp.StatusCode,
		Body:       string(body),
		RetryAfter: copilot.ParseRetryAfter(resp.Header.Get("Retry-After")),
	}
}
