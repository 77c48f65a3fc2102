package hf

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

// GenerationOption configures a Generation provider.
type GenerationOption func(*Generation)

// WithGenerationBaseURL overrides the API base URL.
func WithGenerationBaseURL(url string) GenerationOption {
	return func(g *Generation) { g.baseURL = url }
}

// WithGenerationHTTPClient sets a custom HTTP client.
func WithGenerationHTTPClient(c *http.Client) GenerationOption {
	return func(g *Generation) { g.client = c }
}

// WithMaxNewTokens caps the number of generated tokens.
func WithMaxNewTokens(n int) GenerationOption {
	return func(g *Generation) { g.maxNewTokens = n }
}

// Generation implements copilot.GenerationProvider using Hugging Face
// hosted inference. Different task pipelines tag their output text under
// different keys; ParseGenerated accepts all of them.
type Generation struct {
	apiKey       string
	model        string
	baseURL      string
	maxNewTokens int
	client       *http.Client
}

var _ copilot.GenerationProvider = (*Generation)(nil)

// NewGeneration creates a text generation provider for the given model.
func NewGeneration(apiKey, model string, opts ...GenerationOption) *Generation {
	g := &Generation{
		apiKey:       apiKey,
		model:        model,
		baseURL:      defaultBaseURL,
		maxNewTokens: 512,
		client:       &http.Client{},
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Name returns "huggingface/<model>".
func (g *Generation) Name() string { return "huggingface/" + g.model }

type generateRequest struct {
	Inputs     string             `json:"inputs"`
	Parameters generateParameters `json:"parameters"`
	Options    embedOptions       `json:"options"`
}

type generateParameters struct {
	MaxNewTokens   int  `json:"max_new_tokens,omitempty"`
	ReturnFullText bool `json:"return_full_text"`
}

// Generate sends the prompt to the model and returns the generated text.
func (g *Generation) Generate(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(generateRequest{
		Inputs: prompt,
		Parameters: generateParameters{
			MaxNewTokens:   g.maxNewTokens,
			ReturnFullText: false,
		},
		Options: embedOptions{WaitForModel: true},
	})
	if err != nil {
		return "", fmt.Errorf("hf: marshal request: %w", err)
	}

	url := g.baseURL + "/models/" + g.model
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("hf: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("hf: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", &copilot.ErrHTTP{
			Status:     resp.StatusCode,
			Body:       string(body),
			RetryAfter: copilot.ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("hf: read response: %w", err)
	}
	return ParseGenerated(raw)
}

// taggedText covers the output keys used by the text-generation,
// summarization, and translation pipelines.
type taggedText struct {
	GeneratedText   string `json:"generated_text"`
	SummaryText     string `json:"summary_text"`
	TranslationText string `json:"translation_text"`
}

func (t taggedText) text() string {
	switch {
	case t.GeneratedText != "":
		return t.GeneratedText
	case t.SummaryText != "":
		return t.SummaryText
	default:
		return t.TranslationText
	}
}

// ParseGenerated extracts the output text from an inference response.
// Accepted shapes: a tagged object, an array with one tagged object,
// a bare JSON string, or an array with one string.
func ParseGenerated(raw []byte) (string, error) {
	var obj taggedText
	if err := json.Unmarshal(raw, &obj); err == nil {
		if s := obj.text(); s != "" {
			return strings.TrimSpace(s), nil
		}
	}

	var objs []taggedText
	if err := json.Unmarshal(raw, &objs); err == nil && len(objs) > 0 {
		if s := objs[0].text(); s != "" {
			return strings.TrimSpace(s), nil
		}
	}

	var str string
	if err := json.Unmarshal(raw, &str); err == nil && str != "" {
		return strings.TrimSpace(str), nil
	}

	var strs []string
	if err := json.Unmarshal(raw, &strs); err == nil && len(strs) > 0 && strs[0] != "" {
		return strings.TrimSpace(strs[0]), nil
	}

	return "", fmt.Errorf("hf: no generated text in response")
}
