// Package hf implements copilot.EmbeddingProvider and
// copilot.GenerationProvider on top of the Hugging Face Inference API.
//
// The feature-extraction endpoint is untyped: depending on the model and
// deployment it returns a vector, a matrix of token vectors, or a batch of
// either. The embedding provider normalizes all of these shapes by mean
// pooling down to one fixed-length vector per input text.
package hf

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/finsight/copilot"
)

const defaultBaseURL = "https://api-inference.huggingface.co"

// DefaultEmbeddingModel is a small sentence-transformers model producing
// 384-dimensional embeddings.
const DefaultEmbeddingModel = "sentence-transformers/all-MiniLM-L6-v2"

// DefaultEmbeddingDimensions is the output dimension of DefaultEmbeddingModel.
const DefaultEmbeddingDimensions = 384

// EmbeddingOption configures an Embedding provider.
type EmbeddingOption func(*Embedding)

// WithEmbeddingBaseURL overrides the API base URL. Useful for tests and for
// self-hosted inference endpoints.
func WithEmbeddingBaseURL(url string) EmbeddingOption {
	return func(e *Embedding) { e.baseURL = url }
}

// WithEmbeddingHTTPClient sets a custom HTTP client.
func WithEmbeddingHTTPClient(c *http.Client) EmbeddingOption {
	return func(e *Embedding) { e.client = c }
}

// Embedding implements copilot.EmbeddingProvider using the Hugging Face
// feature-extraction pipeline.
type Embedding struct {
	apiKey  string
	model   string
	dims    int
	baseURL string
	client  *http.Client
}

var _ copilot.EmbeddingProvider = (*Embedding)(nil)

// NewEmbedding creates an embedding provider for the given model. dims is the
// model's output dimension; responses with any other length are rejected.
func NewEmbedding(apiKey, model string, dims int, opts ...EmbeddingOption) *Embedding {
	e := &Embedding{
		apiKey:  apiKey,
		model:   model,
		dims:    dims,
		baseURL: defaultBaseURL,
		client:  &http.Client{},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Name returns "huggingface".
func (e *Embedding) Name() string { return "huggingface" }

// Dimensions returns the configured embedding dimension.
func (e *Embedding) Dimensions() int { return e.dims }

// embedRequest is the feature-extraction payload. The options ask the hosted
// API to queue the request while the model loads instead of returning 503.
type embedRequest struct {
	Inputs  []string     `json:"inputs"`
	Options embedOptions `json:"options"`
}

type embedOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

// Embed returns one embedding per input text, in order. All texts go in a
// single API call.
func (e *Embedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(embedRequest{
		Inputs:  texts,
		Options: embedOptions{WaitForModel: true},
	})
	if err != nil {
		return nil, &copilot.ErrEmbedding{Provider: e.Name(), Message: "marshal request", Cause: err}
	}

	url := e.baseURL + "/pipeline/feature-extraction/" + e.model
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &copilot.ErrEmbedding{Provider: e.Name(), Message: "create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &copilot.ErrEmbedding{Provider: e.Name(), Message: "send request", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &copilot.ErrHTTP{
			Status:     resp.StatusCode,
			Body:       string(body),
			RetryAfter: copilot.ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, &copilot.ErrEmbedding{Provider: e.Name(), Message: "decode response", Cause: err}
	}

	vectors, err := normalizeEmbeddings(raw, len(texts), e.dims)
	if err != nil {
		return nil, &copilot.ErrEmbedding{Provider: e.Name(), Message: err.Error()}
	}
	return vectors, nil
}

// normalizeEmbeddings reduces whatever shape the feature-extraction endpoint
// returned into exactly n vectors of dims floats each.
//
// Observed shapes:
//
//	[D]float            single vector, single input
//	[N][D]float         one vector per input, or token vectors for one input
//	[N][T][D]float      token vectors per input (needs mean pooling)
//	[1][N][T][D]float   the above wrapped in a singleton batch
func normalizeEmbeddings(raw json.RawMessage, n, dims int) ([][]float32, error) {
	node, err := decodeNested(raw)
	if err != nil {
		return nil, fmt.Errorf("parse embedding response: %w", err)
	}

	switch rank(node) {
	case 1:
		if n != 1 {
			return nil, fmt.Errorf("got a single vector for %d inputs", n)
		}
		v, err := poolToVector(node, dims)
		if err != nil {
			return nil, err
		}
		return [][]float32{v}, nil
	case 2:
		children := node.children
		if len(children) == n {
			out := make([][]float32, n)
			for i, c := range children {
				v, err := poolToVector(c, dims)
				if err != nil {
					return nil, fmt.Errorf("input %d: %w", i, err)
				}
				out[i] = v
			}
			return out, nil
		}
		// Token matrix for a single input: pool rows into one vector.
		if n == 1 {
			v, err := poolToVector(node, dims)
			if err != nil {
				return nil, err
			}
			return [][]float32{v}, nil
		}
		return nil, fmt.Errorf("got %d vectors for %d inputs", len(children), n)
	case 3:
		children := node.children
		if len(children) != n {
			// Singleton batch wrapper around the real matrix.
			if len(children) == 1 && len(children[0].children) == n {
				children = children[0].children
			} else {
				return nil, fmt.Errorf("got %d embeddings for %d inputs", len(children), n)
			}
		}
		out := make([][]float32, n)
		for i, c := range children {
			v, err := poolToVector(c, dims)
			if err != nil {
				return nil, fmt.Errorf("input %d: %w", i, err)
			}
			out[i] = v
		}
		return out, nil
	case 4:
		if len(node.children) != 1 {
			return nil, fmt.Errorf("unexpected batch of %d rank-3 embeddings", len(node.children))
		}
		inner := node.children[0]
		if len(inner.children) != n {
			return nil, fmt.Errorf("got %d embeddings for %d inputs", len(inner.children), n)
		}
		out := make([][]float32, n)
		for i, c := range inner.children {
			v, err := poolToVector(c, dims)
			if err != nil {
				return nil, fmt.Errorf("input %d: %w", i, err)
			}
			out[i] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported embedding response shape")
	}
}

// nestedNode is a parsed JSON array tree with floats only at the leaves.
type nestedNode struct {
	leaf     []float32
	children []*nestedNode
}

// decodeNested parses arbitrarily nested JSON float arrays.
func decodeNested(raw json.RawMessage) (*nestedNode, error) {
	// Try a flat float vector first, the most common case.
	var flat []float32
	if err := json.Unmarshal(raw, &flat); err == nil {
		return &nestedNode{leaf: flat}, nil
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, err
	}
	node := &nestedNode{children: make([]*nestedNode, len(parts))}
	for i, p := range parts {
		c, err := decodeNested(p)
		if err != nil {
			return nil, err
		}
		node.children[i] = c
	}
	return node, nil
}

// rank returns the array depth of the node: 1 for a flat vector, 2 for a
// matrix, and so on. Ragged structures report the depth of the first branch.
func rank(n *nestedNode) int {
	if n.children == nil {
		return 1
	}
	if len(n.children) == 0 {
		return 2
	}
	return 1 + rank(n.children[0])
}

// poolToVector reduces a node to a single vector of length dims by mean
// pooling across the leading axes.
func poolToVector(n *nestedNode, dims int) ([]float32, error) {
	if n.children == nil {
		if len(n.leaf) != dims {
			return nil, fmt.Errorf("embedding has %d dimensions, expected %d", len(n.leaf), dims)
		}
		out := make([]float32, dims)
		copy(out, n.leaf)
		return out, nil
	}
	if len(n.children) == 0 {
		return nil, fmt.Errorf("empty embedding in response")
	}

	sum := make([]float64, dims)
	for _, c := range n.children {
		v, err := poolToVector(c, dims)
		if err != nil {
			return nil, err
		}
		for i, x := range v {
			sum[i] += float64(x)
		}
	}
	out := make([]float32, dims)
	for i, s := range sum {
		out[i] = float32(s / float64(len(n.children)))
	}
	return out, nil
}
