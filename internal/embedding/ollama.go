package embedding

import (
	"context"
	"fmt"
	"strings"
)

const (
	defaultOllamaEndpoint = "http://localhost:11434"
	defaultOllamaModel    = "nomic-embed-text"
)

type ollamaRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type ollamaResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Ollama calls a local Ollama /api/embed endpoint. No credential is needed.
type Ollama struct {
	endpoint  string
	model     string
	transport *transport
}

// NewOllama creates an Ollama provider.
func NewOllama(opts Options) (*Ollama, error) {
	endpoint := strings.TrimRight(opts.Endpoint, "/")
	if endpoint == "" {
		endpoint = defaultOllamaEndpoint
	}
	model := opts.Model
	if model == "" {
		model = defaultOllamaModel
	}
	return &Ollama{endpoint: endpoint, model: model, transport: newTransport(opts)}, nil
}

// Model returns the configured model identifier.
func (p *Ollama) Model() string { return p.model }

// Dimensions returns the native size of known models.
func (p *Ollama) Dimensions() int { return DimensionsFor(p.model) }

// Embed requests a single embedding.
func (p *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := checkInput(text); err != nil {
		return nil, err
	}
	var resp ollamaResponse
	err := p.transport.postJSON(ctx, p.endpoint+"/api/embed", nil, ollamaRequest{Model: p.model, Input: text}, &resp)
	if err != nil {
		return nil, fail(err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fail(fmt.Errorf("ollama returned no embeddings"))
	}
	vec := resp.Embeddings[0]
	if err := checkVector(vec, p.Dimensions()); err != nil {
		return nil, fail(err)
	}
	return vec, nil
}
