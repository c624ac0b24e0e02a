package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const (
	defaultOpenAIEndpoint = "https://api.openai.com/v1"
	defaultOpenAIModel    = "text-embedding-ada-002"
)

type openAIRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	EncodingFormat string `json:"encoding_format"`
	Dimensions     int    `json:"dimensions,omitempty"`
}

type openAIResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
}

// OpenAI calls an OpenAI-compatible /embeddings endpoint.
type OpenAI struct {
	endpoint   string
	model      string
	apiKey     string
	dimensions int // requested reduction, 0 for the native size
	transport  *transport
}

// NewOpenAI creates an OpenAI provider. An API key is required.
func NewOpenAI(opts Options) (*OpenAI, error) {
	if opts.APIKey == "" {
		return nil, errors.New("embedding: openai api key is required")
	}
	endpoint := strings.TrimRight(opts.Endpoint, "/")
	if endpoint == "" {
		endpoint = defaultOpenAIEndpoint
	}
	model := opts.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAI{
		endpoint:   endpoint,
		model:      model,
		apiKey:     opts.APIKey,
		dimensions: opts.Dimensions,
		transport:  newTransport(opts),
	}, nil
}

// Model returns the configured model identifier.
func (p *OpenAI) Model() string { return p.model }

// Dimensions returns the requested or native vector length.
func (p *OpenAI) Dimensions() int {
	if p.dimensions > 0 {
		return p.dimensions
	}
	return DimensionsFor(p.model)
}

// Embed requests a single embedding.
func (p *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := checkInput(text); err != nil {
		return nil, err
	}
	req := openAIRequest{
		Model:          p.model,
		Input:          text,
		EncodingFormat: "float",
		Dimensions:     p.dimensions,
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+p.apiKey)

	var resp openAIResponse
	if err := p.transport.postJSON(ctx, p.endpoint+"/embeddings", header, req, &resp); err != nil {
		return nil, fail(err)
	}
	if len(resp.Data) == 0 {
		return nil, fail(fmt.Errorf("openai returned no data"))
	}
	vec := resp.Data[0].Embedding
	if err := checkVector(vec, p.Dimensions()); err != nil {
		return nil, fail(err)
	}
	return vec, nil
}
