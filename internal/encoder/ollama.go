package encoder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/resilience"
)

const (
	ProviderOllama     = "ollama"
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "nomic-embed-text"
)

// OllamaProvider calls a local Ollama server's /api/embed endpoint.
type OllamaProvider struct {
	host   string
	model  string
	dim    int
	remote remote
}

func NewOllamaProvider(host, model string, dim int, timeout time.Duration, onState func(string, resilience.State)) *OllamaProvider {
	if host == "" {
		host = DefaultOllamaURL
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	return &OllamaProvider{
		host:   strings.TrimRight(host, "/"),
		model:  model,
		dim:    dim,
		remote: newRemote("ollama-embeddings", timeout, onState),
	}
}

func (p *OllamaProvider) Name() string   { return ProviderOllama }
func (p *OllamaProvider) Model() string  { return p.model }
func (p *OllamaProvider) Dimension() int { return p.dim }

type ollamaRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (p *OllamaProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var resp ollamaResponse
	err := p.remote.call(ctx, "ollama-embed", func() error {
		resp = ollamaResponse{}
		return p.remote.postJSON(ctx, p.host+"/api/embed", nil, ollamaRequest{Model: p.model, Input: texts}, &resp)
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: got %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}
	return resp.Embeddings, nil
}

// Ping checks that the Ollama server answers.
func (p *OllamaProvider) Ping(ctx context.Context) error {
	return p.remote.get(ctx, p.host+"/api/tags", nil)
}
