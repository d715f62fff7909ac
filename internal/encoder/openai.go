package encoder

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/resilience"
)

const (
	ProviderOpenAI     = "openai"
	DefaultOpenAIURL   = "https://api.openai.com/v1"
	DefaultOpenAIModel = "text-embedding-3-small"
	OpenAIMaxBatchSize = 2048
)

// OpenAIProvider calls an OpenAI-compatible /embeddings endpoint.
type OpenAIProvider struct {
	baseURL string
	apiKey  string
	model   string
	dim     int
	remote  remote
}

// NewOpenAIProvider returns a provider for baseURL (DefaultOpenAIURL when
// empty). dim may be 0 to let Init probe it.
func NewOpenAIProvider(baseURL, apiKey, model string, dim int, timeout time.Duration, onState func(string, resilience.State)) (*OpenAIProvider, error) {
	if apiKey == "" && baseURL == "" {
		return nil, fmt.Errorf("openai provider: api key is required for %s", DefaultOpenAIURL)
	}
	if baseURL == "" {
		baseURL = DefaultOpenAIURL
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		dim:     dim,
		remote:  newRemote("openai-embeddings", timeout, onState),
	}, nil
}

func (p *OpenAIProvider) Name() string   { return ProviderOpenAI }
func (p *OpenAIProvider) Model() string  { return p.model }
func (p *OpenAIProvider) Dimension() int { return p.dim }

type openAIRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type openAIResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

func (p *OpenAIProvider) headers() map[string]string {
	if p.apiKey == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + p.apiKey}
}

func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) > OpenAIMaxBatchSize {
		return nil, fmt.Errorf("openai embed: batch of %d exceeds limit %d", len(texts), OpenAIMaxBatchSize)
	}
	var resp openAIResponse
	err := p.remote.call(ctx, "openai-embed", func() error {
		resp = openAIResponse{}
		return p.remote.postJSON(ctx, p.baseURL+"/embeddings", p.headers(), openAIRequest{Input: texts, Model: p.model}, &resp)
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embed: got %d embeddings for %d inputs", len(resp.Data), len(texts))
	}
	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

// Ping lists models, which is cheap and authenticated.
func (p *OpenAIProvider) Ping(ctx context.Context) error {
	return p.remote.get(ctx, p.baseURL+"/models", p.headers())
}
