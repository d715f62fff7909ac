package encoder

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/resilience"
)

// FromConfig builds an uninitialised Model for the configured provider. When
// m is non-nil, circuit breaker transitions are exported on it.
func FromConfig(cfg config.EncoderConfig, m *metrics.Metrics) (*Model, error) {
	var onState func(string, resilience.State)
	if m != nil {
		onState = func(name string, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		}
	}

	var p Provider
	switch cfg.Provider {
	case ProviderHashing, "":
		p = NewHashingProvider(cfg.Model, cfg.Dimension)
	case ProviderOpenAI:
		op, err := NewOpenAIProvider(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Dimension, cfg.Timeout, onState)
		if err != nil {
			return nil, err
		}
		p = op
	case ProviderOllama:
		p = NewOllamaProvider(cfg.BaseURL, cfg.Model, cfg.Dimension, cfg.Timeout, onState)
	default:
		return nil, fmt.Errorf("unknown encoder provider %q", cfg.Provider)
	}

	return New(p, Options{
		BatchSize:   cfg.BatchSize,
		Concurrency: cfg.Concurrency,
		CacheSize:   cfg.CacheSize,
	}), nil
}
