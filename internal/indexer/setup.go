package indexer

import (
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/encoder"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/indexer/lexical"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/metrics"
)

// LexicalOptions converts the lexical section of the config.
func LexicalOptions(cfg config.LexicalConfig) lexical.Options {
	return lexical.Options{
		MaxFeatures:     cfg.MaxFeatures,
		NGramMax:        cfg.NGramMax,
		MinDocFreq:      cfg.MinDocFreq,
		MaxDocFreqRatio: cfg.MaxDocFreqRatio,
	}
}

// FromConfig builds the configured encoder and an Engine reading from
// source. The encoder is returned uninitialised; the first build or load
// initialises it.
func FromConfig(source RecordSource, cfg *config.Config, m *metrics.Metrics) (*Engine, *encoder.Model, error) {
	enc, err := encoder.FromConfig(cfg.Encoder, m)
	if err != nil {
		return nil, nil, err
	}
	engine := NewEngine(source, enc, Options{
		Indexer: cfg.Indexer,
		Lexical: LexicalOptions(cfg.Lexical),
		Metrics: m,
		Tracing: cfg.Tracing.Enabled,
	})
	return engine, enc, nil
}
