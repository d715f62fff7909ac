package analytics

import "time"

type EventType string

const (
	EventSearch  EventType = "search"
	EventSimilar EventType = "similar"
	EventRebuild EventType = "rebuild"
)

// Search outcomes.
const (
	OutcomeOK         = "ok"
	OutcomeZeroResult = "zero_result"
	OutcomeNotIndexed = "not_indexed"
	OutcomeNotFound   = "not_found"
	OutcomeInvalid    = "invalid"
	OutcomeError      = "error"
)

// SearchEvent records one Search or SimilarTo call.
type SearchEvent struct {
	Type           EventType `json:"type"`
	Query          string    `json:"query,omitempty"`
	ISBN           string    `json:"isbn,omitempty"`
	Limit          int       `json:"limit"`
	Returned       int       `json:"returned"`
	Outcome        string    `json:"outcome"`
	SemanticWeight float64   `json:"semantic_weight"`
	KeywordWeight  float64   `json:"keyword_weight"`
	Genres         []string  `json:"genres,omitempty"`
	LatencyMs      int64     `json:"latency_ms"`
	CacheHit       bool      `json:"cache_hit"`
	BuildID        string    `json:"build_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	RequestID      string    `json:"request_id,omitempty"`
}

// RebuildEvent records one index rebuild attempt.
type RebuildEvent struct {
	Type       EventType `json:"type"`
	BuildID    string    `json:"build_id,omitempty"`
	Status     string    `json:"status"`
	Indexed    int       `json:"indexed"`
	Skipped    int       `json:"skipped"`
	Stage      string    `json:"stage,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// envelope is decoded first to pick the concrete event type.
type envelope struct {
	Type EventType `json:"type"`
}
