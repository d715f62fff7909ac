package aggregator

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/analytics"
	apperrors "github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/errors"
)

const (
	defaultHistoryLimit = 24
	maxHistoryLimit     = 500
)

// Lister is satisfied by *Store.
type Lister interface {
	ListSnapshots(ctx context.Context, limit int) ([]analytics.AggregatedStats, error)
}

// History serves persisted snapshots, newest first, at
// GET /api/v1/analytics/history?limit=N.
func History(l Lister) http.HandlerFunc {
	log := slog.Default().With("component", "analytics-history")
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultHistoryLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > maxHistoryLimit {
				status, body := apperrors.Response(apperrors.Invalid("limit", "limit must be between 1 and %d", maxHistoryLimit))
				writeJSON(w, log, status, body)
				return
			}
			limit = n
		}

		snapshots, err := l.ListSnapshots(r.Context(), limit)
		if err != nil {
			log.Error("listing analytics snapshots", "error", err)
			status, body := apperrors.Response(err)
			writeJSON(w, log, status, body)
			return
		}
		if snapshots == nil {
			snapshots = []analytics.AggregatedStats{}
		}
		writeJSON(w, log, http.StatusOK, map[string]any{
			"snapshots": snapshots,
			"count":     len(snapshots),
		})
	}
}

func writeJSON(w http.ResponseWriter, log *slog.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error("failed to write response", "error", err)
	}
}
