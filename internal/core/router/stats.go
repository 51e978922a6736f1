package router

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/earthdata/granule-bridge/internal/granules"
	"github.com/earthdata/granule-bridge/internal/searchstats"
)

type StatsReader interface {
	Counts(ctx context.Context, collectionID string) (map[string]int64, error)
	Totals(ctx context.Context) (map[string]int64, error)
	Top(ctx context.Context, n int) ([]searchstats.CollectionCount, error)
}

// HandleCollectionStats serves GET /stats/collections/{id}.
func HandleCollectionStats(logger *slog.Logger, s StatsReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		counts, err := s.Counts(r.Context(), id)
		if err != nil {
			statsUnavailable(logger, w, r, err)
			return
		}
		writeJSON(w, map[string]any{"collectionId": id, "outcomes": counts})
	}
}

// HandleStatsSummary serves GET /stats?top=n.
func HandleStatsSummary(logger *slog.Logger, s StatsReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, _ := strconv.Atoi(r.URL.Query().Get("top"))
		totals, err := s.Totals(r.Context())
		if err != nil {
			statsUnavailable(logger, w, r, err)
			return
		}
		top, err := s.Top(r.Context(), n)
		if err != nil {
			statsUnavailable(logger, w, r, err)
			return
		}
		writeJSON(w, map[string]any{"totals": totals, "top": top})
	}
}

func statsUnavailable(logger *slog.Logger, w http.ResponseWriter, r *http.Request, err error) {
	logger.WarnContext(r.Context(), "stats read failed", "err", err)
	granules.ErrorEnvelope(http.StatusServiceUnavailable, nil, "statistics unavailable").Write(w)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
