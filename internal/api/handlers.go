// Package api exposes the query layer over HTTP (chi) and MCP. Handlers
// translate transport parameters into engine calls and engine errors into
// status codes; all query semantics live in the engines.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/curator/internal/config"
	"github.com/kalambet/curator/internal/curation"
	"github.com/kalambet/curator/internal/pagination"
	"github.com/kalambet/curator/internal/query"
	"github.com/kalambet/curator/internal/storage"
	"github.com/kalambet/curator/internal/tsid"
)

const maxPageSize = 1000

// Deps holds the collaborators the HTTP surface needs.
type Deps struct {
	Curation     *curation.Engine
	Pagination   *pagination.Engine
	Orchestrator *query.Orchestrator
	Token        string
}

// NewHandler builds the HTTP router.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestLogger())

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Get("/functions/{function}/inferences/count", handleCountInferences(deps))
		r.Get("/functions/{function}/metrics/{metric}/feedback/count", handleCountFeedback(deps))
		r.Get("/functions/{function}/metrics/{metric}/curated/count", handleCountCurated(deps))
		r.Get("/functions/{function}/metrics/{metric}/summary", handleMetricSummary(deps))
		r.Get("/functions/{function}/metrics/{metric}/feedback/latest", handleResolveLatest(deps))
		r.Get("/functions/{function}/curated", handleCurated(deps))

		r.Get("/inferences", handleListInferences(deps))
		r.Get("/inferences/bounds", handleInferenceBounds(deps))
		r.Get("/episodes", handleListEpisodes(deps))
		r.Get("/episodes/bounds", handleEpisodeBounds(deps))
	})

	return r
}

// inferenceRowJSON is the wire form of a raw (unparsed) inference row.
type inferenceRowJSON struct {
	ID           tsid.ID   `json:"id"`
	FunctionName string    `json:"function_name"`
	VariantName  string    `json:"variant_name"`
	EpisodeID    tsid.ID   `json:"episode_id"`
	Timestamp    time.Time `json:"timestamp"`
	Input        string    `json:"input"`
	Output       string    `json:"output"`
}

func toRowJSON(rows []storage.InferenceRow) []inferenceRowJSON {
	out := make([]inferenceRowJSON, len(rows))
	for i, r := range rows {
		out[i] = inferenceRowJSON{
			ID:           r.ID,
			FunctionName: r.FunctionName,
			VariantName:  r.VariantName,
			EpisodeID:    r.EpisodeID,
			Timestamp:    r.Timestamp(),
			Input:        r.Input,
			Output:       r.Output,
		}
	}
	return out
}

func handleCountInferences(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := deps.Curation.CountInferences(r.Context(), chi.URLParam(r, "function"))
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"count": n})
	}
}

func handleCountFeedback(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := deps.Curation.CountFeedback(r.Context(), chi.URLParam(r, "function"), chi.URLParam(r, "metric"))
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"count": n})
	}
}

func handleCountCurated(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		threshold, err := thresholdParam(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		n, err := deps.Curation.CountCurated(r.Context(), chi.URLParam(r, "function"), chi.URLParam(r, "metric"), threshold)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"count": n})
	}
}

func handleMetricSummary(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		threshold, err := thresholdParam(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		s, err := deps.Orchestrator.MetricSummary(r.Context(), chi.URLParam(r, "function"), chi.URLParam(r, "metric"), threshold)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

func handleResolveLatest(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := r.URL.Query().Get("targets")
		if raw == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "targets parameter is required")
			return
		}
		var targets []tsid.ID
		for _, s := range strings.Split(raw, ",") {
			id, err := tsid.Parse(strings.TrimSpace(s))
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid target id: %v", err)
				return
			}
			targets = append(targets, id)
		}

		resolved, err := deps.Curation.ResolveLatest(r.Context(), targets, chi.URLParam(r, "metric"))
		if err != nil {
			writeEngineError(w, err)
			return
		}
		// Keyed by canonical id string on the wire.
		out := make(map[string]curation.ResolvedFeedback, len(resolved))
		for id, f := range resolved {
			out[id.String()] = f
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleCurated(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		threshold, err := thresholdParam(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		maxSamples := 0
		if v := r.URL.Query().Get("max_samples"); v != "" {
			maxSamples, err = strconv.Atoi(v)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid max_samples: %v", err)
				return
			}
		}

		d, err := deps.Orchestrator.BuildDataset(r.Context(),
			chi.URLParam(r, "function"), r.URL.Query().Get("metric"), threshold, maxSamples)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func handleListInferences(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pageSize, cursor, ok := pageParams(w, r)
		if !ok {
			return
		}
		page, err := deps.Orchestrator.InferencePage(r.Context(), pageSize, cursor)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"rows":   toRowJSON(page.Rows),
			"bounds": page.Bounds,
		})
	}
}

func handleListEpisodes(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pageSize, cursor, ok := pageParams(w, r)
		if !ok {
			return
		}
		page, err := deps.Orchestrator.EpisodePage(r.Context(), pageSize, cursor)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

func handleInferenceBounds(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := deps.Pagination.InferenceBounds(r.Context())
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, b)
	}
}

func handleEpisodeBounds(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := deps.Pagination.EpisodeBounds(r.Context())
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, b)
	}
}

// pageParams reads limit/before/after. The cursor pair is validated before
// anything touches the store.
func pageParams(w http.ResponseWriter, r *http.Request) (int, pagination.Cursor, bool) {
	pageSize := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid limit: %v", err)
			return 0, pagination.Cursor{}, false
		}
		pageSize = n
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	cursor, err := pagination.FromParams(r.URL.Query().Get("before"), r.URL.Query().Get("after"))
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
		return 0, pagination.Cursor{}, false
	}
	return pageSize, cursor, true
}

func thresholdParam(r *http.Request) (*float64, error) {
	v := r.URL.Query().Get("threshold")
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid threshold: %w", err)
	}
	return &f, nil
}

// writeEngineError maps engine errors onto HTTP statuses. Usage and
// configuration errors are the caller's fault; anything else is the store's.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, config.ErrUnknownFunction),
		errors.Is(err, config.ErrUnknownMetric),
		errors.Is(err, config.ErrMissingLevel),
		errors.Is(err, curation.ErrUnsupportedMetricType),
		errors.Is(err, curation.ErrMissingThreshold),
		errors.Is(err, pagination.ErrBothCursors),
		errors.Is(err, pagination.ErrInvalidPageSize):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.Is(err, storage.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found_error", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "internal_error", "%v", err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
