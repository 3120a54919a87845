// Package pagination implements gap-free keyset pagination over the
// inference table and its episode-grouped view. Pages are always returned
// descending by id regardless of the cursor direction used to select them.
// There is no cross-call consistency: rows inserted between page fetches may
// shift positions, which callers accept.
package pagination

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kalambet/curator/internal/storage"
	"github.com/kalambet/curator/internal/tsid"
)

// ErrInvalidPageSize is the usage error for a non-positive page size.
var ErrInvalidPageSize = errors.New("page size must be positive")

// ErrDuplicateEpisode indicates the episode grouping produced the same
// episode twice in one page. That is a grouping bug, never valid data, so it
// is surfaced instead of deduplicated.
var ErrDuplicateEpisode = errors.New("duplicate episode in page")

// EpisodeAggregate is the derived per-episode view of the inference table.
// It is recomputed on every page query, never stored.
type EpisodeAggregate struct {
	EpisodeID       tsid.ID   `json:"episode_id"`
	Count           int64     `json:"count"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	LastInferenceID tsid.ID   `json:"last_inference_id"`
}

// Bounds holds the minimum and maximum identifier currently present, which
// callers use to detect a pagination edge.
type Bounds struct {
	FirstID tsid.ID `json:"first_id"`
	LastID  tsid.ID `json:"last_id"`
}

// Engine answers pagination queries against an injected store.
type Engine struct {
	q storage.Querier
}

// New creates a pagination engine over the given store view.
func New(q storage.Querier) *Engine {
	return &Engine{q: q}
}

// PageInferences returns up to pageSize inference rows selected by the
// cursor, descending by id.
func (e *Engine) PageInferences(ctx context.Context, pageSize int, c Cursor) ([]storage.InferenceRow, error) {
	if pageSize <= 0 {
		return nil, ErrInvalidPageSize
	}

	query := queryInferencesFirst
	args := []any{sql.Named("page_size", pageSize)}
	reverse := false
	if id, ok := c.BeforeID(); ok {
		query = queryInferencesBefore
		args = append(args, sql.Named("cursor", id.Bytes()))
	} else if id, ok := c.AfterID(); ok {
		query = queryInferencesAfter
		args = append(args, sql.Named("cursor", id.Bytes()))
		reverse = true
	}

	rows, err := e.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &storage.QueryError{Op: "page inferences", Err: err}
	}
	defer rows.Close()

	var page []storage.InferenceRow
	for rows.Next() {
		var r storage.InferenceRow
		var id, episodeID []byte
		if err := rows.Scan(&id, &r.FunctionName, &r.VariantName, &episodeID, &r.Input, &r.Output); err != nil {
			return nil, &storage.QueryError{Op: "page inferences", Err: err}
		}
		if r.ID, err = tsid.FromBytes(id); err != nil {
			return nil, &storage.QueryError{Op: "page inferences", Err: err}
		}
		if r.EpisodeID, err = tsid.FromBytes(episodeID); err != nil {
			return nil, &storage.QueryError{Op: "page inferences", Err: err}
		}
		page = append(page, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &storage.QueryError{Op: "page inferences", Err: err}
	}

	// After(X) selects ascending to find the nearest page above X; flip it
	// so the caller always sees descending order.
	if reverse {
		for i, j := 0, len(page)-1; i < j; i, j = i+1, j-1 {
			page[i], page[j] = page[j], page[i]
		}
	}
	return page, nil
}

// PageEpisodes returns up to pageSize episode aggregates selected by the
// cursor, descending by last inference id.
func (e *Engine) PageEpisodes(ctx context.Context, pageSize int, c Cursor) ([]EpisodeAggregate, error) {
	if pageSize <= 0 {
		return nil, ErrInvalidPageSize
	}

	query := queryEpisodesFirst
	args := []any{sql.Named("page_size", pageSize)}
	reverse := false
	if id, ok := c.BeforeID(); ok {
		query = queryEpisodesBefore
		args = append(args, sql.Named("cursor", id.Bytes()))
	} else if id, ok := c.AfterID(); ok {
		query = queryEpisodesAfter
		args = append(args, sql.Named("cursor", id.Bytes()))
		reverse = true
	}

	rows, err := e.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &storage.QueryError{Op: "page episodes", Err: err}
	}
	defer rows.Close()

	var page []EpisodeAggregate
	for rows.Next() {
		var agg EpisodeAggregate
		var episodeID, firstID, lastID []byte
		if err := rows.Scan(&episodeID, &agg.Count, &firstID, &lastID); err != nil {
			return nil, &storage.QueryError{Op: "page episodes", Err: err}
		}
		if agg.EpisodeID, err = tsid.FromBytes(episodeID); err != nil {
			return nil, &storage.QueryError{Op: "page episodes", Err: err}
		}
		first, err := tsid.FromBytes(firstID)
		if err != nil {
			return nil, &storage.QueryError{Op: "page episodes", Err: err}
		}
		if agg.LastInferenceID, err = tsid.FromBytes(lastID); err != nil {
			return nil, &storage.QueryError{Op: "page episodes", Err: err}
		}
		agg.StartTime = first.Timestamp()
		agg.EndTime = agg.LastInferenceID.Timestamp()
		page = append(page, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, &storage.QueryError{Op: "page episodes", Err: err}
	}

	if reverse {
		for i, j := 0, len(page)-1; i < j; i, j = i+1, j-1 {
			page[i], page[j] = page[j], page[i]
		}
	}

	// GROUP BY guarantees distinct episodes; seeing one twice means the
	// grouping query is broken and the page cannot be trusted.
	seen := make(map[tsid.ID]struct{}, len(page))
	for _, agg := range page {
		if _, dup := seen[agg.EpisodeID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEpisode, agg.EpisodeID)
		}
		seen[agg.EpisodeID] = struct{}{}
	}
	return page, nil
}

// InferenceBounds returns the minimum and maximum inference id currently
// present. Returns storage.ErrNotFound when the table is empty.
func (e *Engine) InferenceBounds(ctx context.Context) (Bounds, error) {
	return e.bounds(ctx, "inference bounds", queryInferenceBounds)
}

// EpisodeBounds returns the bounds of the episode view, measured by each
// episode's last inference id. Returns storage.ErrNotFound when empty.
func (e *Engine) EpisodeBounds(ctx context.Context) (Bounds, error) {
	return e.bounds(ctx, "episode bounds", queryEpisodeBounds)
}

func (e *Engine) bounds(ctx context.Context, op, query string) (Bounds, error) {
	var first, last []byte
	if err := e.q.QueryRowContext(ctx, query).Scan(&first, &last); err != nil {
		return Bounds{}, &storage.QueryError{Op: op, Err: err}
	}
	if first == nil || last == nil {
		return Bounds{}, storage.ErrNotFound
	}

	var b Bounds
	var err error
	if b.FirstID, err = tsid.FromBytes(first); err != nil {
		return Bounds{}, &storage.QueryError{Op: op, Err: err}
	}
	if b.LastID, err = tsid.FromBytes(last); err != nil {
		return Bounds{}, &storage.QueryError{Op: op, Err: err}
	}
	return b, nil
}
