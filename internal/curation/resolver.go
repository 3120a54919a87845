package curation

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/curator/internal/config"
	"github.com/kalambet/curator/internal/storage"
	"github.com/kalambet/curator/internal/tsid"
)

// ResolvedFeedback is the current value of one metric for one target after
// deduplicating repeated feedback events.
type ResolvedFeedback struct {
	FeedbackID tsid.ID   `json:"feedback_id"`
	TargetID   tsid.ID   `json:"target_id"`
	Value      any       `json:"value"` // bool for boolean metrics, float64 for float metrics
	Timestamp  time.Time `json:"timestamp"`
}

// Resolver query templates. The table slot is filled from the metric type
// enum; target ids and the metric name are bound parameters.
const tmplResolveLatest = `
WITH latest AS (
    SELECT id, target_id, value,
           ROW_NUMBER() OVER (PARTITION BY target_id ORDER BY id DESC) AS rn
    FROM %[1]s
    WHERE metric_name = :metric_name AND target_id IN (%[2]s)
)
SELECT id, target_id, value FROM latest WHERE rn = 1
`

// ResolveLatest returns, for each requested target that has any feedback for
// the metric, the single most recent feedback record. "Most recent" is
// ordered by feedback id: ids are UUIDv7, so this equals timestamp order,
// and two records sharing a millisecond fall back deterministically to the
// id's remaining bits. Targets without feedback are absent from the result.
func (e *Engine) ResolveLatest(ctx context.Context, targetIDs []tsid.ID, metricName string) (map[tsid.ID]ResolvedFeedback, error) {
	m, err := e.catalog.Metric(metricName)
	if err != nil {
		return nil, err
	}

	var table string
	switch m.Type {
	case config.MetricBoolean:
		table = "boolean_feedback"
	case config.MetricFloat:
		table = "float_feedback"
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMetricType, m.Type)
	}

	if len(targetIDs) == 0 {
		return map[tsid.ID]ResolvedFeedback{}, nil
	}

	placeholders := make([]string, len(targetIDs))
	args := make([]any, 0, len(targetIDs)+1)
	args = append(args, sql.Named("metric_name", metricName))
	for i, id := range targetIDs {
		name := fmt.Sprintf("t%d", i)
		placeholders[i] = ":" + name
		args = append(args, sql.Named(name, id.Bytes()))
	}

	query := fmt.Sprintf(tmplResolveLatest, table, strings.Join(placeholders, ", "))
	rows, err := e.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &storage.QueryError{Op: "resolve latest feedback", Err: err}
	}
	defer rows.Close()

	out := make(map[tsid.ID]ResolvedFeedback)
	for rows.Next() {
		var fid, target []byte
		var resolved ResolvedFeedback
		switch m.Type {
		case config.MetricBoolean:
			var v bool
			if err := rows.Scan(&fid, &target, &v); err != nil {
				return nil, &storage.QueryError{Op: "resolve latest feedback", Err: err}
			}
			resolved.Value = v
		case config.MetricFloat:
			var v float64
			if err := rows.Scan(&fid, &target, &v); err != nil {
				return nil, &storage.QueryError{Op: "resolve latest feedback", Err: err}
			}
			resolved.Value = v
		}
		if resolved.FeedbackID, err = tsid.FromBytes(fid); err != nil {
			return nil, &storage.QueryError{Op: "resolve latest feedback", Err: err}
		}
		if resolved.TargetID, err = tsid.FromBytes(target); err != nil {
			return nil, &storage.QueryError{Op: "resolve latest feedback", Err: err}
		}
		resolved.Timestamp = resolved.FeedbackID.Timestamp()
		out[resolved.TargetID] = resolved
	}
	if err := rows.Err(); err != nil {
		return nil, &storage.QueryError{Op: "resolve latest feedback", Err: err}
	}
	return out, nil
}
