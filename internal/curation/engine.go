// Package curation selects the subset of a function's inferences whose
// feedback meets a metric's quality bar, for building training and
// evaluation datasets. It answers counts (total, feedback coverage, curated)
// and retrieves the curated rows themselves, with demonstration outputs
// substituted where the metric calls for it.
package curation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kalambet/curator/internal/config"
	"github.com/kalambet/curator/internal/parse"
	"github.com/kalambet/curator/internal/storage"
	"github.com/kalambet/curator/internal/tsid"
)

// Usage errors, rejected before any store call.
var (
	ErrUnsupportedMetricType = errors.New("metric type does not support curation")
	ErrMissingThreshold      = errors.New("float metric curation requires a threshold")
)

// Engine answers curation queries for the functions and metrics the catalog
// defines, against an injected store.
type Engine struct {
	q       storage.Querier
	catalog *config.Catalog
}

// New creates a curation engine.
func New(q storage.Querier, catalog *config.Catalog) *Engine {
	return &Engine{q: q, catalog: catalog}
}

// CountInferences returns the total number of inference rows for a function.
func (e *Engine) CountInferences(ctx context.Context, functionName string) (int64, error) {
	if _, err := e.catalog.Function(functionName); err != nil {
		return 0, err
	}
	return e.count(ctx, "count inferences", queryCountInferences,
		sql.Named("function_name", functionName))
}

// CountFeedback returns the number of distinct targets (inferences or
// episodes, per the metric's level) that have at least one feedback record
// for the metric.
func (e *Engine) CountFeedback(ctx context.Context, functionName, metricName string) (int64, error) {
	if _, err := e.catalog.Function(functionName); err != nil {
		return 0, err
	}
	m, err := e.catalog.Metric(metricName)
	if err != nil {
		return 0, err
	}

	switch m.Type {
	case config.MetricBoolean:
		return e.count(ctx, "count boolean feedback",
			fmt.Sprintf(tmplCountMetricFeedback, "boolean_feedback", joinColumn(m.Level)),
			sql.Named("function_name", functionName), sql.Named("metric_name", metricName))
	case config.MetricFloat:
		return e.count(ctx, "count float feedback",
			fmt.Sprintf(tmplCountMetricFeedback, "float_feedback", joinColumn(m.Level)),
			sql.Named("function_name", functionName), sql.Named("metric_name", metricName))
	case config.MetricDemonstration:
		return e.count(ctx, "count demonstration feedback", queryCountDemonstrationFeedback,
			sql.Named("function_name", functionName))
	case config.MetricComment:
		return e.count(ctx, "count comment feedback",
			fmt.Sprintf(tmplCountCommentFeedback, joinColumn(m.Level)),
			sql.Named("function_name", functionName))
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedMetricType, m.Type)
	}
}

// CountCurated returns the number of inference rows passing the metric's
// curation predicate. An explicit threshold overrides the one from the
// metric config.
func (e *Engine) CountCurated(ctx context.Context, functionName, metricName string, threshold *float64) (int64, error) {
	if _, err := e.catalog.Function(functionName); err != nil {
		return 0, err
	}
	m, err := e.catalog.Metric(metricName)
	if err != nil {
		return 0, err
	}

	switch m.Type {
	case config.MetricBoolean:
		return e.count(ctx, "count curated (boolean)",
			fmt.Sprintf(tmplCountCuratedBoolean, joinColumn(m.Level)),
			sql.Named("function_name", functionName),
			sql.Named("metric_name", metricName),
			sql.Named("good", goodBooleanValue(m.Optimize)))
	case config.MetricFloat:
		th, err := resolveThreshold(m, threshold)
		if err != nil {
			return 0, err
		}
		return e.count(ctx, "count curated (float)",
			fmt.Sprintf(tmplCountCuratedFloat, joinColumn(m.Level), comparison(m.Optimize)),
			sql.Named("function_name", functionName),
			sql.Named("metric_name", metricName),
			sql.Named("threshold", th))
	case config.MetricDemonstration:
		return e.count(ctx, "count curated (demonstration)", queryCountCuratedDemonstration,
			sql.Named("function_name", functionName))
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedMetricType, m.Type)
	}
}

// CuratedInferences returns parsed inference rows passing the metric's
// curation predicate, newest first, up to maxSamples (non-positive means
// unlimited). With an empty metricName no filtering is applied. For
// demonstration metrics each returned row's output is the demonstration
// value, not the original model output.
//
// Rows are parsed eagerly: a stored payload that fails validation fails the
// whole call with a parse error naming the offending row.
func (e *Engine) CuratedInferences(ctx context.Context, functionName, metricName string, threshold *float64, maxSamples int) ([]parse.Inference, error) {
	fn, err := e.catalog.Function(functionName)
	if err != nil {
		return nil, err
	}

	limit := int64(-1) // SQLite treats a negative LIMIT as "no limit".
	if maxSamples > 0 {
		limit = int64(maxSamples)
	}

	if metricName == "" {
		return e.inferences(ctx, "list inferences", fn, queryAllInferences,
			sql.Named("function_name", functionName), sql.Named("max_samples", limit))
	}

	m, err := e.catalog.Metric(metricName)
	if err != nil {
		return nil, err
	}

	switch m.Type {
	case config.MetricBoolean:
		return e.inferences(ctx, "curated inferences (boolean)", fn,
			fmt.Sprintf(tmplCuratedBoolean, joinColumn(m.Level)),
			sql.Named("function_name", functionName),
			sql.Named("metric_name", metricName),
			sql.Named("good", goodBooleanValue(m.Optimize)),
			sql.Named("max_samples", limit))
	case config.MetricFloat:
		th, err := resolveThreshold(m, threshold)
		if err != nil {
			return nil, err
		}
		return e.inferences(ctx, "curated inferences (float)", fn,
			fmt.Sprintf(tmplCuratedFloat, joinColumn(m.Level), comparison(m.Optimize)),
			sql.Named("function_name", functionName),
			sql.Named("metric_name", metricName),
			sql.Named("threshold", th),
			sql.Named("max_samples", limit))
	case config.MetricDemonstration:
		return e.inferences(ctx, "curated inferences (demonstration)", fn, queryCuratedDemonstration,
			sql.Named("function_name", functionName),
			sql.Named("max_samples", limit))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMetricType, m.Type)
	}
}

func (e *Engine) count(ctx context.Context, op, query string, args ...any) (int64, error) {
	var n int64
	if err := e.q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, &storage.QueryError{Op: op, Err: err}
	}
	return n, nil
}

func (e *Engine) inferences(ctx context.Context, op string, fn config.FunctionConfig, query string, args ...any) ([]parse.Inference, error) {
	rows, err := e.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &storage.QueryError{Op: op, Err: err}
	}
	defer rows.Close()

	var out []parse.Inference
	for rows.Next() {
		var r storage.InferenceRow
		var id, episodeID []byte
		if err := rows.Scan(&id, &r.FunctionName, &r.VariantName, &episodeID, &r.Input, &r.Output); err != nil {
			return nil, &storage.QueryError{Op: op, Err: err}
		}
		if r.ID, err = tsid.FromBytes(id); err != nil {
			return nil, &storage.QueryError{Op: op, Err: err}
		}
		if r.EpisodeID, err = tsid.FromBytes(episodeID); err != nil {
			return nil, &storage.QueryError{Op: op, Err: err}
		}

		inf, err := parse.Row(fn, r)
		if err != nil {
			return nil, err
		}
		out = append(out, inf)
	}
	if err := rows.Err(); err != nil {
		return nil, &storage.QueryError{Op: op, Err: err}
	}
	return out, nil
}

// goodBooleanValue maps the optimize direction to the passing boolean value:
// maximizing keeps true, minimizing keeps false.
func goodBooleanValue(optimize config.OptimizeDirection) bool {
	return optimize == config.OptimizeMax
}

func resolveThreshold(m config.MetricConfig, override *float64) (float64, error) {
	if override != nil {
		return *override, nil
	}
	if m.Threshold != nil {
		return *m.Threshold, nil
	}
	return 0, ErrMissingThreshold
}
