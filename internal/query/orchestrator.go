// Package query composes the curation and pagination engines into the
// operations callers actually invoke. Sub-queries with no data dependency on
// each other run concurrently; a failing sub-query does not cancel its
// siblings, it just decides the call's error. The layer performs no retries
// and enforces no timeout — cancellation is whatever the caller's context
// carries.
package query

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/curator/internal/curation"
	"github.com/kalambet/curator/internal/pagination"
	"github.com/kalambet/curator/internal/parse"
	"github.com/kalambet/curator/internal/storage"
)

// Orchestrator answers the composite read operations of the query layer.
type Orchestrator struct {
	curation   *curation.Engine
	pagination *pagination.Engine
}

// New creates an orchestrator over the two engines.
func New(c *curation.Engine, p *pagination.Engine) *Orchestrator {
	return &Orchestrator{curation: c, pagination: p}
}

// MetricSummary is the curation funnel for one (function, metric) pair.
type MetricSummary struct {
	FunctionName    string `json:"function_name"`
	MetricName      string `json:"metric_name"`
	TotalInferences int64  `json:"total_inferences"`
	FeedbackCount   int64  `json:"feedback_count"`
	CuratedCount    int64  `json:"curated_count"`
}

// MetricSummary runs the three independent counts concurrently.
func (o *Orchestrator) MetricSummary(ctx context.Context, functionName, metricName string, threshold *float64) (MetricSummary, error) {
	s := MetricSummary{FunctionName: functionName, MetricName: metricName}

	var g errgroup.Group
	g.Go(func() error {
		n, err := o.curation.CountInferences(ctx, functionName)
		s.TotalInferences = n
		return err
	})
	g.Go(func() error {
		n, err := o.curation.CountFeedback(ctx, functionName, metricName)
		s.FeedbackCount = n
		return err
	})
	g.Go(func() error {
		n, err := o.curation.CountCurated(ctx, functionName, metricName, threshold)
		s.CuratedCount = n
		return err
	})
	if err := g.Wait(); err != nil {
		return MetricSummary{}, err
	}
	return s, nil
}

// InferencePage is one page of the inference table plus the table's current
// bounds. Bounds is nil when the table is empty.
type InferencePage struct {
	Rows   []storage.InferenceRow `json:"rows"`
	Bounds *pagination.Bounds     `json:"bounds,omitempty"`
}

// InferencePage fetches the page and the table bounds concurrently.
func (o *Orchestrator) InferencePage(ctx context.Context, pageSize int, cursor pagination.Cursor) (InferencePage, error) {
	var page InferencePage

	var g errgroup.Group
	g.Go(func() error {
		rows, err := o.pagination.PageInferences(ctx, pageSize, cursor)
		page.Rows = rows
		return err
	})
	g.Go(func() error {
		b, err := o.pagination.InferenceBounds(ctx)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		page.Bounds = &b
		return nil
	})
	if err := g.Wait(); err != nil {
		return InferencePage{}, err
	}
	return page, nil
}

// EpisodePage is one page of the episode view plus its bounds.
type EpisodePage struct {
	Episodes []pagination.EpisodeAggregate `json:"episodes"`
	Bounds   *pagination.Bounds            `json:"bounds,omitempty"`
}

// EpisodePage fetches the episode page and bounds concurrently.
func (o *Orchestrator) EpisodePage(ctx context.Context, pageSize int, cursor pagination.Cursor) (EpisodePage, error) {
	var page EpisodePage

	var g errgroup.Group
	g.Go(func() error {
		eps, err := o.pagination.PageEpisodes(ctx, pageSize, cursor)
		page.Episodes = eps
		return err
	})
	g.Go(func() error {
		b, err := o.pagination.EpisodeBounds(ctx)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		page.Bounds = &b
		return nil
	})
	if err := g.Wait(); err != nil {
		return EpisodePage{}, err
	}
	return page, nil
}

// Dataset is a curated training/evaluation dataset for one function. The
// count reflects all rows passing the predicate even when MaxSamples
// truncated the returned rows.
type Dataset struct {
	FunctionName string            `json:"function_name"`
	MetricName   string            `json:"metric_name,omitempty"`
	CuratedCount int64             `json:"curated_count"`
	Rows         []parse.Inference `json:"rows"`
}

// BuildDataset fetches the curated rows and the full curated count
// concurrently. With an empty metricName the dataset is the function's
// unfiltered inferences and CuratedCount is the total row count.
func (o *Orchestrator) BuildDataset(ctx context.Context, functionName, metricName string, threshold *float64, maxSamples int) (Dataset, error) {
	d := Dataset{FunctionName: functionName, MetricName: metricName}

	var g errgroup.Group
	g.Go(func() error {
		rows, err := o.curation.CuratedInferences(ctx, functionName, metricName, threshold, maxSamples)
		d.Rows = rows
		return err
	})
	g.Go(func() error {
		var n int64
		var err error
		if metricName == "" {
			n, err = o.curation.CountInferences(ctx, functionName)
		} else {
			n, err = o.curation.CountCurated(ctx, functionName, metricName, threshold)
		}
		d.CuratedCount = n
		return err
	})
	if err := g.Wait(); err != nil {
		return Dataset{}, err
	}
	return d, nil
}
