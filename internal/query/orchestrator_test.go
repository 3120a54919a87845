package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/curator/internal/config"
	"github.com/kalambet/curator/internal/curation"
	"github.com/kalambet/curator/internal/pagination"
	"github.com/kalambet/curator/internal/storage"
	"github.com/kalambet/curator/internal/tsid"
)

const testCatalog = `
functions:
  draft_reply:
    output: chat
metrics:
  exact_match:
    type: boolean
    level: inference
    optimize: max
`

type fixture struct {
	store *storage.Store
	orch  *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	catalog, err := config.ParseCatalog([]byte(testCatalog))
	require.NoError(t, err)

	orch := New(
		curation.New(store.Querier(), catalog),
		pagination.New(store.Querier()),
	)
	return &fixture{store: store, orch: orch}
}

func newID(t *testing.T) tsid.ID {
	t.Helper()
	id, err := tsid.New()
	require.NoError(t, err)
	return id
}

func (f *fixture) seed(t *testing.T, n int, goodEvery int) []tsid.ID {
	t.Helper()
	ids := make([]tsid.ID, n)
	for i := range ids {
		ids[i] = newID(t)
		require.NoError(t, f.store.InsertInference(storage.InferenceRow{
			ID:           ids[i],
			FunctionName: "draft_reply",
			VariantName:  "baseline",
			EpisodeID:    newID(t),
			Input:        `{"messages":[]}`,
			Output:       `[{"type":"text","text":"ok"}]`,
		}))
		require.NoError(t, f.store.InsertBooleanFeedback(storage.BooleanFeedback{
			ID:         newID(t),
			TargetID:   ids[i],
			MetricName: "exact_match",
			Value:      i%goodEvery == 0,
		}))
	}
	return ids
}

func TestMetricSummary(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 20, 4) // every 4th is good: 5 curated

	s, err := f.orch.MetricSummary(context.Background(), "draft_reply", "exact_match", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(20), s.TotalInferences)
	assert.Equal(t, int64(20), s.FeedbackCount)
	assert.Equal(t, int64(5), s.CuratedCount)
}

func TestMetricSummaryPropagatesErrors(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.MetricSummary(context.Background(), "nope", "exact_match", nil)
	require.ErrorIs(t, err, config.ErrUnknownFunction)

	_, err = f.orch.MetricSummary(context.Background(), "draft_reply", "nope", nil)
	require.ErrorIs(t, err, config.ErrUnknownMetric)
}

func TestInferencePageWithBounds(t *testing.T) {
	f := newFixture(t)
	ids := f.seed(t, 6, 2)

	page, err := f.orch.InferencePage(context.Background(), 4, pagination.None())
	require.NoError(t, err)
	require.Len(t, page.Rows, 4)
	require.NotNil(t, page.Bounds)
	assert.Equal(t, ids[0], page.Bounds.FirstID)
	assert.Equal(t, ids[5], page.Bounds.LastID)
}

func TestInferencePageEmptyTable(t *testing.T) {
	f := newFixture(t)

	page, err := f.orch.InferencePage(context.Background(), 4, pagination.None())
	require.NoError(t, err)
	assert.Empty(t, page.Rows)
	assert.Nil(t, page.Bounds)
}

func TestEpisodePageWithBounds(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 5, 2)

	page, err := f.orch.EpisodePage(context.Background(), 3, pagination.None())
	require.NoError(t, err)
	require.Len(t, page.Episodes, 3)
	require.NotNil(t, page.Bounds)
}

func TestBuildDataset(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 10, 2) // 5 curated

	d, err := f.orch.BuildDataset(context.Background(), "draft_reply", "exact_match", nil, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(5), d.CuratedCount, "count reflects all curated rows")
	assert.Len(t, d.Rows, 3, "rows are truncated to maxSamples")
}

func TestBuildDatasetUnfiltered(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 4, 2)

	d, err := f.orch.BuildDataset(context.Background(), "draft_reply", "", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(4), d.CuratedCount)
	assert.Len(t, d.Rows, 4)
}
