package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/curator/internal/config"
	"github.com/kalambet/curator/internal/curation"
	"github.com/kalambet/curator/internal/pagination"
	"github.com/kalambet/curator/internal/query"
	"github.com/kalambet/curator/internal/storage"
	"github.com/kalambet/curator/internal/tsid"
)

const testToken = "test-token"

const testCatalog = `
functions:
  draft_reply:
    output: chat
metrics:
  exact_match:
    type: boolean
    level: inference
    optimize: max
  score:
    type: float
    level: inference
    optimize: max
    threshold: 0.8
`

type fixture struct {
	store   *storage.Store
	handler http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	catalog, err := config.ParseCatalog([]byte(testCatalog))
	require.NoError(t, err)

	c := curation.New(store.Querier(), catalog)
	p := pagination.New(store.Querier())
	deps := Deps{
		Curation:     c,
		Pagination:   p,
		Orchestrator: query.New(c, p),
		Token:        testToken,
	}
	return &fixture{store: store, handler: NewHandler(deps)}
}

func newID(t *testing.T) tsid.ID {
	t.Helper()
	id, err := tsid.New()
	require.NoError(t, err)
	return id
}

func (f *fixture) addInference(t *testing.T, episode tsid.ID) tsid.ID {
	t.Helper()
	id := newID(t)
	require.NoError(t, f.store.InsertInference(storage.InferenceRow{
		ID:           id,
		FunctionName: "draft_reply",
		VariantName:  "baseline",
		EpisodeID:    episode,
		Input:        `{"messages":[{"role":"user","content":"hi"}]}`,
		Output:       `[{"type":"text","text":"hello"}]`,
	}))
	return id
}

func (f *fixture) addBoolean(t *testing.T, target tsid.ID, value bool) {
	t.Helper()
	require.NoError(t, f.store.InsertBooleanFeedback(storage.BooleanFeedback{
		ID:         newID(t),
		MetricName: "exact_match",
		TargetID:   target,
		Value:      value,
	}))
}

// get performs an authenticated GET and decodes the JSON body into out.
func (f *fixture) get(t *testing.T, path string, out any) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/inferences", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCountEndpoints(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		id := f.addInference(t, newID(t))
		f.addBoolean(t, id, i < 2)
	}

	var body struct {
		Count int64 `json:"count"`
	}
	rec := f.get(t, "/functions/draft_reply/inferences/count", &body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(5), body.Count)

	rec = f.get(t, "/functions/draft_reply/metrics/exact_match/feedback/count", &body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(5), body.Count)

	rec = f.get(t, "/functions/draft_reply/metrics/exact_match/curated/count", &body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2), body.Count)
}

func TestMetricSummary(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 4; i++ {
		id := f.addInference(t, newID(t))
		f.addBoolean(t, id, i%2 == 0)
	}

	var s query.MetricSummary
	rec := f.get(t, "/functions/draft_reply/metrics/exact_match/summary", &s)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(4), s.TotalInferences)
	assert.Equal(t, int64(4), s.FeedbackCount)
	assert.Equal(t, int64(2), s.CuratedCount)
}

func TestUnknownMetricIsBadRequest(t *testing.T) {
	f := newFixture(t)
	rec := f.get(t, "/functions/draft_reply/metrics/nope/feedback/count", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid_request_error", body.Error.Type)
}

func TestCuratedDataset(t *testing.T) {
	f := newFixture(t)
	var good tsid.ID
	for i := 0; i < 3; i++ {
		id := f.addInference(t, newID(t))
		f.addBoolean(t, id, i == 2)
		if i == 2 {
			good = id
		}
	}

	var d query.Dataset
	rec := f.get(t, "/functions/draft_reply/curated?metric=exact_match", &d)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), d.CuratedCount)
	require.Len(t, d.Rows, 1)
	assert.Equal(t, good, d.Rows[0].ID)
}

func TestCuratedInvalidThreshold(t *testing.T) {
	f := newFixture(t)
	rec := f.get(t, "/functions/draft_reply/curated?metric=score&threshold=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListInferencesPaging(t *testing.T) {
	f := newFixture(t)
	ids := make([]tsid.ID, 6)
	for i := range ids {
		ids[i] = f.addInference(t, newID(t))
	}

	var page struct {
		Rows []struct {
			ID tsid.ID `json:"id"`
		} `json:"rows"`
		Bounds *pagination.Bounds `json:"bounds"`
	}
	rec := f.get(t, "/inferences?limit=4", &page)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, page.Rows, 4)
	// Newest first.
	assert.Equal(t, ids[5], page.Rows[0].ID)
	require.NotNil(t, page.Bounds)
	assert.Equal(t, ids[0], page.Bounds.FirstID)
	assert.Equal(t, ids[5], page.Bounds.LastID)

	last := page.Rows[3].ID
	rec = f.get(t, "/inferences?limit=4&before="+last.String(), &page)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, page.Rows, 2)
	assert.Equal(t, ids[1], page.Rows[0].ID)
	assert.Equal(t, ids[0], page.Rows[1].ID)
}

func TestListInferencesBothCursors(t *testing.T) {
	f := newFixture(t)
	id := newID(t)
	rec := f.get(t, "/inferences?before="+id.String()+"&after="+id.String(), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListEpisodes(t *testing.T) {
	f := newFixture(t)
	ep1, ep2 := newID(t), newID(t)
	f.addInference(t, ep1)
	f.addInference(t, ep2)
	f.addInference(t, ep2)

	var page query.EpisodePage
	rec := f.get(t, "/episodes", &page)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, page.Episodes, 2)
	assert.Equal(t, ep2, page.Episodes[0].EpisodeID)
	assert.Equal(t, int64(2), page.Episodes[0].Count)
}

func TestBoundsEmpty(t *testing.T) {
	f := newFixture(t)
	rec := f.get(t, "/inferences/bounds", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResolveLatest(t *testing.T) {
	f := newFixture(t)
	id := f.addInference(t, newID(t))
	f.addBoolean(t, id, false)
	f.addBoolean(t, id, true)

	var out map[string]struct {
		Value any `json:"value"`
	}
	rec := f.get(t, "/functions/draft_reply/metrics/exact_match/feedback/latest?targets="+id.String(), &out)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, out, id.String())
	assert.Equal(t, true, out[id.String()].Value)
}

func TestResolveLatestMissingTargets(t *testing.T) {
	f := newFixture(t)
	rec := f.get(t, "/functions/draft_reply/metrics/exact_match/feedback/latest", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
