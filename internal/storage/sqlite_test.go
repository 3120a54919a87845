package storage

import (
	"testing"

	"github.com/kalambet/curator/internal/tsid"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustID(t *testing.T) tsid.ID {
	t.Helper()
	id, err := tsid.New()
	if err != nil {
		t.Fatalf("tsid.New: %v", err)
	}
	return id
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestIndexesExist verifies the migration creates the expected indexes.
func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{
		"idx_inference_function",
		"idx_inference_episode",
		"idx_boolean_feedback_target",
		"idx_float_feedback_target",
		"idx_demonstration_inference",
		"idx_comment_feedback_target",
	}
	for _, idx := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master for %q: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %q not found in sqlite_master", idx)
		}
	}
}

// TestInsertInferenceRoundTrip inserts a row and reads it back by id.
func TestInsertInferenceRoundTrip(t *testing.T) {
	s := openTestStore(t)

	row := InferenceRow{
		ID:           mustID(t),
		FunctionName: "draft_reply",
		VariantName:  "baseline",
		EpisodeID:    mustID(t),
		Input:        `{"messages":[]}`,
		Output:       `[{"type":"text","text":"hi"}]`,
	}
	if err := s.InsertInference(row); err != nil {
		t.Fatalf("InsertInference: %v", err)
	}

	var fn, variant, input, output string
	var episodeID []byte
	err := s.db.QueryRow(`SELECT function_name, variant_name, episode_id, input, output FROM inference WHERE id = ?`, row.ID.Bytes()).
		Scan(&fn, &variant, &episodeID, &input, &output)
	if err != nil {
		t.Fatalf("SELECT inference: %v", err)
	}

	got, err := tsid.FromBytes(episodeID)
	if err != nil {
		t.Fatalf("decoding episode id: %v", err)
	}
	if fn != row.FunctionName || variant != row.VariantName || input != row.Input || output != row.Output || got != row.EpisodeID {
		t.Errorf("round-trip mismatch: got fn=%q variant=%q episode=%s", fn, variant, got)
	}
}

// TestIDBytesSortAsTime verifies the BLOB encoding preserves creation order,
// which every keyset query depends on.
func TestIDBytesSortAsTime(t *testing.T) {
	s := openTestStore(t)

	var want []string
	for i := 0; i < 20; i++ {
		row := InferenceRow{
			ID:           mustID(t),
			FunctionName: "f",
			VariantName:  "v",
			EpisodeID:    mustID(t),
			Input:        "{}",
			Output:       "[]",
		}
		if err := s.InsertInference(row); err != nil {
			t.Fatalf("InsertInference: %v", err)
		}
		want = append(want, row.ID.String())
	}

	rows, err := s.db.Query("SELECT id FROM inference ORDER BY id ASC")
	if err != nil {
		t.Fatalf("SELECT ids: %v", err)
	}
	defer rows.Close()

	var got []string
	for rows.Next() {
		var b []byte
		if err := rows.Scan(&b); err != nil {
			t.Fatalf("scan: %v", err)
		}
		id, err := tsid.FromBytes(b)
		if err != nil {
			t.Fatalf("decoding id: %v", err)
		}
		got = append(got, id.String())
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows: %v", err)
	}

	if len(got) != len(want) {
		t.Fatalf("row count: got %d want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("id order diverges at %d: got %s want %s", i, got[i], want[i])
		}
	}
}

// TestFeedbackInserts exercises all four feedback tables.
func TestFeedbackInserts(t *testing.T) {
	s := openTestStore(t)

	target := mustID(t)
	if err := s.InsertBooleanFeedback(BooleanFeedback{ID: mustID(t), TargetID: target, MetricName: "exact_match", Value: true}); err != nil {
		t.Fatalf("InsertBooleanFeedback: %v", err)
	}
	if err := s.InsertFloatFeedback(FloatFeedback{ID: mustID(t), TargetID: target, MetricName: "score", Value: 0.75}); err != nil {
		t.Fatalf("InsertFloatFeedback: %v", err)
	}
	if err := s.InsertDemonstrationFeedback(DemonstrationFeedback{ID: mustID(t), InferenceID: target, Value: `[{"type":"text","text":"better"}]`}); err != nil {
		t.Fatalf("InsertDemonstrationFeedback: %v", err)
	}
	if err := s.InsertCommentFeedback(CommentFeedback{ID: mustID(t), TargetID: target, Value: "looks wrong"}); err != nil {
		t.Fatalf("InsertCommentFeedback: %v", err)
	}

	for _, table := range []string{"boolean_feedback", "float_feedback", "demonstration_feedback", "comment_feedback"} {
		var count int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
			t.Fatalf("counting %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("%s: got %d rows, want 1", table, count)
		}
	}
}
