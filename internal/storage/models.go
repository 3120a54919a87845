package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/kalambet/curator/internal/tsid"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// QueryError wraps a failed store call with the logical operation that issued
// it. The original cause is preserved for errors.Is/As.
type QueryError struct {
	Op  string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("store query %q: %v", e.Op, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// InferenceRow is one model inference as stored: input and output stay in
// their string-encoded form until the caller parses them against the
// function's declared output shape. Rows are written once by the gateway and
// never updated.
type InferenceRow struct {
	ID           tsid.ID `json:"id"`
	FunctionName string  `json:"function_name"`
	VariantName  string  `json:"variant_name"`
	EpisodeID    tsid.ID `json:"episode_id"`
	Input        string  `json:"input"`
	Output       string  `json:"output"`
}

// Timestamp derives the creation time from the row id.
func (r InferenceRow) Timestamp() time.Time {
	return r.ID.Timestamp()
}

// BooleanFeedback is one boolean metric observation. TargetID is an inference
// id or an episode id depending on the metric's level. Multiple observations
// may exist per (target, metric); readers resolve the latest by feedback id.
type BooleanFeedback struct {
	ID         tsid.ID
	TargetID   tsid.ID
	MetricName string
	Value      bool
}

// FloatFeedback is one float metric observation.
type FloatFeedback struct {
	ID         tsid.ID
	TargetID   tsid.ID
	MetricName string
	Value      float64
}

// DemonstrationFeedback is a human-supplied replacement output for one
// inference. Demonstrations always target inferences, never episodes.
type DemonstrationFeedback struct {
	ID          tsid.ID
	InferenceID tsid.ID
	Value       string
}

// CommentFeedback is free-form reviewer text attached to an inference or
// episode.
type CommentFeedback struct {
	ID       tsid.ID
	TargetID tsid.ID
	Value    string
}
