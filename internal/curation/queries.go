package curation

import (
	"fmt"

	"github.com/kalambet/curator/internal/config"
)

// Query templates for metric curation. Placeholders like :function_name are
// bound parameters. The %s slots are filled only from closed, server-defined
// enums (feedback table by metric type, join column by metric level,
// comparison operator by optimize direction); no user-supplied value ever
// reaches the template text.
//
// Latest-value resolution happens inside the templates: feedback ids are
// UUIDv7, so ordering by id descending is ordering by timestamp descending,
// with the id itself as the deterministic tie-break for same-millisecond
// records. ROW_NUMBER() = 1 is therefore "the current value".

const queryCountInferences = `
SELECT COUNT(*) FROM inference WHERE function_name = :function_name
`

const tmplCountMetricFeedback = `
SELECT COUNT(DISTINCT f.target_id)
FROM %[1]s f
JOIN inference i ON f.target_id = %[2]s
WHERE i.function_name = :function_name AND f.metric_name = :metric_name
`

const queryCountDemonstrationFeedback = `
SELECT COUNT(DISTINCT f.inference_id)
FROM demonstration_feedback f
JOIN inference i ON i.id = f.inference_id
WHERE i.function_name = :function_name
`

const tmplCountCommentFeedback = `
SELECT COUNT(DISTINCT f.target_id)
FROM comment_feedback f
JOIN inference i ON f.target_id = %[1]s
WHERE i.function_name = :function_name
`

const tmplCountCuratedBoolean = `
WITH latest AS (
    SELECT target_id, value,
           ROW_NUMBER() OVER (PARTITION BY target_id ORDER BY id DESC) AS rn
    FROM boolean_feedback
    WHERE metric_name = :metric_name
)
SELECT COUNT(*)
FROM inference i
JOIN latest f ON f.target_id = %[1]s AND f.rn = 1
WHERE i.function_name = :function_name AND f.value = :good
`

const tmplCountCuratedFloat = `
WITH latest AS (
    SELECT target_id, value,
           ROW_NUMBER() OVER (PARTITION BY target_id ORDER BY id DESC) AS rn
    FROM float_feedback
    WHERE metric_name = :metric_name
)
SELECT COUNT(*)
FROM inference i
JOIN latest f ON f.target_id = %[1]s AND f.rn = 1
WHERE i.function_name = :function_name AND f.value %[2]s :threshold
`

const queryCountCuratedDemonstration = `
WITH latest AS (
    SELECT inference_id,
           ROW_NUMBER() OVER (PARTITION BY inference_id ORDER BY id DESC) AS rn
    FROM demonstration_feedback
)
SELECT COUNT(*)
FROM inference i
JOIN latest f ON f.inference_id = i.id AND f.rn = 1
WHERE i.function_name = :function_name
`

const queryAllInferences = `
SELECT id, function_name, variant_name, episode_id, input, output
FROM inference
WHERE function_name = :function_name
ORDER BY id DESC
LIMIT :max_samples
`

const tmplCuratedBoolean = `
WITH latest AS (
    SELECT target_id, value,
           ROW_NUMBER() OVER (PARTITION BY target_id ORDER BY id DESC) AS rn
    FROM boolean_feedback
    WHERE metric_name = :metric_name
)
SELECT i.id, i.function_name, i.variant_name, i.episode_id, i.input, i.output
FROM inference i
JOIN latest f ON f.target_id = %[1]s AND f.rn = 1
WHERE i.function_name = :function_name AND f.value = :good
ORDER BY i.id DESC
LIMIT :max_samples
`

const tmplCuratedFloat = `
WITH latest AS (
    SELECT target_id, value,
           ROW_NUMBER() OVER (PARTITION BY target_id ORDER BY id DESC) AS rn
    FROM float_feedback
    WHERE metric_name = :metric_name
)
SELECT i.id, i.function_name, i.variant_name, i.episode_id, i.input, i.output
FROM inference i
JOIN latest f ON f.target_id = %[1]s AND f.rn = 1
WHERE i.function_name = :function_name AND f.value %[2]s :threshold
ORDER BY i.id DESC
LIMIT :max_samples
`

// Demonstration curation substitutes the demonstration value for the stored
// model output.
const queryCuratedDemonstration = `
WITH latest AS (
    SELECT inference_id, value,
           ROW_NUMBER() OVER (PARTITION BY inference_id ORDER BY id DESC) AS rn
    FROM demonstration_feedback
)
SELECT i.id, i.function_name, i.variant_name, i.episode_id, i.input, f.value AS output
FROM inference i
JOIN latest f ON f.inference_id = i.id AND f.rn = 1
WHERE i.function_name = :function_name
ORDER BY i.id DESC
LIMIT :max_samples
`

// joinColumn maps a metric level to the inference-side join column. Levels
// are validated at catalog load, so anything else here is a programming
// error.
func joinColumn(level config.MetricLevel) string {
	switch level {
	case config.LevelInference:
		return "i.id"
	case config.LevelEpisode:
		return "i.episode_id"
	default:
		panic(fmt.Sprintf("unvalidated metric level %q", level))
	}
}

// comparison maps an optimize direction to the float curation operator. The
// inequality is strict: a value exactly at the threshold is not curated.
// Tests pin this; do not relax it to >=/<=.
func comparison(optimize config.OptimizeDirection) string {
	switch optimize {
	case config.OptimizeMax:
		return ">"
	case config.OptimizeMin:
		return "<"
	default:
		panic(fmt.Sprintf("unvalidated optimize direction %q", optimize))
	}
}
