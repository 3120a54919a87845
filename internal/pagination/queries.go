package pagination

// Keyset pagination query templates. Template text is fixed; every
// user-influenced value (cursor id, page size) is bound as a named parameter.
// The descending variants return the page directly; the ascending variants
// select the nearest page above the cursor and the engine reverses the rows
// so pages always come back descending by id.

const queryInferencesFirst = `
SELECT id, function_name, variant_name, episode_id, input, output
FROM inference
ORDER BY id DESC
LIMIT :page_size
`

const queryInferencesBefore = `
SELECT id, function_name, variant_name, episode_id, input, output
FROM inference
WHERE id < :cursor
ORDER BY id DESC
LIMIT :page_size
`

const queryInferencesAfter = `
SELECT id, function_name, variant_name, episode_id, input, output
FROM inference
WHERE id > :cursor
ORDER BY id ASC
LIMIT :page_size
`

// Episode pages group the inference table by episode. The cursor predicate
// applies to the episode's last inference id, not the episode id itself, so
// "freshest episode first" ordering survives pagination.

const queryEpisodesFirst = `
SELECT episode_id, COUNT(*) AS inference_count, MIN(id) AS first_inference_id, MAX(id) AS last_inference_id
FROM inference
GROUP BY episode_id
ORDER BY last_inference_id DESC
LIMIT :page_size
`

const queryEpisodesBefore = `
SELECT episode_id, COUNT(*) AS inference_count, MIN(id) AS first_inference_id, MAX(id) AS last_inference_id
FROM inference
GROUP BY episode_id
HAVING MAX(id) < :cursor
ORDER BY last_inference_id DESC
LIMIT :page_size
`

const queryEpisodesAfter = `
SELECT episode_id, COUNT(*) AS inference_count, MIN(id) AS first_inference_id, MAX(id) AS last_inference_id
FROM inference
GROUP BY episode_id
HAVING MAX(id) > :cursor
ORDER BY last_inference_id ASC
LIMIT :page_size
`

const queryInferenceBounds = `
SELECT MIN(id), MAX(id) FROM inference
`

const queryEpisodeBounds = `
SELECT MIN(last_id), MAX(last_id) FROM (
    SELECT MAX(id) AS last_id FROM inference GROUP BY episode_id
)
`
