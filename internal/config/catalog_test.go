package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const validCatalog = `
functions:
  extract_entities:
    output: json
  draft_reply:
    output: chat
metrics:
  exact_match:
    type: boolean
    level: inference
    optimize: max
  latency_score:
    type: float
    level: episode
    optimize: min
    threshold: 2.5
  corrected_output:
    type: demonstration
    level: inference
  reviewer_note:
    type: comment
    level: inference
`

func TestParseCatalog(t *testing.T) {
	c, err := ParseCatalog([]byte(validCatalog))
	require.NoError(t, err)

	fn, err := c.Function("draft_reply")
	require.NoError(t, err)
	require.Equal(t, OutputChat, fn.Output)

	m, err := c.Metric("latency_score")
	require.NoError(t, err)
	require.Equal(t, MetricFloat, m.Type)
	require.Equal(t, LevelEpisode, m.Level)
	require.Equal(t, OptimizeMin, m.Optimize)
	require.NotNil(t, m.Threshold)
	require.Equal(t, 2.5, *m.Threshold)
}

func TestParseCatalogMissingLevel(t *testing.T) {
	_, err := ParseCatalog([]byte(`
metrics:
  exact_match:
    type: boolean
    optimize: max
`))
	require.ErrorIs(t, err, ErrMissingLevel)
}

func TestParseCatalogRejectsBadEnums(t *testing.T) {
	cases := map[string]string{
		"bad type": `
metrics:
  m:
    type: gauge
    level: inference
    optimize: max
`,
		"bad level": `
metrics:
  m:
    type: boolean
    level: request
    optimize: max
`,
		"bad optimize": `
metrics:
  m:
    type: boolean
    level: inference
    optimize: best
`,
		"threshold on non-float": `
metrics:
  m:
    type: boolean
    level: inference
    optimize: max
    threshold: 0.5
`,
		"bad output": `
functions:
  f:
    output: text
`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(doc))
			require.Error(t, err)
		})
	}
}

func TestLookupUnknownNames(t *testing.T) {
	c, err := ParseCatalog([]byte(validCatalog))
	require.NoError(t, err)

	_, err = c.Function("nope")
	require.ErrorIs(t, err, ErrUnknownFunction)

	_, err = c.Metric("nope")
	require.ErrorIs(t, err, ErrUnknownMetric)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 4600, cfg.Server.Port)
	require.NotEmpty(t, cfg.Storage.DataDir)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CURATOR_PORT", "5001")
	t.Setenv("CURATOR_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 5001, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadBadPort(t *testing.T) {
	t.Setenv("CURATOR_PORT", "not-a-port")
	_, err := Load()
	require.Error(t, err)
}
