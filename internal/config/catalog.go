package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Catalog errors. ErrUnknownFunction and ErrUnknownMetric indicate the caller
// named a function/metric the catalog does not define. ErrMissingLevel is a
// fatal configuration error: every metric must declare whether its feedback
// targets inferences or episodes.
var (
	ErrUnknownFunction = errors.New("unknown function")
	ErrUnknownMetric   = errors.New("unknown metric")
	ErrMissingLevel    = errors.New("metric config missing level")
)

// MetricType identifies the feedback value shape for a metric.
type MetricType string

const (
	MetricBoolean       MetricType = "boolean"
	MetricFloat         MetricType = "float"
	MetricDemonstration MetricType = "demonstration"
	MetricComment       MetricType = "comment"
)

// MetricLevel identifies what a metric's feedback targets.
type MetricLevel string

const (
	LevelInference MetricLevel = "inference"
	LevelEpisode   MetricLevel = "episode"
)

// OptimizeDirection says which end of a metric's range is "good".
type OptimizeDirection string

const (
	OptimizeMax OptimizeDirection = "max"
	OptimizeMin OptimizeDirection = "min"
)

// MetricConfig describes one metric collected against inferences or episodes.
type MetricConfig struct {
	Type      MetricType        `yaml:"type"`
	Level     MetricLevel       `yaml:"level"`
	Optimize  OptimizeDirection `yaml:"optimize"`
	Threshold *float64          `yaml:"threshold,omitempty"` // float metrics only
}

// OutputKind is the declared output shape of a function.
type OutputKind string

const (
	OutputChat OutputKind = "chat"
	OutputJSON OutputKind = "json"
)

// FunctionConfig describes one gateway function whose inferences land in the
// log.
type FunctionConfig struct {
	Output OutputKind `yaml:"output"`
}

// Catalog is the function/metric configuration shared with the upstream
// gateway. The query layer only reads it.
type Catalog struct {
	Functions map[string]FunctionConfig `yaml:"functions"`
	Metrics   map[string]MetricConfig   `yaml:"metrics"`
}

// LoadCatalog reads and validates a YAML catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", path, err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a YAML catalog and validates every entry.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	for name, fn := range c.Functions {
		switch fn.Output {
		case OutputChat, OutputJSON:
		default:
			return fmt.Errorf("function %q: unknown output kind %q", name, fn.Output)
		}
	}
	for name, m := range c.Metrics {
		switch m.Type {
		case MetricBoolean, MetricFloat, MetricDemonstration, MetricComment:
		default:
			return fmt.Errorf("metric %q: unknown type %q", name, m.Type)
		}
		// Level is mandatory on every metric. Inferring it from the config
		// shape at query time is how "level is undefined" failures happen.
		if m.Level == "" {
			return fmt.Errorf("metric %q: %w", name, ErrMissingLevel)
		}
		if m.Level != LevelInference && m.Level != LevelEpisode {
			return fmt.Errorf("metric %q: unknown level %q", name, m.Level)
		}
		switch m.Type {
		case MetricBoolean, MetricFloat:
			if m.Optimize != OptimizeMax && m.Optimize != OptimizeMin {
				return fmt.Errorf("metric %q: unknown optimize direction %q", name, m.Optimize)
			}
		}
		if m.Threshold != nil && m.Type != MetricFloat {
			return fmt.Errorf("metric %q: threshold is only valid for float metrics", name)
		}
	}
	return nil
}

// Function looks up a function config by name.
func (c *Catalog) Function(name string) (FunctionConfig, error) {
	fn, ok := c.Functions[name]
	if !ok {
		return FunctionConfig{}, fmt.Errorf("%w: %s", ErrUnknownFunction, name)
	}
	return fn, nil
}

// Metric looks up a metric config by name.
func (c *Catalog) Metric(name string) (MetricConfig, error) {
	m, ok := c.Metrics[name]
	if !ok {
		return MetricConfig{}, fmt.Errorf("%w: %s", ErrUnknownMetric, name)
	}
	return m, nil
}
