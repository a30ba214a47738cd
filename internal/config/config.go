// Package config loads runtime configuration from YAML, falling back to
// package defaults for anything the file leaves out.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/persona-core/internal/fuse"
	"github.com/danielpatrickdp/persona-core/internal/pattern"
	"github.com/danielpatrickdp/persona-core/internal/relationship"
	"github.com/danielpatrickdp/persona-core/internal/theory"
)

// #region file-shape

// Config is the full runtime configuration.
type Config struct {
	DBPath    string `yaml:"db_path"`
	RedisAddr string `yaml:"redis_addr"` // empty disables the cache
	LogLevel  string `yaml:"log_level"`

	Generate GenerateConfig `yaml:"generate"`
	Turn     TurnConfig     `yaml:"turn"`

	Fusion        FusionConfig                                  `yaml:"fusion"`
	Clustering    ClusteringConfig                              `yaml:"clustering"`
	StageGates    map[relationship.Stage]relationship.StageGate `yaml:"stage_gates"`
	TheoryWeights map[theory.Kind]float64                       `yaml:"theory_weights"`
	CacheTTLMins  int                                           `yaml:"cache_ttl_mins"`
}

// GenerateConfig points at the external text-generation service.
type GenerateConfig struct {
	Endpoint   string `yaml:"endpoint"`
	Model      string `yaml:"model"`
	EmbedModel string `yaml:"embed_model"`
}

// TurnConfig bounds the per-turn fan-out.
type TurnConfig struct {
	ProducerTimeoutMs int `yaml:"producer_timeout_ms"`
}

// FusionConfig overrides the stability constraints.
type FusionConfig struct {
	MinSimilarity *float64 `yaml:"min_similarity"`
	MaxDelta      *float64 `yaml:"max_delta"`
	MinAlignment  *float64 `yaml:"min_alignment"`
}

// ClusteringConfig overrides the consolidation parameters.
type ClusteringConfig struct {
	Eps             *float64 `yaml:"eps"`
	MinSamples      *int     `yaml:"min_samples"`
	MinSignificance *float64 `yaml:"min_significance"`
}

// #endregion file-shape

// #region load

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		DBPath:       "persona_core.db",
		LogLevel:     "info",
		CacheTTLMins: 10,
		Turn:         TurnConfig{ProducerTimeoutMs: 2000},
	}
}

// Load reads a YAML config file over the defaults. A missing path returns
// the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Turn.ProducerTimeoutMs <= 0 {
		cfg.Turn.ProducerTimeoutMs = Default().Turn.ProducerTimeoutMs
	}
	return cfg, nil
}

// #endregion load

// #region derived

// FuseConfig applies the file overrides to the fusion defaults.
func (c Config) FuseConfig() fuse.Config {
	out := fuse.DefaultConfig()
	if c.Fusion.MinSimilarity != nil {
		out.MinSimilarity = *c.Fusion.MinSimilarity
	}
	if c.Fusion.MaxDelta != nil {
		out.MaxDelta = *c.Fusion.MaxDelta
	}
	if c.Fusion.MinAlignment != nil {
		out.MinAlignment = *c.Fusion.MinAlignment
	}
	return out
}

// PatternConfig applies the file overrides to the clustering defaults.
func (c Config) PatternConfig() pattern.Config {
	out := pattern.DefaultConfig()
	if c.Clustering.Eps != nil {
		out.Eps = *c.Clustering.Eps
	}
	if c.Clustering.MinSamples != nil {
		out.MinSamples = *c.Clustering.MinSamples
	}
	if c.Clustering.MinSignificance != nil {
		out.MinSignificance = *c.Clustering.MinSignificance
	}
	return out
}

// RelationshipConfig applies any stage-gate overrides to the defaults.
func (c Config) RelationshipConfig() relationship.Config {
	out := relationship.DefaultConfig()
	for stage, gate := range c.StageGates {
		out.Gates[stage] = gate
	}
	return out
}

// ApplyTheoryWeights writes the configured weight overrides into a registry.
func (c Config) ApplyTheoryWeights(r *theory.Registry) error {
	for kind, weight := range c.TheoryWeights {
		if err := r.UpdateWeight(kind, weight); err != nil {
			return fmt.Errorf("theory weight for %s: %w", kind, err)
		}
	}
	return nil
}

// ProducerTimeout returns the per-producer budget as a duration.
func (c Config) ProducerTimeout() time.Duration {
	return time.Duration(c.Turn.ProducerTimeoutMs) * time.Millisecond
}

// CacheTTL returns the cache entry lifetime as a duration.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMins) * time.Minute
}

// #endregion derived
