package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// DefaultConfigFile is the conventional config location in the working
// directory.
const DefaultConfigFile = ".marko.yml"

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (MARKO_*).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Start from defaults.
	cfg := DefaultConfig()

	// Load YAML file if it exists.
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	// Overlay environment variables: MARKO_PROVIDER -> provider, etc.
	if err := k.Load(env.Provider("MARKO_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "MARKO_")), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// validProviders is the set of recognized provider values.
var validProviders = map[ProviderType]bool{
	ProviderAnthropic: true,
	ProviderOpenAI:    true,
	ProviderOllama:    true,
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if !validProviders[c.Provider] {
		return fmt.Errorf("invalid provider %q: must be one of anthropic, openai, ollama", c.Provider)
	}

	if c.Model == "" {
		return fmt.Errorf("model is required")
	}

	if c.EmbeddingProvider != "" && !validProviders[c.EmbeddingProvider] {
		return fmt.Errorf("invalid embedding_provider %q", c.EmbeddingProvider)
	}

	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.Pipeline.VerificationThreshold < 0 || c.Pipeline.VerificationThreshold > 100 {
		return fmt.Errorf("pipeline.verification_threshold must be between 0 and 100")
	}

	if c.Pipeline.MaxFieldRetries < 1 {
		return fmt.Errorf("pipeline.max_field_retries must be at least 1")
	}

	if c.Pipeline.SimilarityFloor < 0 || c.Pipeline.SimilarityFloor > 1 {
		return fmt.Errorf("pipeline.similarity_floor must be between 0 and 1")
	}

	if c.Learning.AutoApplyMinConfidence < 0 || c.Learning.AutoApplyMinConfidence > 1 {
		return fmt.Errorf("learning.auto_apply_min_confidence must be between 0 and 1")
	}

	if c.Learning.ImplicitBase*2 > c.Learning.ExplicitBase {
		return fmt.Errorf("learning.explicit_base must be at least twice learning.implicit_base")
	}

	return nil
}

// APIKeyEnvVar returns the conventional environment variable name for
// the API key of the given provider.
func APIKeyEnvVar(provider ProviderType) string {
	switch provider {
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	default:
		return ""
	}
}
