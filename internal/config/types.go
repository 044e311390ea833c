package config

// ProviderType identifies an LLM provider.
type ProviderType string

const (
	ProviderAnthropic ProviderType = "anthropic"
	ProviderOpenAI    ProviderType = "openai"
	ProviderOllama    ProviderType = "ollama"
)

// Config is the top-level marko configuration, corresponding to .marko.yml.
type Config struct {
	Provider          ProviderType `yaml:"provider" koanf:"provider"`
	Model             string       `yaml:"model" koanf:"model"`
	EmbeddingProvider ProviderType `yaml:"embedding_provider" koanf:"embedding_provider"`
	EmbeddingModel    string       `yaml:"embedding_model" koanf:"embedding_model"`
	DataDir           string       `yaml:"data_dir" koanf:"data_dir"`
	KnowledgeDir      string       `yaml:"knowledge_dir" koanf:"knowledge_dir"`
	Port              int          `yaml:"port" koanf:"port"`
	RequestsPerMinute int          `yaml:"requests_per_minute" koanf:"requests_per_minute"`

	Pipeline  PipelineConfig           `yaml:"pipeline" koanf:"pipeline"`
	Learning  LearningConfig           `yaml:"learning" koanf:"learning"`
	Platforms map[string]PlatformRules `yaml:"platforms" koanf:"platforms"`
	Agents    map[string]AgentConfig   `yaml:"agents" koanf:"agents"`
}

// PipelineConfig holds the tunables of the conversation pipeline.
type PipelineConfig struct {
	// VerificationThreshold is the minimum verification score (0-100) that
	// lets a brief proceed to preview generation. A score exactly at the
	// threshold passes.
	VerificationThreshold float64 `yaml:"verification_threshold" koanf:"verification_threshold"`
	// MaxFieldRetries caps how many times the coordinator re-asks for a
	// single brief field before surfacing a hard failure.
	MaxFieldRetries int `yaml:"max_field_retries" koanf:"max_field_retries"`
	// RequestTimeoutSeconds bounds a single reasoning or retrieval call.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds" koanf:"request_timeout_seconds"`
	// MaxInfraRetries bounds retries of timed-out or conflicted turns.
	MaxInfraRetries int `yaml:"max_infra_retries" koanf:"max_infra_retries"`
	// SimilarityFloor is the minimum retrieval similarity for a knowledge
	// snippet to count as supporting a claim.
	SimilarityFloor float64 `yaml:"similarity_floor" koanf:"similarity_floor"`
}

// LearningConfig holds the tunables of the feedback-to-learning subsystem.
type LearningConfig struct {
	// AutoApplyMinConfidence is the minimum confidence for a candidate
	// learning to bypass admin review.
	AutoApplyMinConfidence float64 `yaml:"auto_apply_min_confidence" koanf:"auto_apply_min_confidence"`
	// ExplicitBase is the base confidence of a learning derived from an
	// explicit signal (rating, tags).
	ExplicitBase float64 `yaml:"explicit_base" koanf:"explicit_base"`
	// ImplicitBase is the base confidence of a learning derived from an
	// implicit signal (approve/regenerate/edit). Must be at most half of
	// ExplicitBase.
	ImplicitBase float64 `yaml:"implicit_base" koanf:"implicit_base"`
}

// PlatformRules describes per-platform formatting constraints.
type PlatformRules struct {
	MaxLength   int    `yaml:"max_length" koanf:"max_length"`
	MaxHashtags int    `yaml:"max_hashtags" koanf:"max_hashtags"`
	CTAStyle    string `yaml:"cta_style" koanf:"cta_style"`
}

// AgentConfig overrides model and temperature for a single agent role.
type AgentConfig struct {
	Model       string  `yaml:"model" koanf:"model"`
	Temperature float64 `yaml:"temperature" koanf:"temperature"`
}
