package config

// defaultPlatforms carries formatting rules for the platforms we generate
// for out of the box. Users can add or override platforms in .marko.yml.
var defaultPlatforms = map[string]PlatformRules{
	"instagram": {MaxLength: 2200, MaxHashtags: 10, CTAStyle: "soft"},
	"facebook":  {MaxLength: 5000, MaxHashtags: 5, CTAStyle: "direct"},
	"linkedin":  {MaxLength: 3000, MaxHashtags: 5, CTAStyle: "professional"},
	"email":     {MaxLength: 10000, MaxHashtags: 0, CTAStyle: "direct"},
	"sms":       {MaxLength: 320, MaxHashtags: 0, CTAStyle: "urgent"},
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Provider:          ProviderAnthropic,
		Model:             "claude-sonnet-4-5-20250929",
		EmbeddingProvider: ProviderOpenAI,
		EmbeddingModel:    "text-embedding-3-small",
		DataDir:           ".marko",
		KnowledgeDir:      "knowledge",
		Port:              8321,
		RequestsPerMinute: 30,
		Pipeline: PipelineConfig{
			VerificationThreshold: 80,
			MaxFieldRetries:       3,
			RequestTimeoutSeconds: 60,
			MaxInfraRetries:       2,
			SimilarityFloor:       0.60,
		},
		Learning: LearningConfig{
			AutoApplyMinConfidence: 0.6,
			ExplicitBase:           0.5,
			ImplicitBase:           0.2,
		},
		Platforms: defaultPlatforms,
	}
}
