package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nbakr/marko/internal/agents"
	"github.com/nbakr/marko/internal/audit"
	"github.com/nbakr/marko/internal/config"
	"github.com/nbakr/marko/internal/db"
	"github.com/nbakr/marko/internal/embeddings"
	"github.com/nbakr/marko/internal/feedback"
	"github.com/nbakr/marko/internal/generate"
	"github.com/nbakr/marko/internal/knowledge"
	"github.com/nbakr/marko/internal/learning"
	"github.com/nbakr/marko/internal/llm"
	"github.com/nbakr/marko/internal/pipeline"
	"github.com/nbakr/marko/internal/verify"
)

// loadConfig loads and validates the config with a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `marko init` to create a config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// createEmbedderFromConfig creates an embeddings.Embedder based on config.
func createEmbedderFromConfig(cfg *config.Config) (embeddings.Embedder, error) {
	provider := cfg.EmbeddingProvider
	if provider == "" {
		provider = cfg.Provider
	}

	switch provider {
	case config.ProviderOpenAI:
		apiKey := os.Getenv(config.APIKeyEnvVar(config.ProviderOpenAI))
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is required for OpenAI embeddings")
		}
		return embeddings.NewOpenAIEmbedder(apiKey, embeddings.OpenAIModel(cfg.EmbeddingModel)), nil
	case config.ProviderOllama:
		return embeddings.NewOllamaEmbedder(cfg.EmbeddingModel, 768, ""), nil
	default:
		// Anthropic has no embeddings API; fall back to OpenAI.
		apiKey := os.Getenv(config.APIKeyEnvVar(config.ProviderOpenAI))
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required (used for embeddings when provider is %s)", provider)
		}
		return embeddings.NewOpenAIEmbedder(apiKey, embeddings.OpenAIModel(cfg.EmbeddingModel)), nil
	}
}

// createLLMProviderFromConfig creates a rate-limited LLM provider.
func createLLMProviderFromConfig(cfg *config.Config) (llm.Provider, error) {
	provider, err := llm.NewProvider(string(cfg.Provider), cfg.Model)
	if err != nil {
		return nil, err
	}
	if cfg.RequestsPerMinute > 0 {
		provider = llm.NewRateLimitedProvider(provider, cfg.RequestsPerMinute)
	}
	return provider, nil
}

// openKnowledgeStore creates the vector store and loads any persisted
// collections from the data directory.
func openKnowledgeStore(ctx context.Context, cfg *config.Config) (*knowledge.Store, error) {
	embedder, err := createEmbedderFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	store := knowledge.NewStore(embedder)
	if err := store.Load(ctx, filepath.Join(cfg.DataDir, "vectors")); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not load knowledge store: %v\n", err)
		fmt.Fprintf(os.Stderr, "Run `marko ingest` to populate it.\n")
	}
	return store, nil
}

// buildCoordinator wires the full pipeline from config.
func buildCoordinator(ctx context.Context, cfg *config.Config) (*pipeline.Coordinator, *pipeline.Store, *learning.Store, *audit.Store, *db.DB, error) {
	database, err := db.Open(filepath.Join(cfg.DataDir, "marko.db"))
	if err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("opening database: %w", err)
	}

	provider, err := createLLMProviderFromConfig(cfg)
	if err != nil {
		database.Close()
		return nil, nil, nil, nil, nil, err
	}

	store, err := openKnowledgeStore(ctx, cfg)
	if err != nil {
		database.Close()
		return nil, nil, nil, nil, nil, err
	}

	learnings := learning.NewStore(database)
	retriever := knowledge.NewRanker(store, learnings)

	tools, handler := agents.KnowledgeTools(retriever)
	invoker := agents.NewInvoker(provider, cfg, tools, handler)
	verifier := verify.NewEngine(retriever, provider, agents.Resolve(cfg, agents.RoleVerification), cfg.Pipeline.SimilarityFloor)
	generator := generate.NewEngine(provider,
		agents.Resolve(cfg, agents.RolePreview), agents.Resolve(cfg, agents.RoleContent),
		retriever, cfg.Platforms)
	extractor := feedback.NewExtractor(provider, agents.Resolve(cfg, agents.RoleFeedback), cfg.Learning)
	gate := learning.NewGate(learnings, cfg.Learning.AutoApplyMinConfidence)

	pipelineStore := pipeline.NewStore(database)
	audits := audit.NewStore(database)

	co := pipeline.NewCoordinator(pipelineStore, invoker, verifier, generator, extractor,
		feedback.NewStore(database), learnings, gate, audits, cfg)
	return co, pipelineStore, learnings, audits, database, nil
}
