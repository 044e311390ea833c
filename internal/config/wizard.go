package config

import (
	"fmt"
	"strconv"

	"github.com/manifoldco/promptui"
)

// defaultModels maps a provider to its suggested chat model.
var defaultModels = map[ProviderType]string{
	ProviderAnthropic: "claude-sonnet-4-5-20250929",
	ProviderOpenAI:    "gpt-4o",
	ProviderOllama:    "llama3.1",
}

// RunWizard runs an interactive configuration wizard and returns the
// resulting Config. It also saves the config to .marko.yml.
func RunWizard() (*Config, error) {
	fmt.Println("Welcome to marko! Let's configure your content pipeline.")
	fmt.Println()

	cfg := DefaultConfig()

	// 1. Provider selection.
	providerPrompt := promptui.Select{
		Label: "Select LLM provider",
		Items: []string{"anthropic", "openai", "ollama"},
	}
	_, providerStr, err := providerPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("provider selection: %w", err)
	}
	cfg.Provider = ProviderType(providerStr)

	// 2. Model.
	modelPrompt := promptui.Prompt{
		Label:   "Model",
		Default: defaultModels[cfg.Provider],
	}
	cfg.Model, err = modelPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}

	// 3. Knowledge directory.
	knowledgePrompt := promptui.Prompt{
		Label:   "Knowledge base directory (markdown files)",
		Default: cfg.KnowledgeDir,
	}
	cfg.KnowledgeDir, err = knowledgePrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("knowledge dir: %w", err)
	}

	// 4. Verification threshold.
	thresholdPrompt := promptui.Prompt{
		Label:   "Verification threshold (0-100)",
		Default: strconv.FormatFloat(cfg.Pipeline.VerificationThreshold, 'f', 0, 64),
		Validate: func(s string) error {
			n, err := strconv.ParseFloat(s, 64)
			if err != nil || n < 0 || n > 100 {
				return fmt.Errorf("must be a number between 0 and 100")
			}
			return nil
		},
	}
	thresholdStr, err := thresholdPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("verification threshold: %w", err)
	}
	cfg.Pipeline.VerificationThreshold, _ = strconv.ParseFloat(thresholdStr, 64)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Save(DefaultConfigFile); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Println()
	fmt.Printf("Configuration written to %s\n", DefaultConfigFile)
	if key := APIKeyEnvVar(cfg.Provider); key != "" {
		fmt.Printf("Remember to set %s before running marko.\n", key)
	}
	return cfg, nil
}
