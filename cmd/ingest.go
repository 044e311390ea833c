package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/nbakr/marko/internal/knowledge"
	"github.com/nbakr/marko/internal/progress"
)

var ingestPattern string

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load the knowledge base and content examples into the vector store",
	Long: `Reads markdown files from the knowledge directory, splits them into
per-section snippets, embeds them, and persists the vector store.

Files under <knowledge_dir>/examples/ are loaded as content examples used
for few-shot generation; everything else becomes verifiable wellness
knowledge.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		embedder, err := createEmbedderFromConfig(cfg)
		if err != nil {
			return err
		}
		store := knowledge.NewStore(embedder)

		files, err := doublestar.Glob(os.DirFS(cfg.KnowledgeDir), ingestPattern)
		if err != nil {
			return fmt.Errorf("matching %q under %s: %w", ingestPattern, cfg.KnowledgeDir, err)
		}
		if len(files) == 0 {
			return fmt.Errorf("no files matching %q under %s", ingestPattern, cfg.KnowledgeDir)
		}

		reporter := progress.NewReporter()
		reporter.Start(len(files))

		var wellness, examples int
		for i, rel := range files {
			reporter.Update(i+1, rel)

			source, err := os.ReadFile(filepath.Join(cfg.KnowledgeDir, rel))
			if err != nil {
				return fmt.Errorf("reading %s: %w", rel, err)
			}

			snippets := knowledge.ParseMarkdown(source, rel)
			if len(snippets) == 0 {
				continue
			}

			ns := knowledge.NamespaceWellness
			if strings.HasPrefix(rel, "examples/") || strings.HasPrefix(rel, "examples\\") {
				ns = knowledge.NamespaceExamples
			}
			if err := store.Add(ctx, ns, snippets); err != nil {
				return fmt.Errorf("adding %s: %w", rel, err)
			}
			if ns == knowledge.NamespaceExamples {
				examples += len(snippets)
			} else {
				wellness += len(snippets)
			}
		}
		reporter.Finish()

		vectorDir := filepath.Join(cfg.DataDir, "vectors")
		if err := store.Persist(ctx, vectorDir); err != nil {
			return fmt.Errorf("persisting vector store: %w", err)
		}

		fmt.Printf("Ingested %d wellness snippets and %d example snippets into %s\n",
			wellness, examples, vectorDir)
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestPattern, "pattern", "**/*.md", "glob pattern for knowledge files")
	rootCmd.AddCommand(ingestCmd)
}
