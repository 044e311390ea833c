package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nbakr/marko/internal/db"
	"github.com/nbakr/marko/internal/knowledge"
	"github.com/nbakr/marko/internal/learning"
	mcpserver "github.com/nbakr/marko/internal/mcp"
	"github.com/nbakr/marko/internal/pipeline"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server for AI agent integration",
	Long:  `Starts a Model Context Protocol (MCP) server on stdio, exposing knowledge search, learning inspection, and pipeline status tools for AI agents.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		database, err := db.Open(filepath.Join(cfg.DataDir, "marko.db"))
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer database.Close()

		store, err := openKnowledgeStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		learnings := learning.NewStore(database)
		retriever := knowledge.NewRanker(store, learnings)

		mcpserver.Version = Version
		fmt.Fprintf(os.Stderr, "marko MCP server started on stdio (wellness=%d, examples=%d)\n",
			store.Count(knowledge.NamespaceWellness), store.Count(knowledge.NamespaceExamples))

		srv := mcpserver.NewServer(retriever, learnings, pipeline.NewStore(database))
		return srv.Serve()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
