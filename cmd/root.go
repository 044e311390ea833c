package cmd

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "marko",
	Short: "Agentic marketing content pipeline with verified facts and feedback learning",
	Long: `Marko runs a conversational pipeline that turns a content request into
platform-ready marketing copy: it accumulates a structured brief, verifies
every factual claim against your knowledge base, previews before writing,
and learns from your feedback over time.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", ".marko.yml", "config file path")
}
