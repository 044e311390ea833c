package cmd

import (
	"github.com/spf13/cobra"

	"github.com/nbakr/marko/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize marko configuration with an interactive wizard",
	Long:  `Runs an interactive wizard to configure the content pipeline and generates a .marko.yml file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := config.RunWizard()
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
