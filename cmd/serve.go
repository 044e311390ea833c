package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nbakr/marko/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the marko HTTP server",
	Long: `Starts the HTTP server hosting the conversation pipeline, the learning
admin API, the audit trail, and the websocket chat.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if servePort > 0 {
			cfg.Port = servePort
		}

		co, pipelineStore, learnings, audits, database, err := buildCoordinator(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		srv := server.New(cfg, server.Deps{
			Coordinator:   co,
			PipelineStore: pipelineStore,
			LearningStore: learnings,
			AuditStore:    audits,
		})

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan os.Signal, 1)
		signal.Notify(done, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-done
			fmt.Fprintln(os.Stderr, "shutting down")
			srv.Shutdown(context.Background())
		}()

		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "override the configured port")
	rootCmd.AddCommand(serveCmd)
}
