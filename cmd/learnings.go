package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/nbakr/marko/internal/audit"
	"github.com/nbakr/marko/internal/db"
	"github.com/nbakr/marko/internal/learning"
)

var reviewer string

var learningsCmd = &cobra.Command{
	Use:   "learnings",
	Short: "Inspect and review learnings",
}

var learningsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List learnings by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		database, err := db.Open(filepath.Join(cfg.DataDir, "marko.db"))
		if err != nil {
			return err
		}
		defer database.Close()

		store := learning.NewStore(database)
		results, err := store.List(cmd.Context(), learning.ListFilter{
			Status: learning.Status(cmd.Flag("status").Value.String()),
		})
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("No learnings.")
			return nil
		}
		for _, l := range results {
			printLearning(&l)
		}
		return nil
	},
}

var learningsReviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review pending learnings interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		database, err := db.Open(filepath.Join(cfg.DataDir, "marko.db"))
		if err != nil {
			return err
		}
		defer database.Close()

		store := learning.NewStore(database)
		audits := audit.NewStore(database)

		pending, err := store.List(cmd.Context(), learning.ListFilter{Status: learning.StatusPending})
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			fmt.Println("Nothing pending.")
			return nil
		}

		for i := range pending {
			l := &pending[i]
			fmt.Println()
			printLearning(l)

			choice := promptui.Select{
				Label: "Decision",
				Items: []string{"approve", "reject", "skip"},
			}
			_, decision, err := choice.Run()
			if err != nil {
				return err
			}
			if decision == "skip" {
				continue
			}

			to := learning.StatusApproved
			action := audit.ActionLearningApproved
			if decision == "reject" {
				to = learning.StatusRejected
				action = audit.ActionLearningRejected
			}

			err = store.TransitionStatus(cmd.Context(), l.ID, learning.StatusPending, to)
			if err == learning.ErrStaleStatus {
				fmt.Println("Already resolved elsewhere, skipping.")
				continue
			}
			if err != nil {
				return err
			}
			if err := audits.Record(cmd.Context(), audit.Entry{
				ActorType:     audit.ActorAdmin,
				ActorID:       reviewer,
				Action:        action,
				LearningID:    l.ID,
				PreviousValue: string(learning.StatusPending),
				NewValue:      string(to),
			}); err != nil {
				return err
			}
			fmt.Printf("%s %s\n", decision, l.ID)
		}
		return nil
	},
}

func printLearning(l *learning.Learning) {
	fmt.Printf("[%s/%s] %s (confidence %.2f, %d observations)\n",
		l.Type, l.Status, l.Subject, l.Confidence, l.Observations)
	fmt.Printf("  %s\n", l.Content)
	if l.GateReason != "" {
		fmt.Printf("  held: %s\n", l.GateReason)
	}
	if l.AppliedCount > 0 {
		fmt.Printf("  applied %d times, %.0f%% success\n", l.AppliedCount, l.SuccessRate()*100)
	}
}

func init() {
	learningsListCmd.Flags().String("status", "", "filter by status (pending, approved, rejected)")
	learningsReviewCmd.Flags().StringVar(&reviewer, "reviewer", "admin", "reviewer name recorded in the audit trail")
	learningsCmd.AddCommand(learningsListCmd)
	learningsCmd.AddCommand(learningsReviewCmd)
	rootCmd.AddCommand(learningsCmd)
}
