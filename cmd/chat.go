package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/nbakr/marko/internal/feedback"
	"github.com/nbakr/marko/internal/pipeline"
)

var chatUser string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Run a content conversation in the terminal",
	Long:  `Starts an interactive conversation: brief, verify, preview, approve, deliver, and give feedback without leaving the terminal.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		co, _, _, _, database, err := buildCoordinator(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		ctx := cmd.Context()
		conv, reply, err := co.Start(ctx, chatUser)
		if err != nil {
			return err
		}
		fmt.Println(reply.Text)

		reader := bufio.NewScanner(os.Stdin)
		for {
			switch reply.Stage {
			case pipeline.StageBriefing:
				fmt.Print("> ")
				if !reader.Scan() {
					return reader.Err()
				}
				text := strings.TrimSpace(reader.Text())
				if text == "" {
					continue
				}
				reply, err = co.Message(ctx, conv.ID, text)

			case pipeline.StagePreview:
				choice := promptui.Select{
					Label: "Preview decision",
					Items: []string{"approve", "revise"},
				}
				_, decision, perr := choice.Run()
				if perr != nil {
					return perr
				}
				if decision == "approve" {
					reply, err = co.ApprovePreview(ctx, conv.ID)
				} else {
					note := promptui.Prompt{Label: "What should change"}
					text, perr := note.Run()
					if perr != nil {
						return perr
					}
					reply, err = co.RevisePreview(ctx, conv.ID, text)
				}

			case pipeline.StageReview:
				fb, perr := collectFeedback()
				if perr != nil {
					return perr
				}
				reply, err = co.SubmitFeedback(ctx, conv.ID, fb)

			case pipeline.StageComplete:
				fmt.Println("Done.")
				return nil

			default:
				return fmt.Errorf("unexpected stage %s", reply.Stage)
			}

			if err != nil {
				return err
			}
			fmt.Println()
			fmt.Println(reply.Text)
		}
	},
}

// collectFeedback gathers a rating and optional comment.
func collectFeedback() (*feedback.Feedback, error) {
	rating := promptui.Prompt{
		Label: "Rating (1-5, empty to skip)",
		Validate: func(s string) error {
			if s == "" {
				return nil
			}
			n, err := strconv.Atoi(s)
			if err != nil || n < 1 || n > 5 {
				return fmt.Errorf("must be 1-5")
			}
			return nil
		},
	}
	ratingStr, err := rating.Run()
	if err != nil {
		return nil, err
	}

	comment := promptui.Prompt{Label: "Comment (optional)"}
	commentStr, err := comment.Run()
	if err != nil {
		return nil, err
	}

	fb := &feedback.Feedback{Comment: commentStr}
	if ratingStr != "" {
		fb.Rating, _ = strconv.Atoi(ratingStr)
	}
	if !fb.Explicit() {
		fb.ImplicitSignal = feedback.SignalApprove
	}
	return fb, nil
}

func init() {
	chatCmd.Flags().StringVar(&chatUser, "user", "local", "user ID for the conversation")
	rootCmd.AddCommand(chatCmd)
}
