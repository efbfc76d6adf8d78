package cli

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/soyeahso/parley/internal/llm"
)

func newChatCmd() *cobra.Command {
	var (
		sessionID string
		model     string
		stream    bool
	)

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Send a message to the agent and print the response",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := strings.Join(args, " ")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if model != "" {
				cfg.Model.Name = model
			}
			if sessionID == "" {
				sessionID = "cli-" + uuid.New().String()
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store, closeStore, err := buildStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			runner := newRunner(cfg, store)

			if stream {
				result, err := runner.RunStream(ctx, sessionID, message, func(evt llm.StreamEvent) {
					if evt.Type == "delta" {
						fmt.Print(evt.Content)
					}
				})
				if err != nil {
					return err
				}
				fmt.Println()
				printTurnInfo(cmd, result.Model, result.Usage)
				return nil
			}

			result, err := runner.Run(ctx, sessionID, message)
			if err != nil {
				return err
			}
			fmt.Println(result.Response)
			printTurnInfo(cmd, result.Model, result.Usage)
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "session id (default: a fresh one-shot session)")
	cmd.Flags().StringVar(&model, "model", "", "override the configured model")
	cmd.Flags().BoolVar(&stream, "stream", false, "stream the response")

	return cmd
}

func printTurnInfo(cmd *cobra.Command, model string, usage llm.Usage) {
	if model != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "\n[model=%s tokens=%d+%d]\n",
			model, usage.InputTokens, usage.OutputTokens)
	}
}
