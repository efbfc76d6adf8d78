package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect and manage conversation sessions",
	}

	cmd.AddCommand(newSessionHistoryCmd())
	cmd.AddCommand(newSessionDeleteCmd())
	return cmd
}

func newSessionHistoryCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history <session-id>",
		Short: "Print a session's conversation history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := context.Background()
			store, closeStore, err := buildStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			runner := newRunner(cfg, store)
			msgs, err := runner.History(ctx, args[0])
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(msgs)
			}

			if len(msgs) == 0 {
				fmt.Println("(empty session)")
				return nil
			}
			for _, m := range msgs {
				fmt.Printf("[%s] %s: %s\n", m.Timestamp.Format("15:04:05"), m.Role, m.Content)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")
	return cmd
}

func newSessionDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session's conversation history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := context.Background()
			store, closeStore, err := buildStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			runner := newRunner(cfg, store)
			existed, err := runner.DeleteSession(ctx, args[0])
			if err != nil {
				return err
			}
			if !existed {
				fmt.Printf("session %s not found\n", args[0])
				return nil
			}
			fmt.Printf("session %s deleted\n", args[0])
			return nil
		},
	}
}
