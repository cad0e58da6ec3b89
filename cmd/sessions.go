package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage chat sessions",
	}
	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsDeleteCmd())
	return cmd
}

func newSessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			sessions := a.pipeline.Sessions()
			if len(sessions) == 0 {
				fmt.Println("No sessions yet.")
				return nil
			}
			for _, s := range sessions {
				fmt.Printf("%s  %-30s  %d turns  %s\n",
					shortID(s.LocalID), s.Title, len(s.History),
					s.UpdatedAt.Local().Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}

func newSessionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a session locally and from the sync backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			for _, s := range a.pipeline.Sessions() {
				if strings.HasPrefix(s.LocalID, args[0]) {
					if err := a.pipeline.DeleteSession(ctx, s.LocalID); err != nil {
						return fmt.Errorf("delete session: %w", err)
					}
					fmt.Printf("Deleted %q.\n", s.Title)
					return nil
				}
			}
			return fmt.Errorf("no session matches %q", args[0])
		},
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
