package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List and manage workflow sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, freshest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		gw := newGateway()
		defer gw.Close()

		sessions, err := gw.ListSessions(cmd.Context())
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Println("No sessions.")
			return nil
		}
		for _, s := range sessions {
			title := s.Title
			if title == "" {
				title = "(untitled)"
			}
			created := time.UnixMilli(s.CreatedAt).Format(time.RFC3339)
			fmt.Printf("%s  %-10s  %s  %s\n", s.ID, s.Status, created, title)
		}
		return nil
	},
}

var (
	createAgentType string
	createModelID   string
)

var sessionsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new session",
	RunE: func(cmd *cobra.Command, args []string) error {
		gw := newGateway()
		defer gw.Close()

		session, err := gw.CreateSession(cmd.Context(), createAgentType, createModelID)
		if err != nil {
			return err
		}
		fmt.Printf("Created session %s\n", session.ID)
		return nil
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		gw := newGateway()
		defer gw.Close()

		if err := gw.DeleteSession(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted session %s\n", args[0])
		return nil
	},
}

func init() {
	sessionsCreateCmd.Flags().StringVar(&createAgentType, "agent", "coder", "agent type for the new session")
	sessionsCreateCmd.Flags().StringVar(&createModelID, "model", "", "model id (empty for backend default)")

	sessionsCmd.AddCommand(sessionsListCmd, sessionsCreateCmd, sessionsDeleteCmd)
	rootCmd.AddCommand(sessionsCmd)
}
