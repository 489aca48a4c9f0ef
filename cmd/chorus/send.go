package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var sendSessionID string

var sendCmd = &cobra.Command{
	Use:   "send <text...>",
	Short: "Send a user message to a session",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		gw := newGateway()
		defer gw.Close()

		co := newCoordinator(gw)
		co.Start()
		defer co.Stop()

		co.SetActiveSession(sendSessionID)
		if !co.Store().WaitHydrated(sendSessionID, cfg.HTTPTimeout) {
			return fmt.Errorf("session %s did not finish loading", sendSessionID)
		}
		if err := co.Store().LoadError(sendSessionID); err != nil {
			return fmt.Errorf("loading session %s: %w", sendSessionID, err)
		}

		msg, err := co.SendMessage(strings.Join(args, " "))
		if err != nil {
			return err
		}

		// Wait for the asynchronous persist so failures surface before the
		// process exits.
		deadline := time.Now().Add(cfg.HTTPTimeout)
		for time.Now().Before(deadline) {
			for _, m := range co.Store().Messages(sendSessionID) {
				if m.Metadata == nil {
					continue
				}
				if failed, _ := m.Metadata["failedMessageId"].(string); failed == msg.ID {
					return fmt.Errorf("%s", m.Content)
				}
				if m.ID == msg.ID && m.Metadata["confirmed"] == true {
					fmt.Printf("Sent %s\n", msg.ID)
					return nil
				}
			}
			time.Sleep(100 * time.Millisecond)
		}
		return fmt.Errorf("message %s was not confirmed in time", msg.ID)
	},
}

func init() {
	sendCmd.Flags().StringVar(&sendSessionID, "session", "", "target session id")
	_ = sendCmd.MarkFlagRequired("session")
	rootCmd.AddCommand(sendCmd)
}
