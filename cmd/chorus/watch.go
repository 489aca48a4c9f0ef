package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chorus-dev/chorus/internal/transport"
)

var watchSessionID string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Tail a session timeline live",
	RunE: func(cmd *cobra.Command, args []string) error {
		gw := newGateway()
		defer gw.Close()

		co := newCoordinator(gw)
		co.Start()
		defer co.Stop()

		co.Transport().OnStateChange(func(cs transport.ConnectionState) {
			fmt.Printf("-- connection: %s (attempts=%d)\n", cs.State, cs.Attempts)
		})

		co.SetActiveSession(watchSessionID)
		if !co.Store().WaitHydrated(watchSessionID, cfg.HTTPTimeout) {
			return fmt.Errorf("session %s did not finish loading", watchSessionID)
		}
		if err := co.Store().LoadError(watchSessionID); err != nil {
			return fmt.Errorf("loading session %s: %w", watchSessionID, err)
		}

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

		printed := 0
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-sig:
				return nil
			case <-ticker.C:
				msgs := co.Store().Messages(watchSessionID)
				for ; printed < len(msgs); printed++ {
					m := msgs[printed]
					ts := time.UnixMilli(m.CreatedAt).Format("15:04:05")
					fmt.Printf("[%s] %-9s %s\n", ts, m.Role, m.Content)
				}
			}
		}
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchSessionID, "session", "", "session id to watch")
	_ = watchCmd.MarkFlagRequired("session")
	rootCmd.AddCommand(watchCmd)
}
