package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chorus-dev/chorus/internal/config"
	"github.com/chorus-dev/chorus/internal/gateway"
	"github.com/chorus-dev/chorus/internal/problems"
	"github.com/chorus-dev/chorus/internal/session"
	"github.com/chorus-dev/chorus/pkg/logger"
)

// cfg holds the merged configuration, populated in PersistentPreRunE.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "chorus",
	Short: "Coordinate multi-step AI-agent workflows from the command line",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded

		level, err := logger.ParseLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		if cfg.Debug {
			level = logger.LevelDebug
		}
		logger.SetLevel(level)
		return nil
	},
}

// newGateway creates the durable session gateway client from config.
func newGateway() *gateway.HTTPClient {
	return gateway.NewHTTPClient(cfg.ServerURL, cfg.Token, cfg.HTTPTimeout)
}

// newCoordinator wires the full client core.
func newCoordinator(gw gateway.Client) *session.Coordinator {
	return session.New(cfg, gw, problems.LogSink{}, nil)
}
