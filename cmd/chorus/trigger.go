package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chorus-dev/chorus/internal/trigger"
)

var (
	triggerSessionID  string
	triggerCoderID    string
	triggerProductID  string
	triggerTestID     string
	triggerFixID      string
	triggerOriginalID string
)

var triggerCmd = &cobra.Command{
	Use:   "trigger <kind>",
	Short: "Issue a pipeline trigger against a session",
	Long: "Issue one asynchronous pipeline step against existing session content.\n" +
		"Kinds: testGeneration, securityAnalysis, testSimulation, testFixValidation, securityFixVerification.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := trigger.ParseKind(args[0])
		if err != nil {
			return err
		}

		gw := newGateway()
		defer gw.Close()

		co := newCoordinator(gw)
		co.Start()
		defer co.Stop()

		co.SetActiveSession(triggerSessionID)
		if !co.Store().WaitHydrated(triggerSessionID, cfg.HTTPTimeout) {
			return fmt.Errorf("session %s did not finish loading", triggerSessionID)
		}
		if err := co.Store().LoadError(triggerSessionID); err != nil {
			return fmt.Errorf("loading session %s: %w", triggerSessionID, err)
		}
		if !co.Transport().WaitForConnected(cfg.ConnectTimeout) {
			return fmt.Errorf("could not connect to %s", cfg.ServerURL)
		}

		tr := co.Triggers()
		switch kind {
		case trigger.KindTestGeneration:
			err = tr.TestGeneration(triggerCoderID, triggerProductID)
		case trigger.KindSecurityAnalysis:
			err = tr.SecurityAnalysis(triggerCoderID, triggerProductID)
		case trigger.KindTestSimulation:
			err = tr.TestSimulation(triggerCoderID, triggerTestID)
		case trigger.KindTestFixValidation:
			err = tr.TestFixValidation(triggerFixID, triggerTestID, triggerOriginalID)
		case trigger.KindSecurityFixVerification:
			err = tr.SecurityFixVerification(triggerFixID, triggerTestID, triggerOriginalID)
		}
		if err != nil {
			return err
		}
		fmt.Printf("Issued %s for session %s\n", kind, triggerSessionID)
		return nil
	},
}

func init() {
	triggerCmd.Flags().StringVar(&triggerSessionID, "session", "", "target session id")
	triggerCmd.Flags().StringVar(&triggerCoderID, "coder-message", "", "id of the coder message")
	triggerCmd.Flags().StringVar(&triggerProductID, "product-message", "", "id of the product/requirements message (optional)")
	triggerCmd.Flags().StringVar(&triggerTestID, "result-message", "", "id of the prior test/security result message")
	triggerCmd.Flags().StringVar(&triggerFixID, "fix-message", "", "id of the coder fix message")
	triggerCmd.Flags().StringVar(&triggerOriginalID, "original-message", "", "id of the original coder message (optional)")
	_ = triggerCmd.MarkFlagRequired("session")
	rootCmd.AddCommand(triggerCmd)
}
