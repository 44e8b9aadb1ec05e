package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"ticketsync/internal/output"
	"ticketsync/internal/reconcile"
	"ticketsync/internal/webhook"
)

var replayCmd = &cobra.Command{
	Use:   "replay <payload.json|->",
	Short: "Reconcile a stored webhook payload",
	Long: `Run one Linear webhook payload through the engine, exactly as the server
would after signature verification, and print the per-field report.

Use - to read the payload from stdin. Replaying calls the real Linear and
GitHub APIs.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	var (
		body []byte
		err  error
	)
	if args[0] == "-" {
		body, err = io.ReadAll(cmd.InOrStdin())
	} else {
		body, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("failed to read payload: %w", err)
	}

	ev, err := webhook.ParseEvent(body)
	if err != nil {
		return fmt.Errorf("failed to parse payload: %w", err)
	}

	engine, _, closer, err := newEngine(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	report, handleErr := engine.Handle(cmd.Context(), ev)
	status := reconcile.HTTPStatus(handleErr)

	output.New(IsJSONOutput()).Report(report, status, handleErr)
	if status >= 500 {
		return fmt.Errorf("event not reconciled: %w", handleErr)
	}
	return nil
}
