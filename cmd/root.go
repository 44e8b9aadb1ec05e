package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ticketsync/internal/db"
)

var (
	Version    = "0.1.0"
	jsonOutput bool
	configFile string
	dbPath     string
)

// commandsExemptFromDB lists commands that don't require database initialization
var commandsExemptFromDB = map[string]bool{
	"init":        true,
	"version":     true,
	"help":        true,
	"completion":  true,
	"credentials": true,
	"show":        true,
}

var rootCmd = &cobra.Command{
	Use:   "ticketsync",
	Short: "ticketsync - keeps Linear tickets and GitHub issues in step",
	Long: `ticketsync mirrors public Linear tickets onto GitHub issues.

A ticket becomes public when it carries the sync link's public label. From
then on its title, description, labels, cycle, state, assignee, priority,
estimate and comments are reconciled onto the linked GitHub issue as Linear
reports changes through its webhook.

QUICK START:
  ticketsync init                                  # Create .ticketsync/ and the database
  ticketsync config credentials ...                # Store secrets in the system keyring
  ticketsync links add --linear-user <id> ...      # Link a Linear team to a GitHub repo
  ticketsync identity add <linear-id> <login>      # Map a Linear user to a GitHub login
  ticketsync serve                                 # Receive webhooks on /webhooks/linear
  ticketsync replay payload.json                   # Run a stored webhook through the engine
  ticketsync status                                # Counts and recent syncs

CONFIGURATION: ticketsync.yaml in .ticketsync/ or the current directory, or
--config. Every key can be overridden with TICKETSYNC_<KEY>, for example
TICKETSYNC_SERVER_ADDR.

JSON OUTPUT: Add --json flag to any command for machine-readable output.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initConfig(); err != nil {
			return err
		}
		if commandsExemptFromDB[cmd.Name()] {
			return nil
		}
		return db.EnsureInitialized(settingsDBPath())
	},
}

func Execute() {
	defer db.CloseDB()

	if err := rootCmd.Execute(); err != nil {
		if jsonOutput {
			OutputJSON(map[string]interface{}{"error": true, "message": err.Error()})
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default .ticketsync/ticketsync.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default .ticketsync/db.sqlite)")
	rootCmd.Version = Version
}

func OutputJSON(data interface{}) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	encoder.Encode(data)
}

func IsJSONOutput() bool {
	return jsonOutput
}
