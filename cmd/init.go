package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"ticketsync/internal/db"
	"ticketsync/internal/models"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize ticketsync in the current directory",
	Long: `Create .ticketsync/ with the link database and a default ticketsync.yaml.

An existing ticketsync.yaml is left untouched.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Force reinitialize (drops all links)")
}

func runInit(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}
	dataDir := filepath.Join(cwd, db.DataDir)
	path := filepath.Join(dataDir, db.DBFileName)
	if dbPath != "" {
		path = dbPath
	}

	if _, err := os.Stat(path); err == nil {
		if !forceInit {
			return fmt.Errorf("already initialized. Use --force to reinitialize")
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to remove existing database: %w", err)
		}
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	database, err := db.InitDB(path)
	if err != nil {
		return err
	}

	if err := database.Save(&models.Config{Key: models.ConfigSchemaVersion, Value: db.SchemaVersion}).Error; err != nil {
		return fmt.Errorf("failed to save schema version: %w", err)
	}
	if err := database.Save(&models.Config{Key: models.ConfigInitializedAt, Value: time.Now().Format(time.RFC3339)}).Error; err != nil {
		return fmt.Errorf("failed to save initialization time: %w", err)
	}

	configPath := filepath.Join(dataDir, ConfigFileName)
	if err := writeDefaultConfig(configPath); err != nil {
		return err
	}

	if IsJSONOutput() {
		OutputJSON(map[string]interface{}{"success": true, "database": path, "config": configPath})
		return nil
	}

	fmt.Printf("ticketsync initialized in %s/\n", db.DataDir)
	fmt.Println("\nNext steps:")
	fmt.Println("  ticketsync config credentials --webhook-secret <secret>   Store the webhook secret")
	fmt.Println("  ticketsync links add ...                                  Link a Linear team to a repository")
	fmt.Println("  ticketsync serve                                          Start receiving webhooks")
	return nil
}
