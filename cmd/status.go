package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"ticketsync/internal/db"
	"ticketsync/internal/models"
	"ticketsync/internal/output"
)

var statusRecent int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show link counts and recent syncs",
	Long:  `Show how many sync links, issue links, milestone links and identities are stored, and the most recently synced issues.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().IntVarP(&statusRecent, "recent", "n", 5, "Number of recent syncs to show")
}

func runStatus(cmd *cobra.Command, args []string) error {
	store := db.NewStore(db.GetDB())
	ctx := cmd.Context()

	counts, err := store.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count links: %w", err)
	}
	recent, err := store.ListIssueLinks(ctx, statusRecent)
	if err != nil {
		return fmt.Errorf("failed to list recent syncs: %w", err)
	}
	initializedAt, _ := db.GetConfig(models.ConfigInitializedAt)

	if IsJSONOutput() {
		OutputJSON(map[string]interface{}{
			"counts":         counts,
			"recent_syncs":   recent,
			"initialized_at": initializedAt,
		})
		return nil
	}

	f := output.New(false)
	fmt.Printf("ticketsync Status\n")
	fmt.Printf("=================\n\n")
	f.Counts(counts)

	if len(recent) > 0 {
		fmt.Println()
		f.IssueLinkList(recent, "Recent Syncs")
	}

	if counts.SyncLinks == 0 {
		fmt.Printf("\nTip: Run 'ticketsync links add' to link a Linear team to a repository.\n")
	}
	return nil
}
