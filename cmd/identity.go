package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ticketsync/internal/db"
	"ticketsync/internal/models"
	"ticketsync/internal/output"
)

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Map Linear users to GitHub accounts",
}

var identityAddCmd = &cobra.Command{
	Use:   "add <linear-user-id> <github-login>",
	Short: "Record that a Linear user and a GitHub account are the same person",
	Long: `Record an identity mapping. Assignees and @mentions of the Linear user are
translated to the GitHub login when tickets and comments are mirrored.`,
	Args: cobra.ExactArgs(2),
	RunE: runIdentityAdd,
}

var identityListCmd = &cobra.Command{
	Use:   "list",
	Short: "List identity mappings",
	RunE:  runIdentityList,
}

var (
	identityGitHubUserID   int64
	identityLinearUsername string
)

func init() {
	rootCmd.AddCommand(identityCmd)
	identityCmd.AddCommand(identityAddCmd)
	identityCmd.AddCommand(identityListCmd)

	identityAddCmd.Flags().Int64Var(&identityGitHubUserID, "github-user-id", 0, "GitHub user id (required)")
	identityAddCmd.Flags().StringVar(&identityLinearUsername, "linear-username", "", "Linear username, used to translate @mentions")
	identityAddCmd.MarkFlagRequired("github-user-id")
}

func runIdentityAdd(cmd *cobra.Command, args []string) error {
	login := strings.TrimPrefix(strings.TrimSpace(args[1]), "@")
	if login == "" {
		return fmt.Errorf("GitHub login is required")
	}
	m := &models.IdentityMapping{
		LinearUserID:   strings.TrimSpace(args[0]),
		LinearUsername: identityLinearUsername,
		GitHubUserID:   identityGitHubUserID,
		GitHubUsername: login,
	}
	if err := db.NewStore(db.GetDB()).CreateIdentityMapping(cmd.Context(), m); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			return fmt.Errorf("identity %s -> %d already recorded", m.LinearUserID, m.GitHubUserID)
		}
		return fmt.Errorf("failed to record identity: %w", err)
	}

	output.New(IsJSONOutput()).Success(fmt.Sprintf("Identity recorded: %s -> @%s", m.LinearUserID, m.GitHubUsername))
	return nil
}

func runIdentityList(cmd *cobra.Command, args []string) error {
	ids, err := db.NewStore(db.GetDB()).ListIdentityMappings(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list identities: %w", err)
	}
	output.New(IsJSONOutput()).IdentityList(ids)
	return nil
}
