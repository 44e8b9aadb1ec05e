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

var linksCmd = &cobra.Command{
	Use:   "links",
	Short: "Manage sync links and inspect issue and milestone links",
}

var linksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sync links",
	RunE:  runLinksList,
}

var linksAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Link a Linear user and team to a GitHub repository",
	Long: `Create a sync link. Tickets of the team carrying the public label are
mirrored into the repository using the link's credentials.

Example:
  ticketsync links add --linear-user 7c1f... --team 2a9b... \
    --repo acme/app --repo-id 123456 \
    --github-user-id 98765 --github-username ada \
    --public-label 5d3e... --linear-api-key lin_api_... --github-token ghp_...`,
	RunE: runLinksAdd,
}

var linksIssuesCmd = &cobra.Command{
	Use:   "issues",
	Short: "List issue links, most recently synced first",
	RunE:  runLinksIssues,
}

var linksMilestonesCmd = &cobra.Command{
	Use:   "milestones",
	Short: "List milestone links",
	RunE:  runLinksMilestones,
}

var (
	linkLinearUser     string
	linkLinearUsername string
	linkTeam           string
	linkRepo           string
	linkRepoID         int64
	linkGitHubUserID   int64
	linkGitHubUsername string
	linkPublicLabel    string
	linkLinearAPIKey   string
	linkGitHubToken    string
	linksLimit         int
)

func init() {
	rootCmd.AddCommand(linksCmd)
	linksCmd.AddCommand(linksListCmd)
	linksCmd.AddCommand(linksAddCmd)
	linksCmd.AddCommand(linksIssuesCmd)
	linksCmd.AddCommand(linksMilestonesCmd)

	linksAddCmd.Flags().StringVar(&linkLinearUser, "linear-user", "", "Linear user id (required)")
	linksAddCmd.Flags().StringVar(&linkLinearUsername, "linear-username", "", "Linear display name")
	linksAddCmd.Flags().StringVar(&linkTeam, "team", "", "Linear team id (required)")
	linksAddCmd.Flags().StringVar(&linkRepo, "repo", "", "GitHub repository, owner/repo (required)")
	linksAddCmd.Flags().Int64Var(&linkRepoID, "repo-id", 0, "GitHub repository id (required)")
	linksAddCmd.Flags().Int64Var(&linkGitHubUserID, "github-user-id", 0, "GitHub user id (required)")
	linksAddCmd.Flags().StringVar(&linkGitHubUsername, "github-username", "", "GitHub login (required)")
	linksAddCmd.Flags().StringVar(&linkPublicLabel, "public-label", "", "Linear label id that marks tickets public (required)")
	linksAddCmd.Flags().StringVar(&linkLinearAPIKey, "linear-api-key", "", "Linear API key used for this link")
	linksAddCmd.Flags().StringVar(&linkGitHubToken, "github-token", "", "GitHub token used for this link")
	for _, name := range []string{"linear-user", "team", "repo", "repo-id", "github-user-id", "github-username", "public-label"} {
		linksAddCmd.MarkFlagRequired(name)
	}

	linksIssuesCmd.Flags().IntVarP(&linksLimit, "limit", "n", 20, "Maximum number of issue links to show")
}

// newSyncLink validates the flags of links add.
func newSyncLink() (*models.SyncLink, error) {
	owner, name, ok := strings.Cut(linkRepo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("repository must be in owner/repo format")
	}
	if linkRepoID <= 0 || linkGitHubUserID <= 0 {
		return nil, fmt.Errorf("--repo-id and --github-user-id must be positive")
	}
	return &models.SyncLink{
		LinearUserID:   linkLinearUser,
		LinearUsername: linkLinearUsername,
		LinearTeamID:   linkTeam,
		GitHubRepoID:   linkRepoID,
		Repository:     linkRepo,
		GitHubUserID:   linkGitHubUserID,
		GitHubUsername: linkGitHubUsername,
		PublicLabelID:  linkPublicLabel,
		LinearAPIKey:   linkLinearAPIKey,
		GitHubToken:    linkGitHubToken,
	}, nil
}

func runLinksAdd(cmd *cobra.Command, args []string) error {
	link, err := newSyncLink()
	if err != nil {
		return err
	}
	store := db.NewStore(db.GetDB())
	if err := store.CreateSyncLink(cmd.Context(), link); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			return fmt.Errorf("a sync link for this user, team and repository already exists")
		}
		return fmt.Errorf("failed to create sync link: %w", err)
	}

	// The link owner is also an identity; assignee and mention translation
	// relies on it.
	identity := &models.IdentityMapping{
		LinearUserID:   link.LinearUserID,
		LinearUsername: link.LinearUsername,
		GitHubUserID:   link.GitHubUserID,
		GitHubUsername: link.GitHubUsername,
	}
	if err := store.CreateIdentityMapping(cmd.Context(), identity); err != nil && !errors.Is(err, db.ErrDuplicate) {
		return fmt.Errorf("failed to record identity: %w", err)
	}

	if IsJSONOutput() {
		OutputJSON(map[string]interface{}{"success": true, "sync_link": link})
	} else {
		fmt.Printf("Sync link %d created: team %s -> %s\n", link.ID, link.LinearTeamID, link.Repository)
		if link.LinearAPIKey == "" || link.GitHubToken == "" {
			fmt.Println("Note: the link has no credentials of its own; set overrides with 'ticketsync config credentials'.")
		}
	}
	return nil
}

func runLinksList(cmd *cobra.Command, args []string) error {
	links, err := db.NewStore(db.GetDB()).ListSyncLinks(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list sync links: %w", err)
	}
	output.New(IsJSONOutput()).SyncLinkList(links)
	return nil
}

func runLinksIssues(cmd *cobra.Command, args []string) error {
	links, err := db.NewStore(db.GetDB()).ListIssueLinks(cmd.Context(), linksLimit)
	if err != nil {
		return fmt.Errorf("failed to list issue links: %w", err)
	}
	output.New(IsJSONOutput()).IssueLinkList(links, "Issue links")
	return nil
}

func runLinksMilestones(cmd *cobra.Command, args []string) error {
	links, err := db.NewStore(db.GetDB()).ListMilestoneLinks(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list milestone links: %w", err)
	}
	output.New(IsJSONOutput()).MilestoneLinkList(links)
	return nil
}
