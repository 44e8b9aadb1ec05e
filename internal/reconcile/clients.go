package reconcile

import (
	"context"
	"time"

	"ticketsync/internal/models"
)

// Store is the mapping store the engine reads and writes. Lookups that match
// nothing return an error wrapping db.ErrNotFound.
type Store interface {
	FindSyncLink(ctx context.Context, linearUserID, teamID string) (*models.SyncLink, error)
	GetSyncLink(ctx context.Context, id uint) (*models.SyncLink, error)

	FindIssueLink(ctx context.Context, ticketID, teamID string) (*models.IssueLink, error)
	FindIssueLinkByTicket(ctx context.Context, ticketID string) (*models.IssueLink, error)
	CreateIssueLink(ctx context.Context, link *models.IssueLink) error
	DeleteIssueLink(ctx context.Context, id uint) error
	TouchIssueLink(ctx context.Context, id uint) error

	FindMilestoneLink(ctx context.Context, cycleID string, repoID int64, teamID string) (*models.MilestoneLink, error)
	FindMilestoneLinksByCycle(ctx context.Context, cycleID string) ([]models.MilestoneLink, error)
	CreateMilestoneLink(ctx context.Context, link *models.MilestoneLink) error

	FindIdentityMapping(ctx context.Context, linearUserID string) (*models.IdentityMapping, error)
	FindIdentityByLinearUsername(ctx context.Context, username string) (*models.IdentityMapping, error)
	CreateIdentityMapping(ctx context.Context, m *models.IdentityMapping) error
}

// IssueRequest carries the issue fields to create or patch. Nil fields are
// left untouched.
type IssueRequest struct {
	Title       *string
	Body        *string
	State       *string
	StateReason *string
	Assignees   []string
}

// RemoteIssue is the part of a GitHub issue the engine reads back.
type RemoteIssue struct {
	ID        int64
	Number    int
	URL       string
	State     string
	Assignees []string
}

// Label is a GitHub label definition.
type Label struct {
	Name        string
	Color       string
	Description string
}

// MilestoneRequest describes a GitHub milestone.
type MilestoneRequest struct {
	Title       string
	State       string
	Description string
	DueOn       *time.Time
}

// RemoteMilestone identifies a created milestone.
type RemoteMilestone struct {
	ID     int64
	Number int
}

// Counterpart is the GitHub side of one sync link, bound to its repository.
// Every method returns an error for a non-2xx response.
type Counterpart interface {
	CreateIssue(ctx context.Context, req IssueRequest) (*RemoteIssue, error)
	PatchIssue(ctx context.Context, number int, req IssueRequest) error
	GetIssue(ctx context.Context, number int) (*RemoteIssue, error)

	// CreateLabel creates the label in the repository, succeeding when it
	// already exists.
	CreateLabel(ctx context.Context, label Label) error
	ApplyLabels(ctx context.Context, number int, names []string) error
	DeleteLabel(ctx context.Context, number int, name string) error

	CreateMilestone(ctx context.Context, req MilestoneRequest) (*RemoteMilestone, error)
	UpdateMilestone(ctx context.Context, number int, req MilestoneRequest) error
	// SetIssueMilestone sets the issue's milestone, or clears it when
	// milestone is nil.
	SetIssueMilestone(ctx context.Context, number int, milestone *int) error

	CreateComment(ctx context.Context, number int, body string) error

	RemoveAssignees(ctx context.Context, number int, logins []string) error
	AddAssignees(ctx context.Context, number int, logins []string) error
}

// Attachment is a link shown on the Linear ticket.
type Attachment struct {
	Title    string
	Subtitle string
	URL      string
}

// Source is the Linear side of one sync link.
type Source interface {
	LabelName(ctx context.Context, labelID string) (string, error)
	Cycle(ctx context.Context, cycleID string) (*models.CycleData, error)
	IssueComments(ctx context.Context, ticketID string) ([]models.CommentData, error)
	CreateAttachment(ctx context.Context, ticketID string, a Attachment) error
}

// Credentials are the API keys used for one event.
type Credentials struct {
	LinearAPIKey string
	GitHubToken  string
}

// ClientFactory builds the clients for a resolved sync link.
type ClientFactory interface {
	Counterpart(link *models.SyncLink, creds Credentials) Counterpart
	Source(link *models.SyncLink, creds Credentials) Source
}
