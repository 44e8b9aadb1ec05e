package models

import (
	"time"
)

// IssueLink tracks the mapping between a Linear ticket and its GitHub issue.
// Its presence is what makes "make visible" idempotent: a ticket with a link
// is only ever updated, never created again.
type IssueLink struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	LinearIssueID     string    `gorm:"size:64;not null;uniqueIndex:ux_issue_team,priority:1" json:"linear_issue_id"`
	LinearTeamID      string    `gorm:"size:64;not null;uniqueIndex:ux_issue_team,priority:2" json:"linear_team_id"`
	LinearIssueNumber int       `json:"linear_issue_number"`
	LinearIdentifier  string    `gorm:"size:30" json:"linear_identifier"` // e.g. ENG-42
	GitHubIssueID     int64     `gorm:"not null" json:"github_issue_id"`
	GitHubIssueNumber int       `gorm:"not null;index" json:"github_issue_number"`
	GitHubRepoID      int64     `gorm:"not null;index" json:"github_repo_id"`
	Repository        string    `gorm:"size:200;not null" json:"repository"` // owner/repo format
	IssueURL          string    `gorm:"size:500" json:"issue_url"`
	SyncLinkID        uint      `gorm:"index" json:"sync_link_id"`
	LastSyncedAt      time.Time `json:"last_synced_at"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for IssueLink
func (IssueLink) TableName() string {
	return "issue_links"
}

// MilestoneLink maps a Linear cycle to the GitHub milestone created for it in
// one repository on behalf of one team.
type MilestoneLink struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	CycleID         string     `gorm:"size:64;not null;uniqueIndex:ux_cycle_repo_team,priority:1" json:"cycle_id"`
	GitHubRepoID    int64      `gorm:"not null;uniqueIndex:ux_cycle_repo_team,priority:2" json:"github_repo_id"`
	LinearTeamID    string     `gorm:"size:64;not null;uniqueIndex:ux_cycle_repo_team,priority:3" json:"linear_team_id"`
	Repository      string     `gorm:"size:200;not null" json:"repository"`
	MilestoneID     int64      `json:"milestone_id"`
	MilestoneNumber int        `gorm:"not null" json:"milestone_number"`
	EndsAt          *time.Time `json:"ends_at,omitempty"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for MilestoneLink
func (MilestoneLink) TableName() string {
	return "milestone_links"
}
