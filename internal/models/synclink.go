package models

import (
	"strings"
	"time"
)

// SyncLink ties one Linear user and team to one GitHub user and repository.
// Links are created during onboarding; the sync engine only reads them.
type SyncLink struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	LinearUserID   string `gorm:"size:64;not null;index;uniqueIndex:ux_sync_link,priority:1" json:"linear_user_id"`
	GitHubUserID   int64  `gorm:"not null;uniqueIndex:ux_sync_link,priority:2" json:"github_user_id"`
	LinearTeamID   string `gorm:"size:64;not null;uniqueIndex:ux_sync_link,priority:3" json:"linear_team_id"`
	GitHubRepoID   int64  `gorm:"not null;uniqueIndex:ux_sync_link,priority:4" json:"github_repo_id"`
	Repository     string `gorm:"size:200;not null" json:"repository"` // owner/repo format
	LinearUsername string `gorm:"size:100" json:"linear_username,omitempty"`
	GitHubUsername string `gorm:"size:100" json:"github_username,omitempty"`
	// PublicLabelID is the Linear label that marks a ticket as visible on GitHub.
	PublicLabelID string    `gorm:"size:64" json:"public_label_id"`
	LinearAPIKey  string    `gorm:"size:200" json:"-"`
	GitHubToken   string    `gorm:"size:200" json:"-"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for SyncLink
func (SyncLink) TableName() string {
	return "sync_links"
}

// Owner returns the owner half of Repository.
func (l *SyncLink) Owner() string {
	owner, _, _ := strings.Cut(l.Repository, "/")
	return owner
}

// RepoName returns the name half of Repository.
func (l *SyncLink) RepoName() string {
	_, name, _ := strings.Cut(l.Repository, "/")
	return name
}

// IdentityMapping records that a Linear user and a GitHub user are the same
// person. Used to translate assignees and mentions.
type IdentityMapping struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	LinearUserID   string    `gorm:"size:64;not null;index;uniqueIndex:ux_identity,priority:1" json:"linear_user_id"`
	GitHubUserID   int64     `gorm:"not null;uniqueIndex:ux_identity,priority:2" json:"github_user_id"`
	LinearUsername string    `gorm:"size:100;index" json:"linear_username,omitempty"`
	GitHubUsername string    `gorm:"size:100;not null" json:"github_username"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for IdentityMapping
func (IdentityMapping) TableName() string {
	return "identity_mappings"
}
