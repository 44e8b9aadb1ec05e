package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"ticketsync/internal/models"
)

var (
	// ErrNotFound is returned when a keyed lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when an insert violates a uniqueness constraint.
	ErrDuplicate = errors.New("record already exists")
)

// Store is the mapping store: keyed lookups and single-row writes over the
// correlation tables. It holds no logic beyond translating gorm errors.
type Store struct {
	db *gorm.DB
}

// NewStore wraps an open database connection.
func NewStore(database *gorm.DB) *Store {
	return &Store{db: database}
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	default:
		return err
	}
}

// FindSyncLink returns the sync link for a Linear user. When teamID is empty
// any team matches and the oldest link wins.
func (s *Store) FindSyncLink(ctx context.Context, linearUserID, teamID string) (*models.SyncLink, error) {
	query := s.db.WithContext(ctx).Where("linear_user_id = ?", linearUserID)
	if teamID != "" {
		query = query.Where("linear_team_id = ?", teamID)
	}
	var link models.SyncLink
	if err := query.Order("id ASC").First(&link).Error; err != nil {
		return nil, translate(err)
	}
	return &link, nil
}

// GetSyncLink returns the sync link with the given id.
func (s *Store) GetSyncLink(ctx context.Context, id uint) (*models.SyncLink, error) {
	var link models.SyncLink
	if err := s.db.WithContext(ctx).First(&link, id).Error; err != nil {
		return nil, translate(err)
	}
	return &link, nil
}

// CreateSyncLink inserts a sync link.
func (s *Store) CreateSyncLink(ctx context.Context, link *models.SyncLink) error {
	return translate(s.db.WithContext(ctx).Create(link).Error)
}

// ListSyncLinks returns all sync links ordered by id.
func (s *Store) ListSyncLinks(ctx context.Context) ([]models.SyncLink, error) {
	var links []models.SyncLink
	err := s.db.WithContext(ctx).Order("id ASC").Find(&links).Error
	return links, translate(err)
}

// FindIssueLink returns the link for a ticket within a team.
func (s *Store) FindIssueLink(ctx context.Context, ticketID, teamID string) (*models.IssueLink, error) {
	var link models.IssueLink
	err := s.db.WithContext(ctx).
		Where("linear_issue_id = ? AND linear_team_id = ?", ticketID, teamID).
		First(&link).Error
	if err != nil {
		return nil, translate(err)
	}
	return &link, nil
}

// FindIssueLinkByTicket returns the oldest link of a ticket in any team.
// Ticket ids are workspace-unique, so this is the lookup for events that
// carry no team.
func (s *Store) FindIssueLinkByTicket(ctx context.Context, ticketID string) (*models.IssueLink, error) {
	var link models.IssueLink
	err := s.db.WithContext(ctx).
		Where("linear_issue_id = ?", ticketID).
		Order("id ASC").
		First(&link).Error
	if err != nil {
		return nil, translate(err)
	}
	return &link, nil
}

// CreateIssueLink persists a new issue link. A second link for the same
// ticket and team fails with ErrDuplicate.
func (s *Store) CreateIssueLink(ctx context.Context, link *models.IssueLink) error {
	if link.LastSyncedAt.IsZero() {
		link.LastSyncedAt = time.Now()
	}
	return translate(s.db.WithContext(ctx).Create(link).Error)
}

// DeleteIssueLink removes an issue link by id.
func (s *Store) DeleteIssueLink(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.IssueLink{}, id)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: issue link %d", ErrNotFound, id)
	}
	return nil
}

// TouchIssueLink records that the link was just synced.
func (s *Store) TouchIssueLink(ctx context.Context, id uint) error {
	return translate(s.db.WithContext(ctx).Model(&models.IssueLink{}).
		Where("id = ?", id).
		Update("last_synced_at", time.Now()).Error)
}

// ListIssueLinks returns the most recently synced links first. limit <= 0
// means no limit.
func (s *Store) ListIssueLinks(ctx context.Context, limit int) ([]models.IssueLink, error) {
	var links []models.IssueLink
	query := s.db.WithContext(ctx).Order("last_synced_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&links).Error
	return links, translate(err)
}

// FindMilestoneLink returns the milestone created for a cycle in a repo on
// behalf of a team.
func (s *Store) FindMilestoneLink(ctx context.Context, cycleID string, repoID int64, teamID string) (*models.MilestoneLink, error) {
	var link models.MilestoneLink
	err := s.db.WithContext(ctx).
		Where("cycle_id = ? AND github_repo_id = ? AND linear_team_id = ?", cycleID, repoID, teamID).
		First(&link).Error
	if err != nil {
		return nil, translate(err)
	}
	return &link, nil
}

// FindMilestoneLinksByCycle returns every milestone linked to a cycle.
func (s *Store) FindMilestoneLinksByCycle(ctx context.Context, cycleID string) ([]models.MilestoneLink, error) {
	var links []models.MilestoneLink
	err := s.db.WithContext(ctx).Where("cycle_id = ?", cycleID).Order("id ASC").Find(&links).Error
	return links, translate(err)
}

// CreateMilestoneLink persists a new milestone link.
func (s *Store) CreateMilestoneLink(ctx context.Context, link *models.MilestoneLink) error {
	return translate(s.db.WithContext(ctx).Create(link).Error)
}

// ListMilestoneLinks returns all milestone links ordered by id.
func (s *Store) ListMilestoneLinks(ctx context.Context) ([]models.MilestoneLink, error) {
	var links []models.MilestoneLink
	err := s.db.WithContext(ctx).Order("id ASC").Find(&links).Error
	return links, translate(err)
}

// FindIdentityMapping returns the GitHub identity of a Linear user.
func (s *Store) FindIdentityMapping(ctx context.Context, linearUserID string) (*models.IdentityMapping, error) {
	var m models.IdentityMapping
	err := s.db.WithContext(ctx).Where("linear_user_id = ?", linearUserID).Order("id ASC").First(&m).Error
	if err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

// FindIdentityByLinearUsername looks a mapping up by Linear display name,
// case-insensitively.
func (s *Store) FindIdentityByLinearUsername(ctx context.Context, username string) (*models.IdentityMapping, error) {
	var m models.IdentityMapping
	err := s.db.WithContext(ctx).Where("LOWER(linear_username) = LOWER(?)", username).Order("id ASC").First(&m).Error
	if err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

// CreateIdentityMapping persists a new identity mapping.
func (s *Store) CreateIdentityMapping(ctx context.Context, m *models.IdentityMapping) error {
	return translate(s.db.WithContext(ctx).Create(m).Error)
}

// ListIdentityMappings returns all identity mappings ordered by id.
func (s *Store) ListIdentityMappings(ctx context.Context) ([]models.IdentityMapping, error) {
	var out []models.IdentityMapping
	err := s.db.WithContext(ctx).Order("id ASC").Find(&out).Error
	return out, translate(err)
}

// Counts summarises the size of each mapping table.
type Counts struct {
	SyncLinks      int64 `json:"sync_links"`
	IssueLinks     int64 `json:"issue_links"`
	MilestoneLinks int64 `json:"milestone_links"`
	Identities     int64 `json:"identities"`
}

// Count returns row counts for the mapping tables.
func (s *Store) Count(ctx context.Context) (Counts, error) {
	var c Counts
	database := s.db.WithContext(ctx)
	if err := database.Model(&models.SyncLink{}).Count(&c.SyncLinks).Error; err != nil {
		return c, err
	}
	if err := database.Model(&models.IssueLink{}).Count(&c.IssueLinks).Error; err != nil {
		return c, err
	}
	if err := database.Model(&models.MilestoneLink{}).Count(&c.MilestoneLinks).Error; err != nil {
		return c, err
	}
	if err := database.Model(&models.IdentityMapping{}).Count(&c.Identities).Error; err != nil {
		return c, err
	}
	return c, nil
}
