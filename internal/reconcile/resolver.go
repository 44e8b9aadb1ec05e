package reconcile

import (
	"context"
	"errors"
	"fmt"

	"ticketsync/internal/db"
	"ticketsync/internal/models"
)

// Binding is a resolved sync link plus the credentials to use with it.
type Binding struct {
	Link        *models.SyncLink
	Credentials Credentials
}

// Resolver finds the sync link that governs an event's actor.
type Resolver struct {
	store     Store
	overrides Credentials
}

// NewResolver creates a resolver. Non-empty override credentials replace the
// per-link keys for every link.
func NewResolver(store Store, overrides Credentials) *Resolver {
	return &Resolver{store: store, overrides: overrides}
}

// Resolve returns the sync link for actorID. scopeID narrows the match to one
// team when present; comment events carry no team, so any link of the actor
// is accepted then.
func (r *Resolver) Resolve(ctx context.Context, actorID, scopeID string) (*Binding, error) {
	if actorID == "" {
		return nil, fmt.Errorf("%w: event has no actor", ErrNoLinkFound)
	}
	link, err := r.store.FindSyncLink(ctx, actorID, scopeID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%w: actor %s team %q", ErrNoLinkFound, actorID, scopeID)
	}
	if err != nil {
		return nil, fmt.Errorf("looking up sync link: %w", err)
	}

	return r.Bind(link), nil
}

// Bind pairs link with its credentials, applying the overrides.
func (r *Resolver) Bind(link *models.SyncLink) *Binding {
	creds := Credentials{LinearAPIKey: link.LinearAPIKey, GitHubToken: link.GitHubToken}
	if r.overrides.LinearAPIKey != "" {
		creds.LinearAPIKey = r.overrides.LinearAPIKey
	}
	if r.overrides.GitHubToken != "" {
		creds.GitHubToken = r.overrides.GitHubToken
	}
	return &Binding{Link: link, Credentials: creds}
}

// githubLogin translates a Linear user to a GitHub login. The sync link's
// own user gets an identity mapping created on first use; anyone else must
// already be mapped. ok is false when no mapping exists.
func githubLogin(ctx context.Context, store Store, link *models.SyncLink, linearUserID string) (login string, ok bool, err error) {
	m, err := store.FindIdentityMapping(ctx, linearUserID)
	if err == nil {
		return m.GitHubUsername, true, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return "", false, fmt.Errorf("looking up identity %s: %w", linearUserID, err)
	}

	if linearUserID != link.LinearUserID || link.GitHubUsername == "" {
		return "", false, nil
	}
	m = &models.IdentityMapping{
		LinearUserID:   link.LinearUserID,
		GitHubUserID:   link.GitHubUserID,
		LinearUsername: link.LinearUsername,
		GitHubUsername: link.GitHubUsername,
	}
	if err := store.CreateIdentityMapping(ctx, m); err != nil && !errors.Is(err, db.ErrDuplicate) {
		return "", false, fmt.Errorf("creating identity %s: %w", linearUserID, err)
	}
	return link.GitHubUsername, true, nil
}
