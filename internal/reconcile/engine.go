package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ticketsync/internal/db"
	"ticketsync/internal/models"
)

// Options configure the engine. They come from the service configuration;
// the engine reads nothing from the environment itself.
type Options struct {
	// LabelAllowList names the Linear labels mirrored to GitHub. Matching
	// ignores case. An empty list mirrors none.
	LabelAllowList []string
	// InternalMarkerPrefix marks comments that must stay on Linear.
	InternalMarkerPrefix string
	// SyntheticIDMarker is the id suffix of comments the bot itself created
	// on Linear.
	SyntheticIDMarker string
	// TitleTicketID prefixes GitHub issue titles with the Linear identifier.
	TitleTicketID bool
	// BodyFooter appends a back-link footer to GitHub issue bodies.
	BodyFooter bool
	// AttachmentTitle is the title of the back-reference on the Linear ticket.
	AttachmentTitle string

	Policy      CallPolicy
	Overrides   Credentials
	Transformer Transformer
	Now         func() time.Time
}

// DefaultOptions returns the defaults used when no configuration overrides
// them.
func DefaultOptions() Options {
	return Options{
		LabelAllowList:       []string{"bug", "enhancement", "documentation"},
		InternalMarkerPrefix: "[internal]",
		SyntheticIDMarker:    "decafbad",
		TitleTicketID:        true,
		BodyFooter:           true,
		AttachmentTitle:      "GitHub issue",
		Policy:               DefaultCallPolicy(),
	}
}

// Engine reconciles Linear events onto GitHub. It is safe for concurrent use;
// each Handle call is an independent unit of work.
type Engine struct {
	store    Store
	clients  ClientFactory
	resolver *Resolver
	exec     *Executor
	content  Transformer
	opts     Options
	locks    *keyLock
	logger   *slog.Logger
}

// New creates an engine.
func New(store Store, clients ClientFactory, logger *slog.Logger, opts Options) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	content := opts.Transformer
	if content == nil {
		content = NewMentionRewriter(store)
	}
	return &Engine{
		store:    store,
		clients:  clients,
		resolver: NewResolver(store, opts.Overrides),
		exec:     NewExecutor(opts.Policy, logger),
		content:  content,
		opts:     opts,
		locks:    newKeyLock(),
		logger:   logger,
	}
}

// run is the state of one event while it is being reconciled.
type run struct {
	e      *Engine
	ev     *models.Event
	link   *models.SyncLink
	gh     Counterpart
	src    Source
	logger *slog.Logger

	issueLink *models.IssueLink
	// created is set once this event created the counterpart issue.
	created bool
}

// Handle reconciles one event. The report describes what every reconciler
// did. The error is ErrNoLinkFound when the event was dropped, or the join
// of every reconciler's fatal error.
func (e *Engine) Handle(ctx context.Context, ev *models.Event) (*Report, error) {
	report := &Report{EventID: uuid.NewString()}
	logger := e.logger.With(
		"event_id", report.EventID,
		"action", string(ev.Action),
		"entity", string(ev.Entity),
		"actor_id", ev.ActorID,
	)

	binding, err := e.resolver.Resolve(ctx, ev.ActorID, ev.ScopeID)
	if err != nil {
		if errors.Is(err, ErrNoLinkFound) {
			logger.Info("event dropped", "reason", err.Error())
			report.add(Outcome{Field: "event", Kind: Skipped, Message: err.Error()})
			return report, err
		}
		logger.Error("resolving sync link failed", "error", err)
		return report, fatal("event", err)
	}

	r := &run{
		e:    e,
		ev:   ev,
		link: binding.Link,
		gh:   e.clients.Counterpart(binding.Link, binding.Credentials),
		src:  e.clients.Source(binding.Link, binding.Credentials),
		logger: logger.With(
			"sync_link_id", binding.Link.ID,
			"repository", binding.Link.Repository,
		),
	}
	if ev.Issue != nil {
		r.logger = r.logger.With("ticket_id", ev.Issue.Identifier)
	}

	steps, reason := classify(ev)
	if len(steps) == 0 {
		r.logger.Info("event skipped", "reason", reason)
		report.add(Outcome{Field: "event", Kind: Skipped, Message: reason})
		return report, nil
	}

	var fatals []error
	for _, s := range steps {
		out, err := s.reconcile(ctx, r)
		out.Field = s.field
		report.add(out)
		r.logger.Info("reconciled", "field", s.field, "outcome", out.Kind.String(), "message", out.Message)
		if err != nil {
			r.logger.Error("reconciler aborted", "field", s.field, "error", err)
			var f *FatalError
			if !errors.As(err, &f) {
				err = fatal(s.field, err)
			}
			fatals = append(fatals, err)
		}
	}
	return report, errors.Join(fatals...)
}

// teamID is the team scope used for issue link lookups.
func (r *run) teamID() string {
	if r.ev.Issue != nil && r.ev.Issue.TeamID != "" {
		return r.ev.Issue.TeamID
	}
	return r.link.LinearTeamID
}

// findIssueLink loads the issue link of ticketID, caching it for the run. A
// missing link is (nil, nil).
func (r *run) findIssueLink(ctx context.Context, ticketID string) (*models.IssueLink, error) {
	if r.issueLink != nil && r.issueLink.LinearIssueID == ticketID {
		return r.issueLink, nil
	}
	link, err := r.e.store.FindIssueLink(ctx, ticketID, r.teamID())
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up issue link: %w", err)
	}
	r.issueLink = link
	return link, nil
}

// rebind switches the run to the sync link that owns link, so calls go to
// that link's repository with its credentials. Comment events carry no team,
// so the actor's resolved link may belong to another team. Links stored
// without a sync link id keep the resolved one.
func (r *run) rebind(ctx context.Context, link *models.IssueLink) error {
	r.issueLink = link
	if link.SyncLinkID == 0 || link.SyncLinkID == r.link.ID {
		return nil
	}
	owner, err := r.e.store.GetSyncLink(ctx, link.SyncLinkID)
	if errors.Is(err, db.ErrNotFound) {
		r.logger.Warn("issue link names a missing sync link", "sync_link_id", link.SyncLinkID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("looking up sync link %d: %w", link.SyncLinkID, err)
	}
	b := r.e.resolver.Bind(owner)
	r.link = b.Link
	r.gh = r.e.clients.Counterpart(b.Link, b.Credentials)
	r.src = r.e.clients.Source(b.Link, b.Credentials)
	r.logger = r.logger.With("sync_link_id", owner.ID, "repository", owner.Repository)
	return nil
}

// linkedIssue is the common preamble of the update reconcilers: the ticket
// must be linked, and must not have been created by this same event.
func (r *run) linkedIssue(ctx context.Context) (*models.IssueLink, *Outcome, error) {
	if r.created {
		out := skipped(SkippedAlreadySynced, "covered by issue creation")
		return nil, &out, nil
	}
	link, err := r.findIssueLink(ctx, r.ev.Issue.ID)
	if err != nil {
		out := failed("issue link lookup failed")
		return nil, &out, err
	}
	if link == nil {
		out := skipped(SkippedNoLink, "ticket %s is not synced", r.ev.Issue.Identifier)
		return nil, &out, nil
	}
	return link, nil, nil
}

func (r *run) touch(ctx context.Context, link *models.IssueLink) {
	if err := r.e.store.TouchIssueLink(ctx, link.ID); err != nil {
		r.logger.Warn("updating last synced time failed", "issue_link_id", link.ID, "error", err)
	}
}

// transform applies the content transformer, falling back to the original
// text on error.
func (r *run) transform(ctx context.Context, body string) string {
	out, err := r.e.content.Transform(ctx, body)
	if err != nil {
		r.logger.Warn("content transform failed", "error", err)
		return body
	}
	return out
}

// do runs an idempotent outbound call.
func (r *run) do(ctx context.Context, field, op string, value any, fn func(ctx context.Context) error) error {
	return r.e.exec.Do(ctx, r.call(field, op, value, true), fn)
}

// create runs an outbound call that creates something remotely. It is never
// repeated after an ambiguous failure.
func (r *run) create(ctx context.Context, field, op string, value any, fn func(ctx context.Context) error) error {
	return r.e.exec.Do(ctx, r.call(field, op, value, false), fn)
}

func (r *run) call(field, op string, value any, idempotent bool) Call {
	ticket := ""
	if r.ev.Issue != nil {
		ticket = r.ev.Issue.Identifier
	} else if r.ev.Comment != nil {
		ticket = r.ev.Comment.IssueID
	}
	return Call{Op: op, TicketID: ticket, Field: field, Value: value, Idempotent: idempotent}
}

// addLabel creates the label if needed and applies it to the issue.
func (r *run) addLabel(ctx context.Context, field string, number int, label Label) error {
	if err := r.do(ctx, field, "create label", label.Name, func(ctx context.Context) error {
		return r.gh.CreateLabel(ctx, label)
	}); err != nil {
		return err
	}
	return r.do(ctx, field, "apply label", label.Name, func(ctx context.Context) error {
		return r.gh.ApplyLabels(ctx, number, []string{label.Name})
	})
}

// labelName resolves a Linear label id, preferring the names embedded in the
// payload.
func (r *run) labelName(ctx context.Context, field, labelID string) (string, error) {
	if r.ev.Issue != nil {
		if name, ok := r.ev.Issue.LabelName(labelID); ok {
			return name, nil
		}
	}
	var name string
	err := r.do(ctx, field, "resolve label", labelID, func(ctx context.Context) error {
		var err error
		name, err = r.src.LabelName(ctx, labelID)
		return err
	})
	return name, err
}

func (r *run) labelColor(labelID string) string {
	if r.ev.Issue == nil {
		return ""
	}
	for _, l := range r.ev.Issue.Labels {
		if l.ID == labelID {
			return stripHash(l.Color)
		}
	}
	return ""
}
