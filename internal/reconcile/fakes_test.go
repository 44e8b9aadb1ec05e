package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"ticketsync/internal/db"
	"ticketsync/internal/models"
)

// fakeStore is an in-memory Store with the same uniqueness rules as the
// sqlite schema.
type fakeStore struct {
	mu         sync.Mutex
	syncLinks  []models.SyncLink
	issueLinks []models.IssueLink
	milestones []models.MilestoneLink
	identities []models.IdentityMapping
	nextID     uint
	failCreate error
}

func (s *fakeStore) id() uint {
	s.nextID++
	return s.nextID
}

func (s *fakeStore) FindSyncLink(_ context.Context, linearUserID, teamID string) (*models.SyncLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.syncLinks {
		l := s.syncLinks[i]
		if l.LinearUserID == linearUserID && (teamID == "" || l.LinearTeamID == teamID) {
			return &l, nil
		}
	}
	return nil, db.ErrNotFound
}

func (s *fakeStore) GetSyncLink(_ context.Context, id uint) (*models.SyncLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.syncLinks {
		if s.syncLinks[i].ID == id {
			l := s.syncLinks[i]
			return &l, nil
		}
	}
	return nil, db.ErrNotFound
}

func (s *fakeStore) FindIssueLinkByTicket(_ context.Context, ticketID string) (*models.IssueLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.issueLinks {
		if s.issueLinks[i].LinearIssueID == ticketID {
			l := s.issueLinks[i]
			return &l, nil
		}
	}
	return nil, db.ErrNotFound
}

func (s *fakeStore) FindIssueLink(_ context.Context, ticketID, teamID string) (*models.IssueLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.issueLinks {
		l := s.issueLinks[i]
		if l.LinearIssueID == ticketID && l.LinearTeamID == teamID {
			return &l, nil
		}
	}
	return nil, db.ErrNotFound
}

func (s *fakeStore) CreateIssueLink(_ context.Context, link *models.IssueLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate != nil {
		return s.failCreate
	}
	for _, l := range s.issueLinks {
		if l.LinearIssueID == link.LinearIssueID && l.LinearTeamID == link.LinearTeamID {
			return db.ErrDuplicate
		}
	}
	link.ID = s.id()
	s.issueLinks = append(s.issueLinks, *link)
	return nil
}

func (s *fakeStore) DeleteIssueLink(_ context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, l := range s.issueLinks {
		if l.ID == id {
			s.issueLinks = append(s.issueLinks[:i], s.issueLinks[i+1:]...)
			return nil
		}
	}
	return db.ErrNotFound
}

func (s *fakeStore) TouchIssueLink(context.Context, uint) error { return nil }

func (s *fakeStore) FindMilestoneLink(_ context.Context, cycleID string, repoID int64, teamID string) (*models.MilestoneLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.milestones {
		m := s.milestones[i]
		if m.CycleID == cycleID && m.GitHubRepoID == repoID && m.LinearTeamID == teamID {
			return &m, nil
		}
	}
	return nil, db.ErrNotFound
}

func (s *fakeStore) FindMilestoneLinksByCycle(_ context.Context, cycleID string) ([]models.MilestoneLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.MilestoneLink
	for _, m := range s.milestones {
		if m.CycleID == cycleID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeStore) CreateMilestoneLink(_ context.Context, link *models.MilestoneLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.milestones {
		if m.CycleID == link.CycleID && m.GitHubRepoID == link.GitHubRepoID && m.LinearTeamID == link.LinearTeamID {
			return db.ErrDuplicate
		}
	}
	link.ID = s.id()
	s.milestones = append(s.milestones, *link)
	return nil
}

func (s *fakeStore) FindIdentityMapping(_ context.Context, linearUserID string) (*models.IdentityMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.identities {
		if s.identities[i].LinearUserID == linearUserID {
			m := s.identities[i]
			return &m, nil
		}
	}
	return nil, db.ErrNotFound
}

func (s *fakeStore) FindIdentityByLinearUsername(_ context.Context, username string) (*models.IdentityMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.identities {
		if strings.EqualFold(s.identities[i].LinearUsername, username) {
			m := s.identities[i]
			return &m, nil
		}
	}
	return nil, db.ErrNotFound
}

func (s *fakeStore) CreateIdentityMapping(_ context.Context, m *models.IdentityMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, x := range s.identities {
		if x.LinearUserID == m.LinearUserID && x.GitHubUserID == m.GitHubUserID {
			return db.ErrDuplicate
		}
	}
	m.ID = s.id()
	s.identities = append(s.identities, *m)
	return nil
}

// httpError is a failed call with a status, like the real clients return.
type httpError struct{ status int }

func (e *httpError) Error() string   { return fmt.Sprintf("status %d", e.status) }
func (e *httpError) StatusCode() int { return e.status }

// fakeCounterpart records every GitHub call in order.
type fakeCounterpart struct {
	mu        sync.Mutex
	calls     []string
	assignees []string
	nextIssue int
	nextMile  int
	failOps   map[string]error
	// hangCreate makes CreateIssue wait for its context to end after the
	// call is recorded, like a request the server received but never
	// answered in time.
	hangCreate bool
	milestones []MilestoneRequest
	comments   []string
	issues     []IssueRequest
}

func (c *fakeCounterpart) record(op, format string, args ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, op+" "+fmt.Sprintf(format, args...))
	return c.failOps[op]
}

func (c *fakeCounterpart) ops() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.calls))
	for i, call := range c.calls {
		out[i], _, _ = strings.Cut(call, " ")
	}
	return out
}

func (c *fakeCounterpart) count(op string) int {
	n := 0
	for _, o := range c.ops() {
		if o == op {
			n++
		}
	}
	return n
}

func (c *fakeCounterpart) CreateIssue(ctx context.Context, req IssueRequest) (*RemoteIssue, error) {
	if err := c.record("CreateIssue", "%s", deref(req.Title)); err != nil {
		return nil, err
	}
	if c.hangCreate {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issues = append(c.issues, req)
	c.nextIssue++
	n := c.nextIssue
	return &RemoteIssue{ID: int64(1000 + n), Number: n, URL: fmt.Sprintf("https://github.com/acme/app/issues/%d", n)}, nil
}

func (c *fakeCounterpart) PatchIssue(_ context.Context, number int, req IssueRequest) error {
	if err := c.record("PatchIssue", "%d state=%s reason=%s", number, deref(req.State), deref(req.StateReason)); err != nil {
		return err
	}
	c.mu.Lock()
	c.issues = append(c.issues, req)
	c.mu.Unlock()
	return nil
}

func (c *fakeCounterpart) GetIssue(_ context.Context, number int) (*RemoteIssue, error) {
	if err := c.record("GetIssue", "%d", number); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return &RemoteIssue{Number: number, Assignees: append([]string(nil), c.assignees...)}, nil
}

func (c *fakeCounterpart) CreateLabel(_ context.Context, l Label) error {
	return c.record("CreateLabel", "%s", l.Name)
}

func (c *fakeCounterpart) ApplyLabels(_ context.Context, number int, names []string) error {
	return c.record("ApplyLabels", "%d %s", number, strings.Join(names, ","))
}

func (c *fakeCounterpart) DeleteLabel(_ context.Context, number int, name string) error {
	return c.record("DeleteLabel", "%d %s", number, name)
}

func (c *fakeCounterpart) CreateMilestone(_ context.Context, req MilestoneRequest) (*RemoteMilestone, error) {
	if err := c.record("CreateMilestone", "%s %s", req.Title, req.State); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.milestones = append(c.milestones, req)
	c.nextMile++
	return &RemoteMilestone{ID: int64(500 + c.nextMile), Number: c.nextMile}, nil
}

func (c *fakeCounterpart) UpdateMilestone(_ context.Context, number int, req MilestoneRequest) error {
	return c.record("UpdateMilestone", "%d %s %s", number, req.Title, req.State)
}

func (c *fakeCounterpart) SetIssueMilestone(_ context.Context, number int, milestone *int) error {
	if milestone == nil {
		return c.record("SetIssueMilestone", "%d none", number)
	}
	return c.record("SetIssueMilestone", "%d %d", number, *milestone)
}

func (c *fakeCounterpart) CreateComment(_ context.Context, number int, body string) error {
	if err := c.record("CreateComment", "%d", number); err != nil {
		return err
	}
	c.mu.Lock()
	c.comments = append(c.comments, body)
	c.mu.Unlock()
	return nil
}

func (c *fakeCounterpart) RemoveAssignees(_ context.Context, number int, logins []string) error {
	return c.record("RemoveAssignees", "%d %s", number, strings.Join(logins, ","))
}

func (c *fakeCounterpart) AddAssignees(_ context.Context, number int, logins []string) error {
	return c.record("AddAssignees", "%d %s", number, strings.Join(logins, ","))
}

// fakeSource serves Linear lookups from maps.
type fakeSource struct {
	mu          sync.Mutex
	labels      map[string]string
	cycles      map[string]*models.CycleData
	comments    map[string][]models.CommentData
	attachments []Attachment
	calls       int
	failAttach  error
	// attachDelay holds CreateAttachment back; a context that ends first
	// fails the call.
	attachDelay time.Duration
}

func (s *fakeSource) LabelName(_ context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	name, ok := s.labels[id]
	if !ok {
		return "", &httpError{status: 404}
	}
	return name, nil
}

func (s *fakeSource) Cycle(_ context.Context, id string) (*models.CycleData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	c, ok := s.cycles[id]
	if !ok {
		return nil, &httpError{status: 404}
	}
	return c, nil
}

func (s *fakeSource) IssueComments(_ context.Context, ticketID string) ([]models.CommentData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.comments[ticketID], nil
}

func (s *fakeSource) CreateAttachment(ctx context.Context, _ string, a Attachment) error {
	if s.attachDelay > 0 {
		select {
		case <-time.After(s.attachDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failAttach != nil {
		return s.failAttach
	}
	s.attachments = append(s.attachments, a)
	return nil
}

type fakeFactory struct {
	gh    *fakeCounterpart
	src   *fakeSource
	creds []Credentials
	mu    sync.Mutex
}

func (f *fakeFactory) Counterpart(_ *models.SyncLink, creds Credentials) Counterpart {
	f.mu.Lock()
	f.creds = append(f.creds, creds)
	f.mu.Unlock()
	return f.gh
}

func (f *fakeFactory) Source(*models.SyncLink, Credentials) Source {
	return f.src
}

// Fixture ids.
const (
	actorID    = "user-ada"
	teamID     = "team-eng"
	publicID   = "label-public"
	bugID      = "label-bug"
	internalID = "label-internal"
	repoID     = int64(77)
	repoName   = "acme/app"
	ticketID   = "issue-42"
	ticketRef  = "T-42"
)

type harness struct {
	store   *fakeStore
	gh      *fakeCounterpart
	src     *fakeSource
	factory *fakeFactory
	engine  *Engine
	now     time.Time
}

func newHarness(opts ...func(*Options)) *harness {
	h := &harness{
		store: &fakeStore{
			syncLinks: []models.SyncLink{{
				ID:             1,
				LinearUserID:   actorID,
				GitHubUserID:   9001,
				LinearTeamID:   teamID,
				GitHubRepoID:   repoID,
				Repository:     repoName,
				LinearUsername: "ada",
				GitHubUsername: "ada-gh",
				PublicLabelID:  publicID,
				LinearAPIKey:   "lin_key",
				GitHubToken:    "ghp_token",
			}},
			nextID: 100,
		},
		gh: &fakeCounterpart{},
		src: &fakeSource{
			labels: map[string]string{
				publicID:   "Public",
				bugID:      "bug",
				internalID: "internal",
			},
			cycles:   map[string]*models.CycleData{},
			comments: map[string][]models.CommentData{},
		},
		now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	h.factory = &fakeFactory{gh: h.gh, src: h.src}

	o := DefaultOptions()
	o.Now = func() time.Time { return h.now }
	for _, fn := range opts {
		fn(&o)
	}
	h.engine = New(h.store, h.factory, slog.New(slog.NewTextHandler(io.Discard, nil)), o)
	return h
}

// linkTicket stores an issue link for the fixture ticket as issue #7.
func (h *harness) linkTicket() {
	h.store.issueLinks = append(h.store.issueLinks, models.IssueLink{
		ID:                1,
		LinearIssueID:     ticketID,
		LinearTeamID:      teamID,
		LinearIdentifier:  ticketRef,
		GitHubIssueID:     7007,
		GitHubIssueNumber: 7,
		GitHubRepoID:      repoID,
		Repository:        repoName,
	})
}

func ticket(labels ...string) *models.IssueData {
	return &models.IssueData{
		ID:          ticketID,
		Identifier:  ticketRef,
		Number:      42,
		Title:       "Crash on save",
		Description: "Steps from @ada",
		TeamID:      teamID,
		LabelIDs:    labels,
		URL:         "https://linear.app/acme/issue/T-42",
	}
}

func updateEvent(issue *models.IssueData, delta map[string]any) *models.Event {
	d := Delta{}
	for k, v := range delta {
		raw, err := json.Marshal(v)
		if err != nil {
			panic(err)
		}
		d[k] = raw
	}
	return &models.Event{
		Action:      models.ActionUpdate,
		Entity:      models.EntityIssue,
		ActorID:     actorID,
		ScopeID:     teamID,
		Issue:       issue,
		UpdatedFrom: d,
	}
}

// Delta is shorthand for models.Delta in tests.
type Delta = models.Delta

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
