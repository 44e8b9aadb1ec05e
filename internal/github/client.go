// Package github is the GitHub side of a sync link: issues, labels,
// milestones, assignees and comments of one repository.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v63/github"

	"ticketsync/internal/models"
	"ticketsync/internal/reconcile"
)

const (
	// GitHub API timeout for individual requests
	githubAPITimeout = 30 * time.Second
)

// NewHTTPClient returns the pooled HTTP client shared by every repository
// client.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Timeout: githubAPITimeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// Client is bound to one owner/repo.
type Client struct {
	gh    *github.Client
	owner string
	repo  string
}

// NewClient creates a client for repository ("owner/repo") authenticated
// with token. A non-empty baseURL points it at another API root.
func NewClient(httpClient *http.Client, token, repository, baseURL string) (*Client, error) {
	parts := strings.SplitN(repository, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("invalid repository format '%s': expected 'owner/repo'", repository)
	}
	gh := github.NewClient(httpClient)
	if token != "" {
		gh = gh.WithAuthToken(token)
	}
	if baseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub API URL %q: %w", baseURL, err)
		}
		gh.BaseURL = u
	}
	return &Client{gh: gh, owner: parts[0], repo: parts[1]}, nil
}

// APIError is a GitHub response outside 2xx.
type APIError struct {
	Status  int
	Message string
	Code    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("github: %d %s (%s)", e.Status, e.Message, e.Code)
	}
	return fmt.Sprintf("github: %d %s", e.Status, e.Message)
}

// StatusCode returns the HTTP status.
func (e *APIError) StatusCode() int { return e.Status }

// wrap turns go-github errors into *APIError so the engine can read the
// status. Transport errors pass through unchanged.
func wrap(err error) error {
	if err == nil {
		return nil
	}
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return &APIError{Status: http.StatusTooManyRequests, Message: rateErr.Message}
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return &APIError{Status: http.StatusTooManyRequests, Message: abuseErr.Message}
	}
	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		apiErr := &APIError{Status: respErr.Response.StatusCode, Message: respErr.Message}
		if len(respErr.Errors) > 0 {
			apiErr.Code = respErr.Errors[0].Code
		}
		return apiErr
	}
	return err
}

func toRemote(issue *github.Issue) *reconcile.RemoteIssue {
	out := &reconcile.RemoteIssue{
		ID:     issue.GetID(),
		Number: issue.GetNumber(),
		URL:    issue.GetHTMLURL(),
		State:  issue.GetState(),
	}
	for _, a := range issue.Assignees {
		out.Assignees = append(out.Assignees, a.GetLogin())
	}
	return out
}

func issueRequest(req reconcile.IssueRequest) *github.IssueRequest {
	out := &github.IssueRequest{
		Title:       req.Title,
		Body:        req.Body,
		State:       req.State,
		StateReason: req.StateReason,
	}
	if len(req.Assignees) > 0 {
		assignees := req.Assignees
		out.Assignees = &assignees
	}
	return out
}

// CreateIssue implements reconcile.Counterpart.
func (c *Client) CreateIssue(ctx context.Context, req reconcile.IssueRequest) (*reconcile.RemoteIssue, error) {
	issue, _, err := c.gh.Issues.Create(ctx, c.owner, c.repo, issueRequest(req))
	if err != nil {
		return nil, wrap(err)
	}
	return toRemote(issue), nil
}

// PatchIssue implements reconcile.Counterpart.
func (c *Client) PatchIssue(ctx context.Context, number int, req reconcile.IssueRequest) error {
	_, _, err := c.gh.Issues.Edit(ctx, c.owner, c.repo, number, issueRequest(req))
	return wrap(err)
}

// GetIssue implements reconcile.Counterpart.
func (c *Client) GetIssue(ctx context.Context, number int) (*reconcile.RemoteIssue, error) {
	issue, _, err := c.gh.Issues.Get(ctx, c.owner, c.repo, number)
	if err != nil {
		return nil, wrap(err)
	}
	return toRemote(issue), nil
}

// CreateLabel creates the repository label. A label that already exists is
// not an error.
func (c *Client) CreateLabel(ctx context.Context, label reconcile.Label) error {
	l := &github.Label{Name: github.String(label.Name)}
	if label.Color != "" {
		l.Color = github.String(label.Color)
	}
	if label.Description != "" {
		l.Description = github.String(label.Description)
	}
	_, _, err := c.gh.Issues.CreateLabel(ctx, c.owner, c.repo, l)
	err = wrap(err)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnprocessableEntity && apiErr.Code == "already_exists" {
		return nil
	}
	return err
}

// ApplyLabels implements reconcile.Counterpart.
func (c *Client) ApplyLabels(ctx context.Context, number int, names []string) error {
	_, _, err := c.gh.Issues.AddLabelsToIssue(ctx, c.owner, c.repo, number, names)
	return wrap(err)
}

// DeleteLabel removes a label from the issue. The label itself stays in the
// repository.
func (c *Client) DeleteLabel(ctx context.Context, number int, name string) error {
	_, err := c.gh.Issues.RemoveLabelForIssue(ctx, c.owner, c.repo, number, name)
	return wrap(err)
}

func milestone(req reconcile.MilestoneRequest) *github.Milestone {
	m := &github.Milestone{
		Title:       github.String(req.Title),
		State:       github.String(req.State),
		Description: github.String(req.Description),
	}
	if req.DueOn != nil {
		m.DueOn = &github.Timestamp{Time: *req.DueOn}
	}
	return m
}

// CreateMilestone implements reconcile.Counterpart.
func (c *Client) CreateMilestone(ctx context.Context, req reconcile.MilestoneRequest) (*reconcile.RemoteMilestone, error) {
	m, _, err := c.gh.Issues.CreateMilestone(ctx, c.owner, c.repo, milestone(req))
	if err != nil {
		return nil, wrap(err)
	}
	return &reconcile.RemoteMilestone{ID: m.GetID(), Number: m.GetNumber()}, nil
}

// UpdateMilestone implements reconcile.Counterpart.
func (c *Client) UpdateMilestone(ctx context.Context, number int, req reconcile.MilestoneRequest) error {
	_, _, err := c.gh.Issues.EditMilestone(ctx, c.owner, c.repo, number, milestone(req))
	return wrap(err)
}

// SetIssueMilestone sets or clears the issue's milestone. IssueRequest
// omits a nil milestone, so clearing sends an explicit null.
func (c *Client) SetIssueMilestone(ctx context.Context, number int, milestone *int) error {
	if milestone != nil {
		_, _, err := c.gh.Issues.Edit(ctx, c.owner, c.repo, number, &github.IssueRequest{Milestone: milestone})
		return wrap(err)
	}
	u := fmt.Sprintf("repos/%s/%s/issues/%d", c.owner, c.repo, number)
	req, err := c.gh.NewRequest(http.MethodPatch, u, map[string]any{"milestone": nil})
	if err != nil {
		return err
	}
	_, err = c.gh.Do(ctx, req, nil)
	return wrap(err)
}

// CreateComment implements reconcile.Counterpart.
func (c *Client) CreateComment(ctx context.Context, number int, body string) error {
	_, _, err := c.gh.Issues.CreateComment(ctx, c.owner, c.repo, number, &github.IssueComment{Body: github.String(body)})
	return wrap(err)
}

// RemoveAssignees implements reconcile.Counterpart.
func (c *Client) RemoveAssignees(ctx context.Context, number int, logins []string) error {
	_, _, err := c.gh.Issues.RemoveAssignees(ctx, c.owner, c.repo, number, logins)
	return wrap(err)
}

// AddAssignees implements reconcile.Counterpart.
func (c *Client) AddAssignees(ctx context.Context, number int, logins []string) error {
	_, _, err := c.gh.Issues.AddAssignees(ctx, c.owner, c.repo, number, logins)
	return wrap(err)
}

var _ reconcile.Counterpart = (*Client)(nil)

// invalidClient fails every call. It stands in for a sync link whose
// repository cannot be parsed so the failure surfaces per call.
type invalidClient struct{ err error }

func (c invalidClient) CreateIssue(context.Context, reconcile.IssueRequest) (*reconcile.RemoteIssue, error) {
	return nil, c.err
}
func (c invalidClient) PatchIssue(context.Context, int, reconcile.IssueRequest) error { return c.err }
func (c invalidClient) GetIssue(context.Context, int) (*reconcile.RemoteIssue, error) {
	return nil, c.err
}
func (c invalidClient) CreateLabel(context.Context, reconcile.Label) error   { return c.err }
func (c invalidClient) ApplyLabels(context.Context, int, []string) error     { return c.err }
func (c invalidClient) DeleteLabel(context.Context, int, string) error       { return c.err }
func (c invalidClient) SetIssueMilestone(context.Context, int, *int) error   { return c.err }
func (c invalidClient) CreateComment(context.Context, int, string) error     { return c.err }
func (c invalidClient) RemoveAssignees(context.Context, int, []string) error { return c.err }
func (c invalidClient) AddAssignees(context.Context, int, []string) error    { return c.err }
func (c invalidClient) UpdateMilestone(context.Context, int, reconcile.MilestoneRequest) error {
	return c.err
}
func (c invalidClient) CreateMilestone(context.Context, reconcile.MilestoneRequest) (*reconcile.RemoteMilestone, error) {
	return nil, c.err
}

// Factory builds repository clients for sync links.
type Factory struct {
	HTTPClient *http.Client
	// BaseURL overrides the API root, for GitHub Enterprise and tests.
	BaseURL string
}

// Counterpart returns the client for link's repository.
func (f *Factory) Counterpart(link *models.SyncLink, creds reconcile.Credentials) reconcile.Counterpart {
	httpClient := f.HTTPClient
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}
	c, err := NewClient(httpClient, creds.GitHubToken, link.Repository, f.BaseURL)
	if err != nil {
		return invalidClient{err: err}
	}
	return c
}
