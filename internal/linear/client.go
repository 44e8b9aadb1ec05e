// Package linear reads labels, cycles and comments from Linear and writes
// the back-reference attachment, over Linear's GraphQL API.
package linear

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	graphql "github.com/hasura/go-graphql-client"

	"ticketsync/internal/models"
	"ticketsync/internal/reconcile"
)

// DefaultEndpoint is Linear's GraphQL API.
const DefaultEndpoint = "https://api.linear.app/graphql"

const linearAPITimeout = 30 * time.Second

// Client is a Linear API client authenticated with one API key.
type Client struct {
	gql *graphql.Client
}

// NewClient creates a client. An empty endpoint means DefaultEndpoint.
func NewClient(httpClient *http.Client, apiKey, endpoint string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: linearAPITimeout}
	}
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	hc := *httpClient
	hc.Transport = statusTransport{base: httpClient.Transport}
	gql := graphql.NewClient(endpoint, &hc).WithRequestModifier(func(req *http.Request) {
		// Personal API keys go in the header as is, without a scheme.
		req.Header.Set("Authorization", apiKey)
	})
	return &Client{gql: gql}
}

// APIError is a failed Linear request. GraphQL errors returned with a 200
// are reported as 422.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("linear: %d %s", e.Status, e.Message)
}

// StatusCode returns the HTTP status.
func (e *APIError) StatusCode() int { return e.Status }

type statusKey struct{}

// statusTransport records the HTTP status of a response in the *int stored
// under statusKey in the request context.
type statusTransport struct {
	base http.RoundTripper
}

func (t statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if err == nil {
		if status, ok := req.Context().Value(statusKey{}).(*int); ok {
			*status = resp.StatusCode
		}
	}
	return resp, err
}

// do runs a GraphQL operation and decodes its data into out.
func (c *Client) do(ctx context.Context, query string, vars map[string]any, out any) error {
	var status int
	ctx = context.WithValue(ctx, statusKey{}, &status)

	data, err := c.gql.ExecRaw(ctx, query, vars)
	if err != nil {
		switch {
		case status == 0:
			// No response: transport failure, timeout or cancellation.
			return err
		case status != http.StatusOK:
			return &APIError{Status: status, Message: err.Error()}
		default:
			var gqlErrs graphql.Errors
			if errors.As(err, &gqlErrs) {
				return &APIError{Status: http.StatusUnprocessableEntity, Message: gqlErrs.Error()}
			}
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding data: %w", err)
	}
	return nil
}

const labelQuery = `query IssueLabel($id: String!) {
  issueLabel(id: $id) { id name }
}`

// LabelName implements reconcile.Source.
func (c *Client) LabelName(ctx context.Context, labelID string) (string, error) {
	var data struct {
		IssueLabel *struct {
			Name string `json:"name"`
		} `json:"issueLabel"`
	}
	if err := c.do(ctx, labelQuery, map[string]any{"id": labelID}, &data); err != nil {
		return "", err
	}
	if data.IssueLabel == nil {
		return "", &APIError{Status: http.StatusNotFound, Message: "label " + labelID + " not found"}
	}
	return data.IssueLabel.Name, nil
}

const cycleQuery = `query Cycle($id: String!) {
  cycle(id: $id) { id number name description startsAt endsAt team { id } }
}`

// Cycle implements reconcile.Source.
func (c *Client) Cycle(ctx context.Context, cycleID string) (*models.CycleData, error) {
	var data struct {
		Cycle *struct {
			models.CycleData
			Team *struct {
				ID string `json:"id"`
			} `json:"team"`
		} `json:"cycle"`
	}
	if err := c.do(ctx, cycleQuery, map[string]any{"id": cycleID}, &data); err != nil {
		return nil, err
	}
	if data.Cycle == nil {
		return nil, &APIError{Status: http.StatusNotFound, Message: "cycle " + cycleID + " not found"}
	}
	cycle := data.Cycle.CycleData
	if data.Cycle.Team != nil {
		cycle.TeamID = data.Cycle.Team.ID
	}
	return &cycle, nil
}

const commentsQuery = `query IssueComments($id: String!, $after: String) {
  issue(id: $id) {
    comments(first: 100, after: $after) {
      nodes { id body createdAt user { id name url } }
      pageInfo { hasNextPage endCursor }
    }
  }
}`

// IssueComments returns every comment of the ticket, oldest first.
func (c *Client) IssueComments(ctx context.Context, ticketID string) ([]models.CommentData, error) {
	var (
		out   []models.CommentData
		after any
	)
	for {
		var data struct {
			Issue *struct {
				Comments struct {
					Nodes    []models.CommentData `json:"nodes"`
					PageInfo struct {
						HasNextPage bool   `json:"hasNextPage"`
						EndCursor   string `json:"endCursor"`
					} `json:"pageInfo"`
				} `json:"comments"`
			} `json:"issue"`
		}
		if err := c.do(ctx, commentsQuery, map[string]any{"id": ticketID, "after": after}, &data); err != nil {
			return nil, err
		}
		if data.Issue == nil {
			return nil, &APIError{Status: http.StatusNotFound, Message: "issue " + ticketID + " not found"}
		}
		for _, n := range data.Issue.Comments.Nodes {
			n.IssueID = ticketID
			if n.User != nil {
				n.UserID = n.User.ID
			}
			out = append(out, n)
		}
		page := data.Issue.Comments.PageInfo
		if !page.HasNextPage || page.EndCursor == "" {
			break
		}
		after = page.EndCursor
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

const attachmentMutation = `mutation AttachmentCreate($input: AttachmentCreateInput!) {
  attachmentCreate(input: $input) { success }
}`

// CreateAttachment links url on the ticket.
func (c *Client) CreateAttachment(ctx context.Context, ticketID string, a reconcile.Attachment) error {
	input := map[string]any{
		"issueId":  ticketID,
		"title":    a.Title,
		"subtitle": a.Subtitle,
		"url":      a.URL,
	}
	var data struct {
		AttachmentCreate struct {
			Success bool `json:"success"`
		} `json:"attachmentCreate"`
	}
	if err := c.do(ctx, attachmentMutation, map[string]any{"input": input}, &data); err != nil {
		return err
	}
	if !data.AttachmentCreate.Success {
		return &APIError{Status: http.StatusUnprocessableEntity, Message: "attachment not created"}
	}
	return nil
}

var _ reconcile.Source = (*Client)(nil)

// Factory builds Linear clients for sync links.
type Factory struct {
	HTTPClient *http.Client
	Endpoint   string
}

// Source returns a client authenticated with the link's Linear key.
func (f *Factory) Source(_ *models.SyncLink, creds reconcile.Credentials) reconcile.Source {
	return NewClient(f.HTTPClient, creds.LinearAPIKey, f.Endpoint)
}
