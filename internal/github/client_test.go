package github

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ticketsync/internal/models"
	"ticketsync/internal/reconcile"
)

// newTestClient serves the GitHub API for acme/app from mux.
func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.Client(), "ghp_test", "acme/app", srv.URL)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		t.Errorf("decoding request body: %v", err)
	}
	return body
}

func TestCreateIssue(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /repos/acme/app/issues", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer ghp_test" {
			t.Errorf("Authorization = %q", got)
		}
		body := decodeBody(t, r)
		if body["title"] != "[T-42] Crash" {
			t.Errorf("title = %v", body["title"])
		}
		if assignees, _ := body["assignees"].([]any); len(assignees) != 1 || assignees[0] != "ada" {
			t.Errorf("assignees = %v", body["assignees"])
		}
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"id": 9001, "number": 12, "html_url": "https://github.com/acme/app/issues/12", "state": "open"}`)
	})
	c := newTestClient(t, mux)

	title, body := "[T-42] Crash", "details"
	issue, err := c.CreateIssue(context.Background(), reconcile.IssueRequest{Title: &title, Body: &body, Assignees: []string{"ada"}})
	if err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}
	if issue.ID != 9001 || issue.Number != 12 || issue.URL != "https://github.com/acme/app/issues/12" {
		t.Errorf("unexpected issue: %+v", issue)
	}
}

func TestPatchIssueState(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("PATCH /repos/acme/app/issues/12", func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		if body["state"] != "closed" || body["state_reason"] != "not_planned" {
			t.Errorf("body = %v", body)
		}
		if _, ok := body["title"]; ok {
			t.Error("unset title was sent")
		}
		io.WriteString(w, `{"number": 12}`)
	})
	c := newTestClient(t, mux)

	state, reason := "closed", "not_planned"
	if err := c.PatchIssue(context.Background(), 12, reconcile.IssueRequest{State: &state, StateReason: &reason}); err != nil {
		t.Fatalf("PatchIssue failed: %v", err)
	}
}

func TestCreateLabelAlreadyExists(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /repos/acme/app/labels", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		io.WriteString(w, `{"message": "Validation Failed", "errors": [{"resource": "Label", "code": "already_exists", "field": "name"}]}`)
	})
	c := newTestClient(t, mux)

	if err := c.CreateLabel(context.Background(), reconcile.Label{Name: "bug", Color: "d73a4a"}); err != nil {
		t.Errorf("existing label should not fail: %v", err)
	}
}

func TestCreateLabelInvalid(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /repos/acme/app/labels", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		io.WriteString(w, `{"message": "Validation Failed", "errors": [{"resource": "Label", "code": "invalid", "field": "color"}]}`)
	})
	c := newTestClient(t, mux)

	err := c.CreateLabel(context.Background(), reconcile.Label{Name: "bug", Color: "nope"})
	if got := reconcile.StatusOf(err); got != http.StatusUnprocessableEntity {
		t.Errorf("StatusOf = %d, want 422 (err %v)", got, err)
	}
}

func TestDeleteLabelNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /repos/acme/app/issues/12/labels/{name}", func(w http.ResponseWriter, r *http.Request) {
		if got := r.PathValue("name"); got != "High priority" {
			t.Errorf("label = %q", got)
		}
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"message": "Label does not exist"}`)
	})
	c := newTestClient(t, mux)

	err := c.DeleteLabel(context.Background(), 12, "High priority")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		t.Errorf("expected a 404 APIError, got %v", err)
	}
}

func TestCreateMilestone(t *testing.T) {
	due := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /repos/acme/app/milestones", func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		if body["title"] != "v.9" || body["state"] != "open" {
			t.Errorf("body = %v", body)
		}
		if body["due_on"] != "2026-04-01T00:00:00Z" {
			t.Errorf("due_on = %v", body["due_on"])
		}
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"id": 501, "number": 3}`)
	})
	c := newTestClient(t, mux)

	m, err := c.CreateMilestone(context.Background(), reconcile.MilestoneRequest{Title: "v.9", State: "open", DueOn: &due})
	if err != nil {
		t.Fatalf("CreateMilestone failed: %v", err)
	}
	if m.ID != 501 || m.Number != 3 {
		t.Errorf("unexpected milestone: %+v", m)
	}
}

func TestSetIssueMilestone(t *testing.T) {
	var bodies []map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("PATCH /repos/acme/app/issues/12", func(w http.ResponseWriter, r *http.Request) {
		bodies = append(bodies, decodeBody(t, r))
		io.WriteString(w, `{"number": 12}`)
	})
	c := newTestClient(t, mux)

	three := 3
	if err := c.SetIssueMilestone(context.Background(), 12, &three); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := c.SetIssueMilestone(context.Background(), 12, nil); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if len(bodies) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(bodies))
	}
	if bodies[0]["milestone"] != float64(3) {
		t.Errorf("set body = %v", bodies[0])
	}
	if v, ok := bodies[1]["milestone"]; !ok || v != nil {
		t.Errorf("clear body = %v, want explicit null", bodies[1])
	}
}

func TestAssignees(t *testing.T) {
	var calls []string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/app/issues/12", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"number": 12, "assignees": [{"login": "carol"}, {"login": "dave"}]}`)
	})
	mux.HandleFunc("/repos/acme/app/issues/12/assignees", func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method)
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"number": 12}`)
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	issue, err := c.GetIssue(ctx, 12)
	if err != nil {
		t.Fatalf("GetIssue failed: %v", err)
	}
	if len(issue.Assignees) != 2 || issue.Assignees[0] != "carol" {
		t.Errorf("assignees = %v", issue.Assignees)
	}
	if err := c.RemoveAssignees(ctx, 12, issue.Assignees); err != nil {
		t.Fatalf("RemoveAssignees failed: %v", err)
	}
	if err := c.AddAssignees(ctx, 12, []string{"bob"}); err != nil {
		t.Fatalf("AddAssignees failed: %v", err)
	}
	if len(calls) != 2 || calls[0] != http.MethodDelete || calls[1] != http.MethodPost {
		t.Errorf("calls = %v", calls)
	}
}

func TestServerErrorStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /repos/acme/app/issues/12/comments", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, `{"message": "upstream"}`)
	})
	c := newTestClient(t, mux)

	err := c.CreateComment(context.Background(), 12, "hi")
	if got := reconcile.StatusOf(err); got != http.StatusBadGateway {
		t.Errorf("StatusOf = %d, want 502", got)
	}
}

func TestNewClientInvalidRepository(t *testing.T) {
	for _, repo := range []string{"", "acme", "/app", "acme/"} {
		if _, err := NewClient(http.DefaultClient, "", repo, ""); err == nil {
			t.Errorf("NewClient(%q) should fail", repo)
		}
	}
}

func TestFactoryInvalidRepository(t *testing.T) {
	f := &Factory{}
	c := f.Counterpart(&models.SyncLink{Repository: "broken"}, reconcile.Credentials{})
	if err := c.CreateComment(context.Background(), 1, "x"); err == nil {
		t.Error("expected an error for a malformed repository")
	}
}
