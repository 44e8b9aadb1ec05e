package webhook

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"ticketsync/internal/models"
	"ticketsync/internal/reconcile"
)

type fakeProcessor struct {
	mu     sync.Mutex
	events []*models.Event
	err    error
}

func (p *fakeProcessor) Handle(_ context.Context, ev *models.Event) (*reconcile.Report, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return &reconcile.Report{EventID: "test"}, p.err
}

var testSecret = []byte("s3cret")

const issueBody = `{"action":"create","type":"Issue","data":{"id":"i1","identifier":"T-1","teamId":"team-1","creatorId":"u1","labelIds":[]}}`

func newTestHandler(p Processor) *Handler {
	return NewHandler(testSecret, p, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func post(h http.Handler, body, signature, delivery string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/linear", strings.NewReader(body))
	if signature != "" {
		req.Header.Set(HeaderSignature, signature)
	}
	if delivery != "" {
		req.Header.Set(HeaderDelivery, delivery)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerAcceptsSignedEvent(t *testing.T) {
	p := &fakeProcessor{}
	h := newTestHandler(p)

	rec := post(h, issueBody, Sign(testSecret, []byte(issueBody)), "d1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(p.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(p.events))
	}
	if ev := p.events[0]; ev.ActorID != "u1" || ev.ScopeID != "team-1" || ev.Issue.Identifier != "T-1" {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestHandlerRejectsBadSignature(t *testing.T) {
	p := &fakeProcessor{}
	h := newTestHandler(p)

	tests := []struct {
		name, signature string
	}{
		{"missing", ""},
		{"wrong", Sign([]byte("other"), []byte(issueBody))},
		{"not hex", "zz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(h, issueBody, tt.signature, "")
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
	if len(p.events) != 0 {
		t.Errorf("unsigned events reached the engine")
	}
}

func TestHandlerMethodAndBody(t *testing.T) {
	h := newTestHandler(&fakeProcessor{})

	req := httptest.NewRequest(http.MethodGet, "/webhooks/linear", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d", rec.Code)
	}

	if rec := post(h, "", "", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("empty body status = %d", rec.Code)
	}
}

func TestHandlerDeduplicatesDeliveries(t *testing.T) {
	p := &fakeProcessor{}
	h := newTestHandler(p)
	sig := Sign(testSecret, []byte(issueBody))

	post(h, issueBody, sig, "d1")
	if rec := post(h, issueBody, sig, "d1"); rec.Code != http.StatusOK {
		t.Errorf("duplicate status = %d", rec.Code)
	}
	if len(p.events) != 1 {
		t.Errorf("duplicate delivery processed: %d events", len(p.events))
	}

	// Past the window the id is forgotten.
	h.now = func() time.Time { return time.Now().Add(2 * deduplicationWindow) }
	post(h, issueBody, sig, "d1")
	if len(p.events) != 2 {
		t.Errorf("expired delivery not processed: %d events", len(p.events))
	}
}

func TestHandlerStatusFromEngine(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, http.StatusOK},
		{"no link", fmt.Errorf("%w: actor u1", reconcile.ErrNoLinkFound), http.StatusOK},
		{"fatal", &reconcile.FatalError{Field: "visibility", Status: http.StatusBadGateway}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(&fakeProcessor{err: tt.err})
			rec := post(h, issueBody, Sign(testSecret, []byte(issueBody)), "d1")
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestHandlerFailedDeliveryCanBeRetried(t *testing.T) {
	p := &fakeProcessor{err: &reconcile.FatalError{Field: "visibility", Status: http.StatusBadGateway}}
	h := newTestHandler(p)
	sig := Sign(testSecret, []byte(issueBody))

	post(h, issueBody, sig, "d1")
	p.err = nil
	if rec := post(h, issueBody, sig, "d1"); rec.Code != http.StatusOK {
		t.Errorf("retry status = %d", rec.Code)
	}
	if len(p.events) != 2 {
		t.Errorf("retry was deduplicated: %d events", len(p.events))
	}
}

func TestHandlerUnsupportedType(t *testing.T) {
	p := &fakeProcessor{}
	h := newTestHandler(p)
	body := `{"action":"create","type":"Reaction","data":{"id":"r1"}}`

	if rec := post(h, body, Sign(testSecret, []byte(body)), ""); rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if len(p.events) != 0 {
		t.Errorf("unsupported event reached the engine")
	}
}

func TestHealth(t *testing.T) {
	mux := NewMux(newTestHandler(&fakeProcessor{}))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ok") {
		t.Errorf("health = %d %q", rec.Code, rec.Body.String())
	}
}
