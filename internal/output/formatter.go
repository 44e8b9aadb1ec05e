package output

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"ticketsync/internal/db"
	"ticketsync/internal/models"
	"ticketsync/internal/reconcile"
)

// Formatter defines the interface for output formatting
type Formatter interface {
	SyncLinkList(links []models.SyncLink)
	IssueLinkList(links []models.IssueLink, title string)
	MilestoneLinkList(links []models.MilestoneLink)
	IdentityList(ids []models.IdentityMapping)
	Counts(c db.Counts)
	Report(r *reconcile.Report, status int, err error)
	Success(msg string)
	Error(err error)
	Info(msg string)
	KeyValue(key, value string)
	Section(title string)
	JSON(v interface{})
}

// TextFormatter outputs human-readable text
type TextFormatter struct{}

// JSONFormatter outputs JSON
type JSONFormatter struct{}

// New returns the appropriate formatter based on json flag
func New(jsonOutput bool) Formatter {
	if jsonOutput {
		return &JSONFormatter{}
	}
	return &TextFormatter{}
}

// ago renders t relative to now, or "never" for the zero time.
func ago(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}

// OutcomeView is the serialized form of a reconcile.Outcome.
type OutcomeView struct {
	Field   string `json:"field,omitempty"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ReportView is the serialized form of a reconcile.Report.
type ReportView struct {
	EventID  string        `json:"event_id"`
	Status   int           `json:"status"`
	Error    string        `json:"error,omitempty"`
	Outcomes []OutcomeView `json:"outcomes"`
}

// NewReportView flattens a report for output. r may be nil.
func NewReportView(r *reconcile.Report, status int, err error) ReportView {
	view := ReportView{Status: status, Outcomes: []OutcomeView{}}
	if err != nil {
		view.Error = err.Error()
	}
	if r == nil {
		return view
	}
	view.EventID = r.EventID
	for _, o := range r.Outcomes {
		view.Outcomes = append(view.Outcomes, OutcomeView{Field: o.Field, Kind: o.Kind.String(), Message: o.Message})
	}
	return view
}

// TextFormatter implementations

func (f *TextFormatter) SyncLinkList(links []models.SyncLink) {
	fmt.Printf("Sync links (%d):\n", len(links))
	for _, l := range links {
		user := l.LinearUsername
		if user == "" {
			user = l.LinearUserID
		}
		fmt.Printf("[%d] %s team %s -> %s (@%s, public label %s) created %s\n",
			l.ID, user, l.LinearTeamID, l.Repository, l.GitHubUsername, l.PublicLabelID, ago(l.CreatedAt))
	}
}

func (f *TextFormatter) IssueLinkList(links []models.IssueLink, title string) {
	if title != "" {
		fmt.Printf("%s (%d):\n", title, len(links))
	}
	for _, l := range links {
		fmt.Printf("  %-10s -> %s#%d  synced %s\n", l.LinearIdentifier, l.Repository, l.GitHubIssueNumber, ago(l.LastSyncedAt))
	}
}

func (f *TextFormatter) MilestoneLinkList(links []models.MilestoneLink) {
	fmt.Printf("Milestone links (%d):\n", len(links))
	for _, l := range links {
		ends := "no end date"
		if l.EndsAt != nil {
			ends = "ends " + ago(*l.EndsAt)
		}
		fmt.Printf("  cycle %s -> %s milestone %d (%s)\n", l.CycleID, l.Repository, l.MilestoneNumber, ends)
	}
}

func (f *TextFormatter) IdentityList(ids []models.IdentityMapping) {
	fmt.Printf("Identities (%d):\n", len(ids))
	for _, m := range ids {
		name := m.LinearUsername
		if name == "" {
			name = m.LinearUserID
		}
		fmt.Printf("  %s -> @%s (%d)\n", name, m.GitHubUsername, m.GitHubUserID)
	}
}

func (f *TextFormatter) Counts(c db.Counts) {
	fmt.Printf("Sync links:      %s\n", humanize.Comma(c.SyncLinks))
	fmt.Printf("Issue links:     %s\n", humanize.Comma(c.IssueLinks))
	fmt.Printf("Milestone links: %s\n", humanize.Comma(c.MilestoneLinks))
	fmt.Printf("Identities:      %s\n", humanize.Comma(c.Identities))
}

func (f *TextFormatter) Report(r *reconcile.Report, status int, err error) {
	view := NewReportView(r, status, err)
	fmt.Printf("Event %s: status %d\n", view.EventID, view.Status)
	for _, o := range view.Outcomes {
		field := o.Field
		if field == "" {
			field = "-"
		}
		fmt.Printf("  %-14s %-26s %s\n", field, o.Kind, o.Message)
	}
	if view.Error != "" {
		fmt.Printf("Error: %s\n", view.Error)
	}
}

func (f *TextFormatter) Success(msg string) {
	fmt.Println(msg)
}

func (f *TextFormatter) Error(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}

func (f *TextFormatter) Info(msg string) {
	fmt.Println(msg)
}

func (f *TextFormatter) KeyValue(key, value string) {
	fmt.Printf("%s: %s\n", key, value)
}

func (f *TextFormatter) Section(title string) {
	fmt.Printf("\n%s:\n", title)
}

func (f *TextFormatter) JSON(v interface{}) {
	// TextFormatter doesn't output JSON, but provide fallback
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		f.Error(err)
		return
	}
	fmt.Println(string(data))
}

// JSONFormatter implementations

func (f *JSONFormatter) SyncLinkList(links []models.SyncLink) {
	f.JSON(map[string]interface{}{
		"count":      len(links),
		"sync_links": links,
	})
}

func (f *JSONFormatter) IssueLinkList(links []models.IssueLink, title string) {
	f.JSON(map[string]interface{}{
		"count":       len(links),
		"issue_links": links,
	})
}

func (f *JSONFormatter) MilestoneLinkList(links []models.MilestoneLink) {
	f.JSON(map[string]interface{}{
		"count":           len(links),
		"milestone_links": links,
	})
}

func (f *JSONFormatter) IdentityList(ids []models.IdentityMapping) {
	f.JSON(map[string]interface{}{
		"count":      len(ids),
		"identities": ids,
	})
}

func (f *JSONFormatter) Counts(c db.Counts) {
	f.JSON(c)
}

func (f *JSONFormatter) Report(r *reconcile.Report, status int, err error) {
	f.JSON(NewReportView(r, status, err))
}

func (f *JSONFormatter) Success(msg string) {
	f.JSON(map[string]interface{}{"success": true, "message": msg})
}

func (f *JSONFormatter) Error(err error) {
	f.JSON(map[string]interface{}{"error": true, "message": err.Error()})
}

func (f *JSONFormatter) Info(msg string) {
	f.JSON(map[string]interface{}{"message": msg})
}

func (f *JSONFormatter) KeyValue(key, value string) {
	f.JSON(map[string]string{key: value})
}

func (f *JSONFormatter) Section(title string) {
	// JSON doesn't need section headers
}

func (f *JSONFormatter) JSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, `{"error": true, "message": "JSON marshal error: %s"}`+"\n", err.Error())
		return
	}
	fmt.Println(string(data))
}
