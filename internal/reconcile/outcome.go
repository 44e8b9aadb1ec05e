package reconcile

import (
	"fmt"
	"strings"
)

// OutcomeKind classifies what a reconciler did.
type OutcomeKind int

const (
	Applied OutcomeKind = iota
	Skipped
	SkippedNotPublic
	SkippedNoLink
	SkippedAlreadySynced
	Failed
)

func (k OutcomeKind) String() string {
	switch k {
	case Applied:
		return "applied"
	case Skipped:
		return "skipped"
	case SkippedNotPublic:
		return "skipped (not public)"
	case SkippedNoLink:
		return "skipped (no link)"
	case SkippedAlreadySynced:
		return "skipped (already synced)"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the human-readable result of one reconciler.
type Outcome struct {
	Field   string
	Kind    OutcomeKind
	Message string
}

func (o Outcome) String() string {
	if o.Field == "" {
		return o.Message
	}
	return o.Field + ": " + o.Message
}

func applied(format string, args ...any) Outcome {
	return Outcome{Kind: Applied, Message: fmt.Sprintf(format, args...)}
}

func skipped(kind OutcomeKind, format string, args ...any) Outcome {
	return Outcome{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func failed(format string, args ...any) Outcome {
	return Outcome{Kind: Failed, Message: fmt.Sprintf(format, args...)}
}

// Report collects the outcomes of every reconciler run for one event.
type Report struct {
	EventID  string
	Outcomes []Outcome
}

func (r *Report) add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
}

// Find returns the outcome recorded for field.
func (r *Report) Find(field string) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.Field == field {
			return o, true
		}
	}
	return Outcome{}, false
}

func (r *Report) String() string {
	parts := make([]string, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		parts = append(parts, o.String())
	}
	return strings.Join(parts, "; ")
}
