package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// CallPolicy controls outbound calls. The zero value of Attempts means one
// attempt; nothing is retried unless configured.
type CallPolicy struct {
	Timeout  time.Duration
	Attempts int
	// Backoff is the wait before the first retry. It doubles per retry.
	Backoff time.Duration
}

// DefaultCallPolicy is fire-once with a 30 second timeout.
func DefaultCallPolicy() CallPolicy {
	return CallPolicy{Timeout: 30 * time.Second, Attempts: 1}
}

// Call describes an outbound call.
type Call struct {
	Op       string
	TicketID string
	Field    string
	Value    any
	// Idempotent calls may be repeated after an ambiguous failure. Calls
	// that create something are only repeated when the remote side
	// provably rejected them (429).
	Idempotent bool
}

// Executor runs outbound calls under a policy and logs every failure with
// the call's context. It holds no state between calls.
type Executor struct {
	policy CallPolicy
	logger *slog.Logger
}

// NewExecutor creates an executor.
func NewExecutor(policy CallPolicy, logger *slog.Logger) *Executor {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	return &Executor{policy: policy, logger: logger}
}

func (x *Executor) backOff(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff = &backoff.ZeroBackOff{}
	if x.policy.Backoff > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = x.policy.Backoff
		exp.Multiplier = 2
		exp.RandomizationFactor = 0
		exp.MaxInterval = 32 * x.policy.Backoff
		exp.MaxElapsedTime = 0
		b = exp
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(x.policy.Attempts-1)), ctx)
}

// Do runs fn, retrying retryable failures while attempts remain. A failure
// is returned as *CallError.
func (x *Executor) Do(ctx context.Context, call Call, fn func(ctx context.Context) error) error {
	attempt := 0
	op := func() error {
		attempt++
		err := x.once(ctx, fn)
		if err != nil && !retryable(err, call.Idempotent) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		x.logger.Warn("outbound call failed, retrying",
			"op", call.Op,
			"ticket_id", call.TicketID,
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
	}

	err := backoff.RetryNotify(op, x.backOff(ctx), notify)
	if err == nil {
		x.logger.Debug("outbound call succeeded",
			"op", call.Op,
			"ticket_id", call.TicketID,
			"field", call.Field,
			"attempt", attempt,
		)
		return nil
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}
	status := StatusOf(err)
	x.logger.Error("outbound call failed",
		"op", call.Op,
		"ticket_id", call.TicketID,
		"field", call.Field,
		"value", call.Value,
		"attempts", attempt,
		"status", status,
		"error", err,
	)
	return &CallError{Op: call.Op, Status: status, Err: err}
}

func (x *Executor) once(ctx context.Context, fn func(ctx context.Context) error) error {
	if x.policy.Timeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, x.policy.Timeout)
	defer cancel()
	return fn(callCtx)
}

// retryable reports whether a failure might succeed on a later attempt.
// Rate limits always qualify. Timeouts, transport errors without a status
// and 5xx qualify only for idempotent calls: the remote side may have
// applied the request before failing to answer.
func retryable(err error, idempotent bool) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	status := StatusOf(err)
	switch {
	case status == http.StatusTooManyRequests:
		return true
	case !idempotent:
		return false
	case status == 0:
		return true
	case status >= 500:
		return true
	default:
		return false
	}
}
