// Package webhook receives Linear webhooks and hands them to the engine.
package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"ticketsync/internal/models"
	"ticketsync/internal/reconcile"
)

// maxBodySize bounds a webhook payload. Linear payloads are a few KB.
const maxBodySize = 1 << 20

// deduplicationWindow is how long delivery ids are remembered. Linear
// retries within minutes.
const deduplicationWindow = time.Hour

// Linear's webhook headers.
const (
	HeaderSignature = "Linear-Signature"
	HeaderDelivery  = "Linear-Delivery"
	HeaderEvent     = "Linear-Event"
)

// Processor reconciles one event.
type Processor interface {
	Handle(ctx context.Context, ev *models.Event) (*reconcile.Report, error)
}

// Handler verifies, deduplicates and decodes Linear webhooks, then runs
// them through a Processor synchronously. The response status is the
// engine's verdict for the event.
type Handler struct {
	secret    []byte
	processor Processor
	logger    *slog.Logger
	now       func() time.Time

	mu         sync.Mutex
	deliveries map[string]time.Time
}

// NewHandler creates a handler. An empty secret disables signature checks,
// which is only meant for local replay.
func NewHandler(secret []byte, processor Processor, logger *slog.Logger) *Handler {
	if processor == nil {
		panic("webhook: processor is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		secret:     secret,
		processor:  processor,
		logger:     logger,
		now:        time.Now,
		deliveries: make(map[string]time.Time),
	}
}

// ServeHTTP handles a single webhook request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		h.logger.Error("webhook: failed to read body", "error", err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}
	if len(body) == 0 {
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	if len(h.secret) > 0 {
		if err := VerifySignature(h.secret, body, r.Header.Get(HeaderSignature)); err != nil {
			h.logger.Warn("webhook: signature verification failed",
				"error", err,
				"remote_addr", r.RemoteAddr,
			)
			http.Error(w, "", http.StatusUnauthorized)
			return
		}
	}

	deliveryID := r.Header.Get(HeaderDelivery)
	if deliveryID != "" && h.isDuplicate(deliveryID) {
		h.logger.Debug("webhook: duplicate delivery, ignoring", "delivery_id", deliveryID)
		w.WriteHeader(http.StatusOK)
		return
	}

	ev, err := ParseEvent(body)
	if err != nil {
		// Retrying will not make the payload decodable.
		level := slog.LevelWarn
		if errors.Is(err, ErrUnsupported) {
			level = slog.LevelDebug
		}
		h.logger.Log(r.Context(), level, "webhook: event not handled",
			"delivery_id", deliveryID,
			"event_type", r.Header.Get(HeaderEvent),
			"error", err,
		)
		w.WriteHeader(http.StatusOK)
		return
	}

	report, err := h.processor.Handle(r.Context(), ev)
	status := reconcile.HTTPStatus(err)
	outcome := ""
	if report != nil {
		outcome = report.String()
	}
	if status >= http.StatusInternalServerError {
		// The sender retries on failure; let it.
		h.forget(deliveryID)
	}
	h.logger.Info("webhook processed",
		"delivery_id", deliveryID,
		"action", string(ev.Action),
		"entity", string(ev.Entity),
		"status", status,
		"outcome", outcome,
	)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	io.WriteString(w, outcome)
}

// isDuplicate checks and records a delivery id, pruning expired entries.
func (h *Handler) isDuplicate(deliveryID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	for id, receivedAt := range h.deliveries {
		if now.Sub(receivedAt) > deduplicationWindow {
			delete(h.deliveries, id)
		}
	}

	if _, exists := h.deliveries[deliveryID]; exists {
		return true
	}
	h.deliveries[deliveryID] = now
	return false
}

func (h *Handler) forget(deliveryID string) {
	if deliveryID == "" {
		return
	}
	h.mu.Lock()
	delete(h.deliveries, deliveryID)
	h.mu.Unlock()
}

// NewMux routes the webhook endpoint and a health check.
func NewMux(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/webhooks/linear", h)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"status":"ok"}`)
	})
	return mux
}
