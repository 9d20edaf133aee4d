package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/PortNumber53/landing-api/internal/models"
	"github.com/PortNumber53/landing-api/internal/reconcile"
	"github.com/PortNumber53/landing-api/internal/stripe"
)

// maxWebhookBody caps the webhook body read. Stripe events are well below this.
const maxWebhookBody = 65536

// EventVerifier authenticates a raw webhook delivery.
type EventVerifier interface {
	ConstructEvent(payload []byte, signatureHeader string) (stripe.Event, error)
}

// EventApplier reconciles a verified event.
type EventApplier interface {
	Apply(ctx context.Context, evt stripe.Event) (reconcile.Outcome, error)
}

// WebhookEventStore keeps the delivery audit log.
type WebhookEventStore interface {
	RecordWebhookEvent(ctx context.Context, evt models.WebhookEventLog) error
	MarkWebhookEventProcessed(ctx context.Context, eventID, outcome, processingErr string) error
}

// WebhookObserver counts webhook deliveries.
type WebhookObserver interface {
	ObserveWebhook(eventType, outcome string, d time.Duration)
}

// WebhookHandler receives Stripe webhook deliveries.
type WebhookHandler struct {
	verifier EventVerifier
	applier  EventApplier
	events   WebhookEventStore
	observer WebhookObserver
}

// NewWebhookHandler creates a WebhookHandler. events and observer may be nil.
func NewWebhookHandler(verifier EventVerifier, applier EventApplier, events WebhookEventStore, observer WebhookObserver) *WebhookHandler {
	return &WebhookHandler{verifier: verifier, applier: applier, events: events, observer: observer}
}

// RegisterRoutes registers the webhook route
func (h *WebhookHandler) RegisterRoutes(router chi.Router) {
	router.Post("/api/webhooks/stripe", h.ServeHTTP)
}

// ServeHTTP verifies the delivery against the raw body, applies it and acknowledges.
// Only persistence failures answer 500, which makes Stripe redeliver.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if len(body) > maxWebhookBody {
		h.observe("", "too_large", 0)
		http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
		return
	}

	evt, err := h.verifier.ConstructEvent(body, r.Header.Get(stripe.SignatureHeader))
	if errors.Is(err, stripe.ErrMissingSignature) {
		log.Warn().Str("remote_addr", r.RemoteAddr).Msg("stripe webhook without signature header")
		h.observe("", "missing_signature", 0)
		http.Error(w, "Missing signature", http.StatusBadRequest)
		return
	}
	if err != nil {
		log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("stripe webhook signature verification failed")
		h.observe("", "invalid_signature", 0)
		http.Error(w, fmt.Sprintf("Webhook Error: %v", err), http.StatusBadRequest)
		return
	}

	start := time.Now()
	outcome, applyErr := h.applier.Apply(r.Context(), evt)
	h.observe(evt.Type, string(outcome), time.Since(start))

	if outcome == reconcile.TestEvent {
		writeJSON(w, http.StatusOK, map[string]bool{"verified": true})
		return
	}

	h.audit(r.Context(), evt, body, outcome, applyErr)

	if applyErr != nil {
		log.Error().Err(applyErr).Str("event_id", evt.ID).Str("type", evt.Type).Msg("stripe webhook processing failed")
		writeError(w, http.StatusInternalServerError, "Webhook processing failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// audit records the delivery. A duplicate only counts as another delivery and keeps
// the outcome of the run that applied it. Failures are logged and never change the response.
func (h *WebhookHandler) audit(ctx context.Context, evt stripe.Event, body []byte, outcome reconcile.Outcome, applyErr error) {
	if h.events == nil || evt.ID == "" {
		return
	}
	logger := log.With().Str("event_id", evt.ID).Logger()

	err := h.events.RecordWebhookEvent(ctx, models.WebhookEventLog{
		EventID:    evt.ID,
		EventType:  evt.Type,
		Payload:    body,
		ReceivedAt: time.Now().UTC(),
	})
	if err != nil {
		logger.Warn().Err(err).Msg("failed to record webhook event")
		return
	}

	if outcome == reconcile.Duplicate {
		return
	}

	processingErr := ""
	if applyErr != nil {
		processingErr = applyErr.Error()
	}
	if err := h.events.MarkWebhookEventProcessed(ctx, evt.ID, string(outcome), processingErr); err != nil {
		logger.Warn().Err(err).Msg("failed to mark webhook event processed")
	}
}

func (h *WebhookHandler) observe(eventType, outcome string, d time.Duration) {
	if h.observer != nil {
		h.observer.ObserveWebhook(eventType, outcome, d)
	}
}
