package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/PortNumber53/landing-api/internal/models"
)

const recordWebhookEventQuery = `
INSERT INTO stripe_webhook_events (event_id, event_type, payload, received_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (event_id) DO UPDATE
SET payload = EXCLUDED.payload,
    received_at = EXCLUDED.received_at,
    deliveries = stripe_webhook_events.deliveries + 1
`

// RecordWebhookEvent stores a verified delivery in the audit log. Redeliveries of the
// same event id refresh the payload and bump the delivery count; the processing result
// of an earlier delivery stays until MarkWebhookEventProcessed replaces it.
func (s *Store) RecordWebhookEvent(ctx context.Context, evt models.WebhookEventLog) error {
	if evt.EventID == "" {
		return errors.New("store: record webhook event: event id is required")
	}

	if _, err := s.db.ExecContext(ctx, recordWebhookEventQuery, evt.EventID, evt.EventType, evt.Payload, evt.ReceivedAt.UTC()); err != nil {
		return fmt.Errorf("store: record webhook event %s: %w", evt.EventID, err)
	}
	return nil
}

// MarkWebhookEventProcessed stamps the audit row with the processing result. An empty
// processingErr records success.
func (s *Store) MarkWebhookEventProcessed(ctx context.Context, eventID, outcome, processingErr string) error {
	query := `
UPDATE stripe_webhook_events
SET processed_at = NOW(),
    outcome = $2,
    processing_error = $3
WHERE event_id = $1
`
	if _, err := s.db.ExecContext(ctx, query, eventID, outcome, nullString(processingErr)); err != nil {
		return fmt.Errorf("store: mark webhook event %s processed: %w", eventID, err)
	}
	return nil
}
