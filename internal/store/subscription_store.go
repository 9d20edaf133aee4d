package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/PortNumber53/landing-api/internal/models"
)

// upsertSubscriptionQuery merges one subscription keyed by stripe_subscription_id in a
// single statement. NULL parameters mean "not given" and keep the stored value. A row
// created without an owner borrows the user_id of the newest row for the same customer.
const upsertSubscriptionQuery = `
INSERT INTO subscriptions (
	user_id, stripe_customer_id, stripe_subscription_id, stripe_price_id, status, current_period_end
)
VALUES (
	COALESCE($1::bigint, (
		SELECT prev.user_id FROM subscriptions prev
		WHERE prev.stripe_customer_id = $2 AND prev.user_id IS NOT NULL
		ORDER BY prev.updated_at DESC
		LIMIT 1
	)),
	$2, $3, $4, $5, $6
)
ON CONFLICT (stripe_subscription_id) DO UPDATE
SET user_id = COALESCE($1::bigint, subscriptions.user_id, EXCLUDED.user_id),
    stripe_customer_id = COALESCE(EXCLUDED.stripe_customer_id, subscriptions.stripe_customer_id),
    stripe_price_id = COALESCE(EXCLUDED.stripe_price_id, subscriptions.stripe_price_id),
    status = EXCLUDED.status,
    current_period_end = COALESCE(EXCLUDED.current_period_end, subscriptions.current_period_end),
    updated_at = NOW()
`

// UpsertSubscription creates or merges the subscription keyed by its Stripe id. Zero
// values in rec are treated as "not given"; a zero UserID is resolved from the stored
// row or from another subscription of the same customer.
func (s *Store) UpsertSubscription(ctx context.Context, rec models.SubscriptionRecord) error {
	if rec.StripeSubscriptionID == "" {
		return errors.New("store: upsert subscription: subscription id is required")
	}
	if rec.Status == "" {
		return errors.New("store: upsert subscription: status is required")
	}

	if _, err := s.db.ExecContext(
		ctx,
		upsertSubscriptionQuery,
		nullInt64(rec.UserID),
		nullString(rec.StripeCustomerID),
		rec.StripeSubscriptionID,
		nullString(rec.StripePriceID),
		string(rec.Status),
		nullTime(rec.CurrentPeriodEnd),
	); err != nil {
		return fmt.Errorf("store: upsert subscription %s: %w", rec.StripeSubscriptionID, err)
	}
	return nil
}

// GetLatestSubscriptionByUser returns the user's most recently updated subscription,
// or nil when the user has none.
func (s *Store) GetLatestSubscriptionByUser(ctx context.Context, userID int64) (*models.SubscriptionRecord, error) {
	query := `
SELECT id, user_id, stripe_customer_id, stripe_subscription_id, stripe_price_id,
       status, current_period_end, created_at, updated_at
FROM subscriptions
WHERE user_id = $1
ORDER BY updated_at DESC, id DESC
LIMIT 1
`

	var (
		rec        models.SubscriptionRecord
		ownerID    sql.NullInt64
		customerID sql.NullString
		priceID    sql.NullString
		status     string
		periodEnd  sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&rec.ID,
		&ownerID,
		&customerID,
		&rec.StripeSubscriptionID,
		&priceID,
		&status,
		&periodEnd,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get latest subscription: %w", err)
	}

	rec.UserID = ownerID.Int64
	rec.StripeCustomerID = customerID.String
	rec.StripePriceID = priceID.String
	rec.Status = models.SubscriptionStatus(status)
	rec.CurrentPeriodEnd = nullTimePtr(periodEnd)
	return &rec, nil
}
