package models

import "time"

// SubscriptionStatus is the provider-reported state of a subscription. Values other
// than the constants below are passed through verbatim.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionTrialing SubscriptionStatus = "trialing"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// SubscriptionRecord mirrors one Stripe subscription, keyed by StripeSubscriptionID.
//
// Zero values mean "not given" when the record is used as an upsert: a UserID of 0
// leaves ownership to the store, and empty strings or a nil CurrentPeriodEnd keep
// whatever the stored record already has.
type SubscriptionRecord struct {
	ID                   int64              `json:"id,omitempty"`
	UserID               int64              `json:"user_id"`
	StripeCustomerID     string             `json:"stripe_customer_id"`
	StripeSubscriptionID string             `json:"stripe_subscription_id"`
	StripePriceID        string             `json:"stripe_price_id,omitempty"`
	Status               SubscriptionStatus `json:"status"`
	CurrentPeriodEnd     *time.Time         `json:"current_period_end,omitempty"`
	CreatedAt            time.Time          `json:"created_at,omitempty"`
	UpdatedAt            time.Time          `json:"updated_at,omitempty"`
}

// WebhookEventLog is the audit row written for every verified webhook delivery.
type WebhookEventLog struct {
	EventID         string     `json:"event_id"`
	EventType       string     `json:"event_type"`
	Payload         []byte     `json:"-"`
	ReceivedAt      time.Time  `json:"received_at"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	ProcessingError string     `json:"processing_error,omitempty"`
}
