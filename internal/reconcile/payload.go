package reconcile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PortNumber53/landing-api/internal/models"
)

var (
	errMissingSubscription = errors.New("missing subscription id")
	errMissingStatus       = errors.New("missing subscription status")
	errMissingUser         = errors.New("missing user_id metadata")
)

// objectID decodes a reference that Stripe sends either as a bare id or, when
// expanded, as an object carrying an "id" field.
type objectID string

func (o *objectID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*o = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*o = objectID(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*o = objectID(obj.ID)
	return nil
}

type checkoutSession struct {
	ID           string            `json:"id"`
	Customer     objectID          `json:"customer"`
	Subscription objectID          `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

type subscription struct {
	ID               string   `json:"id"`
	Customer         objectID `json:"customer"`
	Status           string   `json:"status"`
	CurrentPeriodEnd int64    `json:"current_period_end"`
	Items            struct {
		Data []struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
			Price            struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

// checkoutRecord builds the record for a completed checkout. errMissingUser means
// the session cannot be attributed to an account.
func checkoutRecord(data json.RawMessage) (models.SubscriptionRecord, error) {
	var sess checkoutSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return models.SubscriptionRecord{}, fmt.Errorf("decode checkout session: %w", err)
	}
	if sess.Subscription == "" {
		return models.SubscriptionRecord{}, errMissingSubscription
	}

	raw := strings.TrimSpace(sess.Metadata["user_id"])
	if raw == "" {
		return models.SubscriptionRecord{}, errMissingUser
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		return models.SubscriptionRecord{}, fmt.Errorf("%w: invalid value %q", errMissingUser, raw)
	}

	return models.SubscriptionRecord{
		UserID:               userID,
		StripeCustomerID:     string(sess.Customer),
		StripeSubscriptionID: string(sess.Subscription),
		Status:               models.SubscriptionActive,
	}, nil
}

func updatedRecord(data json.RawMessage) (models.SubscriptionRecord, error) {
	sub, err := decodeSubscription(data)
	if err != nil {
		return models.SubscriptionRecord{}, err
	}
	if sub.Status == "" {
		return models.SubscriptionRecord{}, errMissingStatus
	}

	rec := models.SubscriptionRecord{
		StripeCustomerID:     string(sub.Customer),
		StripeSubscriptionID: sub.ID,
		Status:               models.SubscriptionStatus(sub.Status),
	}

	periodEnd := sub.CurrentPeriodEnd
	if len(sub.Items.Data) > 0 {
		first := sub.Items.Data[0]
		rec.StripePriceID = first.Price.ID
		// Newer API versions only report the period on the subscription items.
		if periodEnd == 0 {
			periodEnd = first.CurrentPeriodEnd
		}
	}
	if periodEnd > 0 {
		end := time.Unix(periodEnd, 0).UTC()
		rec.CurrentPeriodEnd = &end
	}
	return rec, nil
}

func deletedRecord(data json.RawMessage) (models.SubscriptionRecord, error) {
	sub, err := decodeSubscription(data)
	if err != nil {
		return models.SubscriptionRecord{}, err
	}
	return models.SubscriptionRecord{
		StripeCustomerID:     string(sub.Customer),
		StripeSubscriptionID: sub.ID,
		Status:               models.SubscriptionCanceled,
	}, nil
}

func decodeSubscription(data json.RawMessage) (subscription, error) {
	var sub subscription
	if err := json.Unmarshal(data, &sub); err != nil {
		return subscription{}, fmt.Errorf("decode subscription: %w", err)
	}
	if sub.ID == "" {
		return subscription{}, errMissingSubscription
	}
	return sub, nil
}
