package stripe

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"
	stripeapi "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"github.com/PortNumber53/landing-api/internal/models"
)

// sessionCreator is the slice of the Stripe SDK the Client needs.
type sessionCreator interface {
	New(params *stripeapi.CheckoutSessionParams) (*stripeapi.CheckoutSession, error)
}

// Client wraps the Stripe API client. It is built once at startup and injected into
// the handlers that need it.
type Client struct {
	sessions sessionCreator
}

// NewClient creates a new Stripe API client for the given secret key.
func NewClient(secretKey string) *Client {
	api := client.New(secretKey, nil)
	return &Client{sessions: api.CheckoutSessions}
}

// CheckoutSessionInput describes a subscription checkout for one user.
type CheckoutSessionInput struct {
	PriceID       string
	Tier          string
	BillingPeriod models.BillingPeriod
	Origin        string
	Caller        models.Caller
}

// CheckoutSession is the created session's id and hosted redirect URL.
type CheckoutSession struct {
	ID  string
	URL string
}

// CreateCheckoutSession creates a Stripe Checkout session for a subscription. The
// caller's id is carried in metadata so the completion webhook can link the
// subscription to the account.
func (c *Client) CreateCheckoutSession(ctx context.Context, in CheckoutSessionInput) (*CheckoutSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if in.PriceID == "" {
		return nil, errors.New("stripe: create checkout session: price id is required")
	}

	userID := strconv.FormatInt(in.Caller.ID, 10)
	params := &stripeapi.CheckoutSessionParams{
		Mode:               stripeapi.String(string(stripeapi.CheckoutSessionModeSubscription)),
		PaymentMethodTypes: stripeapi.StringSlice([]string{"card"}),
		LineItems: []*stripeapi.CheckoutSessionLineItemParams{
			{
				Price:    stripeapi.String(in.PriceID),
				Quantity: stripeapi.Int64(1),
			},
		},
		SuccessURL:          stripeapi.String(in.Origin + "/?success=true"),
		CancelURL:           stripeapi.String(in.Origin + "/?canceled=true"),
		ClientReferenceID:   stripeapi.String(userID),
		AllowPromotionCodes: stripeapi.Bool(true),
	}
	if in.Caller.Email != "" {
		params.CustomerEmail = stripeapi.String(in.Caller.Email)
	}
	params.AddMetadata("user_id", userID)
	params.AddMetadata("customer_email", in.Caller.Email)
	params.AddMetadata("customer_name", in.Caller.Name)
	params.AddMetadata("tier", in.Tier)
	params.AddMetadata("billing_period", string(in.BillingPeriod))

	sess, err := c.sessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create checkout session: %w", err)
	}
	if sess == nil || sess.ID == "" {
		return nil, errors.New("stripe: create checkout session: missing session ID in response")
	}

	log.Info().
		Str("session_id", sess.ID).
		Int64("user_id", in.Caller.ID).
		Str("tier", in.Tier).
		Str("billing_period", string(in.BillingPeriod)).
		Msg("stripe checkout session created")

	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}
