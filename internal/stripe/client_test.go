package stripe

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripeapi "github.com/stripe/stripe-go/v82"

	"github.com/PortNumber53/landing-api/internal/models"
)

type fakeSessions struct {
	params *stripeapi.CheckoutSessionParams
	resp   *stripeapi.CheckoutSession
	err    error
}

func (f *fakeSessions) New(params *stripeapi.CheckoutSessionParams) (*stripeapi.CheckoutSession, error) {
	f.params = params
	return f.resp, f.err
}

func TestCreateCheckoutSession(t *testing.T) {
	fake := &fakeSessions{resp: &stripeapi.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/pay/cs_test_1"}}
	c := &Client{sessions: fake}

	sess, err := c.CreateCheckoutSession(context.Background(), CheckoutSessionInput{
		PriceID:       "price_m",
		Tier:          "starter",
		BillingPeriod: models.BillingMonthly,
		Origin:        "https://example.com",
		Caller:        models.Caller{ID: 42, Email: "jane@example.com", Name: "Jane"},
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", sess.ID)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", sess.URL)

	p := fake.params
	require.NotNil(t, p)
	assert.Equal(t, "subscription", *p.Mode)
	require.Len(t, p.LineItems, 1)
	assert.Equal(t, "price_m", *p.LineItems[0].Price)
	assert.Equal(t, int64(1), *p.LineItems[0].Quantity)
	assert.Equal(t, "https://example.com/?success=true", *p.SuccessURL)
	assert.Equal(t, "https://example.com/?canceled=true", *p.CancelURL)
	assert.Equal(t, "jane@example.com", *p.CustomerEmail)
	assert.Equal(t, "42", *p.ClientReferenceID)
	assert.True(t, *p.AllowPromotionCodes)
	assert.Equal(t, "42", p.Metadata["user_id"])
	assert.Equal(t, "jane@example.com", p.Metadata["customer_email"])
	assert.Equal(t, "Jane", p.Metadata["customer_name"])
	assert.Equal(t, "starter", p.Metadata["tier"])
	assert.Equal(t, "monthly", p.Metadata["billing_period"])
}

func TestCreateCheckoutSessionOmitsBlankEmail(t *testing.T) {
	fake := &fakeSessions{resp: &stripeapi.CheckoutSession{ID: "cs_1", URL: "u"}}
	c := &Client{sessions: fake}

	_, err := c.CreateCheckoutSession(context.Background(), CheckoutSessionInput{PriceID: "p", Caller: models.Caller{ID: 1}})
	require.NoError(t, err)
	assert.Nil(t, fake.params.CustomerEmail)
}

func TestCreateCheckoutSessionErrors(t *testing.T) {
	c := &Client{sessions: &fakeSessions{err: errors.New("card_declined")}}
	_, err := c.CreateCheckoutSession(context.Background(), CheckoutSessionInput{PriceID: "p"})
	assert.ErrorContains(t, err, "card_declined")

	c = &Client{sessions: &fakeSessions{resp: &stripeapi.CheckoutSession{}}}
	_, err = c.CreateCheckoutSession(context.Background(), CheckoutSessionInput{PriceID: "p"})
	assert.ErrorContains(t, err, "missing session ID")

	_, err = c.CreateCheckoutSession(context.Background(), CheckoutSessionInput{})
	assert.ErrorContains(t, err, "price id is required")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.CreateCheckoutSession(ctx, CheckoutSessionInput{PriceID: "p"})
	assert.ErrorIs(t, err, context.Canceled)
}
