package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PortNumber53/landing-api/internal/auth"
	"github.com/PortNumber53/landing-api/internal/catalog"
	"github.com/PortNumber53/landing-api/internal/models"
	"github.com/PortNumber53/landing-api/internal/stripe"
)

var sessionSecret = []byte("session-secret")

type checkoutStub struct {
	got stripe.CheckoutSessionInput
	err error
}

func (c *checkoutStub) CreateCheckoutSession(_ context.Context, in stripe.CheckoutSessionInput) (*stripe.CheckoutSession, error) {
	c.got = in
	if c.err != nil {
		return nil, c.err
	}
	return &stripe.CheckoutSession{ID: "cs_1", URL: "https://checkout.stripe.com/c/pay/cs_1"}, nil
}

type subscriptionReaderStub struct {
	rec *models.SubscriptionRecord
	err error
}

func (s *subscriptionReaderStub) GetLatestSubscriptionByUser(context.Context, int64) (*models.SubscriptionRecord, error) {
	return s.rec, s.err
}

func newBillingRouter(t *testing.T, checkout CheckoutCreator, subs SubscriptionReader, publicBaseURL string) http.Handler {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)

	router := chi.NewRouter()
	NewStripeHandler(cat, checkout, subs, publicBaseURL).RegisterRoutes(router, auth.Middleware(sessionSecret))
	return router
}

func authed(t *testing.T, req *http.Request) *http.Request {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		Email: "jane@example.com",
		Name:  "Jane",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "42",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(sessionSecret)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestListPlans(t *testing.T) {
	router := newBillingRouter(t, &checkoutStub{}, &subscriptionReaderStub{}, "")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/plans", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Tiers []models.PricingTier `json:"tiers"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Tiers, 3)
	assert.Equal(t, "starter", body.Tiers[0].Slug)
	assert.Equal(t, "professional", body.Tiers[1].Slug)
	assert.Equal(t, "enterprise", body.Tiers[2].Slug)
}

func TestCreateCheckout(t *testing.T) {
	stub := &checkoutStub{}
	router := newBillingRouter(t, stub, &subscriptionReaderStub{}, "")

	req := authed(t, httptest.NewRequest(http.MethodPost, "/api/checkout", bytes.NewBufferString(`{"tier":"professional","billingPeriod":"annual"}`)))
	req.Header.Set("Origin", "https://example.com")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"url":"https://checkout.stripe.com/c/pay/cs_1"}`, rr.Body.String())

	cat, _ := catalog.Default()
	wantPrice, err := cat.PriceID("professional", models.BillingAnnual)
	require.NoError(t, err)
	assert.Equal(t, wantPrice, stub.got.PriceID)
	assert.Equal(t, "https://example.com", stub.got.Origin)
	assert.Equal(t, int64(42), stub.got.Caller.ID)
	assert.Equal(t, models.BillingAnnual, stub.got.BillingPeriod)
}

func TestCreateCheckoutUsesPublicBaseURL(t *testing.T) {
	stub := &checkoutStub{}
	router := newBillingRouter(t, stub, &subscriptionReaderStub{}, "https://landing.example.com/")

	req := authed(t, httptest.NewRequest(http.MethodPost, "/api/checkout", bytes.NewBufferString(`{"tier":"enterprise","billingPeriod":"monthly"}`)))
	req.Header.Set("Origin", "https://evil.example.net")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "https://landing.example.com", stub.got.Origin)
}

func TestCreateCheckoutRejects(t *testing.T) {
	cases := map[string]struct {
		body   string
		origin string
		status int
	}{
		"bad json":       {`{`, "https://example.com", http.StatusBadRequest},
		"unknown tier":   {`{"tier":"platinum","billingPeriod":"monthly"}`, "https://example.com", http.StatusBadRequest},
		"bad period":     {`{"tier":"starter","billingPeriod":"weekly"}`, "https://example.com", http.StatusBadRequest},
		"missing fields": {`{}`, "https://example.com", http.StatusBadRequest},
		"no origin":      {`{"tier":"starter","billingPeriod":"monthly"}`, "", http.StatusBadRequest},
		"bad origin":     {`{"tier":"starter","billingPeriod":"monthly"}`, "javascript:alert(1)", http.StatusBadRequest},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			stub := &checkoutStub{}
			router := newBillingRouter(t, stub, &subscriptionReaderStub{}, "")

			req := authed(t, httptest.NewRequest(http.MethodPost, "/api/checkout", bytes.NewBufferString(tc.body)))
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			assert.Equal(t, tc.status, rr.Code)
			assert.Empty(t, stub.got.PriceID)
		})
	}
}

func TestCreateCheckoutRequiresAuth(t *testing.T) {
	router := newBillingRouter(t, &checkoutStub{}, &subscriptionReaderStub{}, "")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/checkout", bytes.NewBufferString(`{"tier":"starter","billingPeriod":"monthly"}`)))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCreateCheckoutProviderFailure(t *testing.T) {
	router := newBillingRouter(t, &checkoutStub{err: errors.New("stripe down")}, &subscriptionReaderStub{}, "https://example.com")

	req := authed(t, httptest.NewRequest(http.MethodPost, "/api/checkout", bytes.NewBufferString(`{"tier":"starter","billingPeriod":"monthly"}`)))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestGetSubscription(t *testing.T) {
	end := time.Date(2026, 11, 18, 0, 0, 0, 0, time.UTC)
	rec := &models.SubscriptionRecord{ID: 1, UserID: 42, StripeSubscriptionID: "sub_1", Status: models.SubscriptionActive, CurrentPeriodEnd: &end}

	router := newBillingRouter(t, &checkoutStub{}, &subscriptionReaderStub{rec: rec}, "")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authed(t, httptest.NewRequest(http.MethodGet, "/api/billing/subscription", nil)))

	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Subscription *models.SubscriptionRecord `json:"subscription"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.NotNil(t, body.Subscription)
	assert.Equal(t, "sub_1", body.Subscription.StripeSubscriptionID)
	assert.Equal(t, models.SubscriptionActive, body.Subscription.Status)

	router = newBillingRouter(t, &checkoutStub{}, &subscriptionReaderStub{}, "")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, authed(t, httptest.NewRequest(http.MethodGet, "/api/billing/subscription", nil)))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"subscription":null}`, rr.Body.String())

	router = newBillingRouter(t, &checkoutStub{}, &subscriptionReaderStub{err: errors.New("db down")}, "")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, authed(t, httptest.NewRequest(http.MethodGet, "/api/billing/subscription", nil)))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
