package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/PortNumber53/landing-api/internal/auth"
	"github.com/PortNumber53/landing-api/internal/catalog"
	"github.com/PortNumber53/landing-api/internal/models"
	"github.com/PortNumber53/landing-api/internal/stripe"
)

// PriceCatalog is the read-only pricing catalog.
type PriceCatalog interface {
	Tiers() []models.PricingTier
	PriceID(slug string, period models.BillingPeriod) (string, error)
}

// CheckoutCreator creates hosted checkout sessions.
type CheckoutCreator interface {
	CreateCheckoutSession(ctx context.Context, in stripe.CheckoutSessionInput) (*stripe.CheckoutSession, error)
}

// SubscriptionReader looks up a user's subscription.
type SubscriptionReader interface {
	GetLatestSubscriptionByUser(ctx context.Context, userID int64) (*models.SubscriptionRecord, error)
}

// StripeHandler holds dependencies for pricing and checkout handlers
type StripeHandler struct {
	catalog       PriceCatalog
	checkout      CheckoutCreator
	subscriptions SubscriptionReader
	publicBaseURL string
	validate      *validator.Validate
}

// NewStripeHandler creates a new StripeHandler. publicBaseURL, when set, is the
// origin checkout sessions return to; otherwise the request's Origin header is used.
func NewStripeHandler(cat PriceCatalog, checkout CheckoutCreator, subscriptions SubscriptionReader, publicBaseURL string) *StripeHandler {
	return &StripeHandler{
		catalog:       cat,
		checkout:      checkout,
		subscriptions: subscriptions,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		validate:      newValidator(),
	}
}

// RegisterRoutes registers pricing and billing routes. Checkout and subscription
// lookup sit behind requireAuth.
func (h *StripeHandler) RegisterRoutes(router chi.Router, requireAuth func(http.Handler) http.Handler) {
	router.Get("/api/plans", h.ListPlans())
	router.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Post("/api/checkout", h.CreateCheckout())
		r.Get("/api/billing/subscription", h.GetSubscription())
	})
}

// ListPlans returns the pricing tiers in catalog order
func (h *StripeHandler) ListPlans() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"tiers": h.catalog.Tiers()})
	}
}

// CreateCheckout creates a Stripe Checkout session for the authenticated caller
func (h *StripeHandler) CreateCheckout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := auth.CallerFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		var req models.CheckoutRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON payload")
			return
		}
		req.Tier = strings.ToLower(strings.TrimSpace(req.Tier))

		if err := h.validate.Struct(req); err != nil {
			if fields := fieldErrors(err); fields != nil {
				writeJSON(w, http.StatusBadRequest, validationFailed(fields))
				return
			}
			writeError(w, http.StatusBadRequest, "invalid checkout request")
			return
		}

		priceID, err := h.catalog.PriceID(req.Tier, req.BillingPeriod)
		switch {
		case errors.Is(err, catalog.ErrUnknownTier):
			writeJSON(w, http.StatusBadRequest, validationFailed(map[string]string{"tier": "tier is not a known plan"}))
			return
		case err != nil:
			log.Warn().Err(err).Str("tier", req.Tier).Msg("checkout for plan without price")
			writeError(w, http.StatusBadRequest, "no price configured for this plan")
			return
		}

		origin := h.returnOrigin(r)
		if origin == "" {
			writeError(w, http.StatusBadRequest, "missing or invalid Origin header")
			return
		}

		sess, err := h.checkout.CreateCheckoutSession(r.Context(), stripe.CheckoutSessionInput{
			PriceID:       priceID,
			Tier:          req.Tier,
			BillingPeriod: req.BillingPeriod,
			Origin:        origin,
			Caller:        caller,
		})
		if err != nil {
			log.Error().Err(err).Int64("user_id", caller.ID).Str("tier", req.Tier).Msg("failed to create checkout session")
			writeError(w, http.StatusBadGateway, "failed to create checkout session")
			return
		}

		writeJSON(w, http.StatusOK, models.CheckoutResponse{URL: sess.URL})
	}
}

// GetSubscription returns the caller's most recent subscription, or null.
func (h *StripeHandler) GetSubscription() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := auth.CallerFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		sub, err := h.subscriptions.GetLatestSubscriptionByUser(r.Context(), caller.ID)
		if err != nil {
			log.Error().Err(err).Int64("user_id", caller.ID).Msg("failed to load subscription")
			writeError(w, http.StatusInternalServerError, "failed to get subscription")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"subscription": sub})
	}
}

// returnOrigin picks the scheme://host checkout returns to.
func (h *StripeHandler) returnOrigin(r *http.Request) string {
	if h.publicBaseURL != "" {
		return h.publicBaseURL
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	u, err := url.Parse(origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
