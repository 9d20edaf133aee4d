package models

// BillingPeriod selects which price of a tier a checkout uses.
type BillingPeriod string

const (
	BillingMonthly BillingPeriod = "monthly"
	BillingAnnual  BillingPeriod = "annual"
)

// PricingTier is a named pricing/feature bundle shown on the pricing page.
type PricingTier struct {
	Slug           string   `json:"slug" yaml:"slug"`
	Name           string   `json:"name" yaml:"name"`
	Description    string   `json:"description" yaml:"description"`
	MonthlyPrice   int      `json:"monthly_price" yaml:"monthly_price"`
	AnnualPrice    int      `json:"annual_price" yaml:"annual_price"`
	Features       []string `json:"features" yaml:"features"`
	MonthlyPriceID string   `json:"monthly_price_id,omitempty" yaml:"monthly_price_id"`
	AnnualPriceID  string   `json:"annual_price_id,omitempty" yaml:"annual_price_id"`
	ContactSales   bool     `json:"contact_sales" yaml:"contact_sales"`
}

// CheckoutRequest represents a request to create a Stripe checkout session. Tier
// must name a catalog tier.
type CheckoutRequest struct {
	Tier          string        `json:"tier" validate:"required,max=64"`
	BillingPeriod BillingPeriod `json:"billingPeriod" validate:"required,oneof=monthly annual"`
}

// CheckoutResponse carries the hosted checkout URL the client redirects to.
type CheckoutResponse struct {
	URL string `json:"url"`
}
