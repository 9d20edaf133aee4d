// Package catalog holds the read-only pricing tier catalog shown on the pricing page
// and used to resolve checkout prices.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/PortNumber53/landing-api/internal/models"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// ErrUnknownTier is returned when a slug is not part of the catalog.
var ErrUnknownTier = errors.New("catalog: unknown tier")

// ErrNoPrice is returned when a tier has no price configured for a billing period.
var ErrNoPrice = errors.New("catalog: tier has no price for billing period")

// Catalog is an ordered, immutable set of pricing tiers.
type Catalog struct {
	tiers  []models.PricingTier
	bySlug map[string]int
}

type document struct {
	Tiers []models.PricingTier `yaml:"tiers"`
}

// Default returns the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads the catalog at path, or the embedded default when path is empty.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes and validates a YAML catalog document.
func Parse(raw []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	if len(doc.Tiers) == 0 {
		return nil, errors.New("catalog: no tiers defined")
	}

	c := &Catalog{bySlug: make(map[string]int, len(doc.Tiers))}
	for i, tier := range doc.Tiers {
		tier.Slug = strings.ToLower(strings.TrimSpace(tier.Slug))
		if tier.Slug == "" {
			return nil, fmt.Errorf("catalog: tier %d has no slug", i)
		}
		if strings.TrimSpace(tier.Name) == "" {
			return nil, fmt.Errorf("catalog: tier %q has no name", tier.Slug)
		}
		if _, dup := c.bySlug[tier.Slug]; dup {
			return nil, fmt.Errorf("catalog: duplicate tier %q", tier.Slug)
		}
		if !tier.ContactSales && (tier.MonthlyPriceID == "" || tier.AnnualPriceID == "") {
			return nil, fmt.Errorf("catalog: self-serve tier %q needs monthly and annual price ids", tier.Slug)
		}
		c.bySlug[tier.Slug] = len(c.tiers)
		c.tiers = append(c.tiers, tier)
	}
	return c, nil
}

// Tiers returns a copy of the tiers in catalog order.
func (c *Catalog) Tiers() []models.PricingTier {
	out := make([]models.PricingTier, len(c.tiers))
	for i, t := range c.tiers {
		t.Features = append([]string(nil), t.Features...)
		out[i] = t
	}
	return out
}

// Tier looks up a tier by slug.
func (c *Catalog) Tier(slug string) (models.PricingTier, error) {
	i, ok := c.bySlug[strings.ToLower(strings.TrimSpace(slug))]
	if !ok {
		return models.PricingTier{}, fmt.Errorf("%w: %q", ErrUnknownTier, slug)
	}
	return c.tiers[i], nil
}

// PriceID resolves the provider price id for a tier and billing period.
func (c *Catalog) PriceID(slug string, period models.BillingPeriod) (string, error) {
	tier, err := c.Tier(slug)
	if err != nil {
		return "", err
	}

	var id string
	switch period {
	case models.BillingMonthly:
		id = tier.MonthlyPriceID
	case models.BillingAnnual:
		id = tier.AnnualPriceID
	default:
		return "", fmt.Errorf("catalog: unknown billing period %q", period)
	}
	if id == "" {
		return "", fmt.Errorf("%w: %s/%s", ErrNoPrice, tier.Slug, period)
	}
	return id, nil
}
