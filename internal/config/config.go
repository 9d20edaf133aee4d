package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures runtime configuration values used by the backend service.
type Config struct {
	// ServerAddress is the host:port pair the HTTP server listens on. Defaults to ":18111".
	ServerAddress string

	// DatabaseURL is the Postgres DSN used by database/sql.
	DatabaseURL string

	// StripeSecretKey authenticates outbound calls to the Stripe API (checkout sessions).
	StripeSecretKey string

	// StripeWebhookSecret is the endpoint signing secret ("whsec_...") shared with Stripe.
	StripeWebhookSecret string

	// StripeWebhookTolerance bounds how old a signed webhook timestamp may be. Defaults to 5m.
	StripeWebhookTolerance time.Duration

	// SessionSecret verifies the HS256 session tokens issued by the site's identity provider.
	SessionSecret string

	// PublicBaseURL is used to build checkout return URLs when the request carries no Origin.
	PublicBaseURL string

	// FormRelayURL is the form-relay endpoint contact submissions are forwarded to
	// (e.g. "https://formspree.io/f/<form id>"). The relay worker is disabled when empty.
	FormRelayURL string

	// PricingCatalogPath optionally points at a YAML pricing catalog overriding the embedded one.
	PricingCatalogPath string

	// LogLevel is the minimum zerolog level ("debug", "info", "warn", "error"). Defaults to "info".
	LogLevel string

	// LogFormat selects "json" or "console" output. Defaults to "json".
	LogFormat string

	// WebhookDedupSize is the number of recently applied event ids remembered in memory.
	WebhookDedupSize int
}

const (
	defaultServerAddress    = ":18111"
	defaultWebhookTolerance = 5 * time.Minute
	defaultLogLevel         = "info"
	defaultLogFormat        = "json"
	defaultWebhookDedupSize = 4096

	envServerAddress       = "BACKEND_ADDR"
	envDatabaseURL         = "DATABASE_URL"
	envStripeSecretKey     = "STRIPE_SECRET_KEY"
	envStripeWebhookSecret = "STRIPE_WEBHOOK_SECRET"
	envWebhookTolerance    = "STRIPE_WEBHOOK_TOLERANCE"
	envSessionSecret       = "SESSION_SECRET"
	envPublicBaseURL       = "PUBLIC_BASE_URL"
	envFormRelayURL        = "FORM_RELAY_URL"
	envPricingCatalogPath  = "PRICING_CATALOG_PATH"
	envLogLevel            = "LOG_LEVEL"
	envLogFormat           = "LOG_FORMAT"
	envWebhookDedupSize    = "WEBHOOK_DEDUP_SIZE"
)

// Load reads configuration from environment variables, applies defaults, and returns
// a Config structure. Required values return an error when missing.
func Load() (Config, error) {
	cfg := Config{
		ServerAddress:          firstNonEmpty(os.Getenv(envServerAddress), defaultServerAddress),
		DatabaseURL:            strings.TrimSpace(os.Getenv(envDatabaseURL)),
		StripeSecretKey:        strings.TrimSpace(os.Getenv(envStripeSecretKey)),
		StripeWebhookSecret:    strings.TrimSpace(os.Getenv(envStripeWebhookSecret)),
		StripeWebhookTolerance: defaultWebhookTolerance,
		SessionSecret:          os.Getenv(envSessionSecret),
		PublicBaseURL:          strings.TrimRight(strings.TrimSpace(os.Getenv(envPublicBaseURL)), "/"),
		FormRelayURL:           strings.TrimSpace(os.Getenv(envFormRelayURL)),
		PricingCatalogPath:     strings.TrimSpace(os.Getenv(envPricingCatalogPath)),
		LogLevel:               strings.ToLower(firstNonEmpty(os.Getenv(envLogLevel), defaultLogLevel)),
		LogFormat:              strings.ToLower(firstNonEmpty(os.Getenv(envLogFormat), defaultLogFormat)),
		WebhookDedupSize:       defaultWebhookDedupSize,
	}

	if value := strings.TrimSpace(os.Getenv(envWebhookTolerance)); value != "" {
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("invalid %s: %q", envWebhookTolerance, value)
		}
		cfg.StripeWebhookTolerance = d
	}

	if value := strings.TrimSpace(os.Getenv(envWebhookDedupSize)); value != "" {
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("invalid %s: %q", envWebhookDedupSize, value)
		}
		cfg.WebhookDedupSize = n
	}

	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		return Config{}, fmt.Errorf("invalid %s: %q (want json or console)", envLogFormat, cfg.LogFormat)
	}

	required := []struct {
		name  string
		value string
	}{
		{envDatabaseURL, cfg.DatabaseURL},
		{envStripeSecretKey, cfg.StripeSecretKey},
		{envStripeWebhookSecret, cfg.StripeWebhookSecret},
		{envSessionSecret, cfg.SessionSecret},
	}
	for _, r := range required {
		if r.value == "" {
			return Config{}, fmt.Errorf("%s is required", r.name)
		}
	}

	return cfg, nil
}

// DatabaseOnly loads just the values the migration tooling needs.
func DatabaseOnly() (Config, error) {
	cfg := Config{DatabaseURL: strings.TrimSpace(os.Getenv(envDatabaseURL))}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("%s is required", envDatabaseURL)
	}
	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
