package stripe

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	stripeapi "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// SignatureHeader is the request header Stripe signs webhook deliveries with.
const SignatureHeader = "Stripe-Signature"

// DefaultTolerance is how old a signed timestamp may be before it is rejected.
const DefaultTolerance = webhook.DefaultTolerance

var (
	// ErrMissingSignature means the delivery carried no signature header at all.
	ErrMissingSignature = errors.New("stripe: missing webhook signature")
	// ErrInvalidSignature means the signature, timestamp or payload failed verification.
	ErrInvalidSignature = errors.New("stripe: invalid webhook signature")
)

// Event is a verified webhook event envelope. Data holds the raw data.object JSON
// whose shape depends on Type.
type Event struct {
	ID       string
	Type     string
	Created  time.Time
	Livemode bool
	Data     json.RawMessage
}

// Verifier authenticates webhook deliveries against the endpoint signing secret.
type Verifier struct {
	secret    string
	tolerance time.Duration
}

// NewVerifier creates a Verifier. A non-positive tolerance falls back to DefaultTolerance.
func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Verifier{secret: secret, tolerance: tolerance}
}

// ConstructEvent verifies payload, the exact bytes received, against signatureHeader
// and decodes the event envelope. A blank header fails with ErrMissingSignature before
// any cryptographic work; every other failure wraps ErrInvalidSignature.
func (v *Verifier) ConstructEvent(payload []byte, signatureHeader string) (Event, error) {
	if strings.TrimSpace(signatureHeader) == "" {
		return Event{}, ErrMissingSignature
	}

	evt, err := webhook.ConstructEventWithOptions(payload, signatureHeader, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	return fromAPIEvent(evt), nil
}

func fromAPIEvent(evt stripeapi.Event) Event {
	out := Event{
		ID:       evt.ID,
		Type:     string(evt.Type),
		Livemode: evt.Livemode,
	}
	if evt.Created > 0 {
		out.Created = time.Unix(evt.Created, 0).UTC()
	}
	if evt.Data != nil {
		out.Data = evt.Data.Raw
	}
	return out
}
