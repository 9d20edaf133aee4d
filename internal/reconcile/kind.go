package reconcile

import "github.com/PortNumber53/landing-api/internal/stripe"

// Kind is the closed set of event kinds the reconciler acts on. Every switch over
// Kind must handle Unhandled explicitly.
type Kind uint8

const (
	Unhandled Kind = iota
	CheckoutCompleted
	SubscriptionUpdated
	SubscriptionDeleted
)

const (
	typeCheckoutCompleted   = "checkout.session.completed"
	typeSubscriptionUpdated = "customer.subscription.updated"
	typeSubscriptionDeleted = "customer.subscription.deleted"
)

// TestEventPrefix marks the synthetic events Stripe sends while an endpoint is being
// configured.
const TestEventPrefix = "evt_test_"

// Classify maps an event's type tag to its Kind.
func Classify(evt stripe.Event) Kind {
	switch evt.Type {
	case typeCheckoutCompleted:
		return CheckoutCompleted
	case typeSubscriptionUpdated:
		return SubscriptionUpdated
	case typeSubscriptionDeleted:
		return SubscriptionDeleted
	default:
		return Unhandled
	}
}

func (k Kind) String() string {
	switch k {
	case CheckoutCompleted:
		return typeCheckoutCompleted
	case SubscriptionUpdated:
		return typeSubscriptionUpdated
	case SubscriptionDeleted:
		return typeSubscriptionDeleted
	case Unhandled:
		return "unhandled"
	default:
		return "unknown"
	}
}
