// Package reconcile turns verified Stripe webhook events into subscription state.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"github.com/PortNumber53/landing-api/internal/models"
	"github.com/PortNumber53/landing-api/internal/stripe"
)

// ErrPersistence wraps any failure to write subscription state. Callers answer it
// with a retryable response so the provider redelivers the event.
var ErrPersistence = errors.New("reconcile: persistence failure")

// Outcome reports what Apply did with an event.
type Outcome string

const (
	Applied             Outcome = "applied"
	TestEvent           Outcome = "test_event"
	Ignored             Outcome = "unhandled"
	UnresolvableAccount Outcome = "unresolvable_account"
	Malformed           Outcome = "malformed"
	Duplicate           Outcome = "duplicate"
	Failed              Outcome = "failed"
)

// SubscriptionStore is the persistence the reconciler writes to.
//
// UpsertSubscription creates or merges the record keyed by StripeSubscriptionID. Empty
// strings, a zero UserID and a nil CurrentPeriodEnd mean "not given" and must not clear
// stored values. When UserID is 0 the store resolves ownership itself from the existing
// record or from another record of the same customer, and leaves it unresolved otherwise.
type SubscriptionStore interface {
	UpsertSubscription(ctx context.Context, rec models.SubscriptionRecord) error
}

// Options tunes a Reconciler.
type Options struct {
	// DedupSize is how many applied event ids are remembered. Zero disables the cache.
	DedupSize int
	// StoreTimeout bounds each store write. Zero means no extra deadline.
	StoreTimeout time.Duration
}

// DefaultOptions returns the options used by the server.
func DefaultOptions() Options {
	return Options{
		DedupSize:    4096,
		StoreTimeout: 10 * time.Second,
	}
}

// Reconciler applies webhook events to a SubscriptionStore. It is safe for concurrent use.
type Reconciler struct {
	store        SubscriptionStore
	storeTimeout time.Duration
	locks        *keyedMutex
	applied      *lru.Cache[string, struct{}]
}

// New creates a Reconciler writing to store.
func New(store SubscriptionStore, opts Options) (*Reconciler, error) {
	if store == nil {
		return nil, errors.New("reconcile: store is required")
	}
	r := &Reconciler{
		store:        store,
		storeTimeout: opts.StoreTimeout,
		locks:        newKeyedMutex(),
	}
	if opts.DedupSize > 0 {
		cache, err := lru.New[string, struct{}](opts.DedupSize)
		if err != nil {
			return nil, fmt.Errorf("reconcile: dedup cache: %w", err)
		}
		r.applied = cache
	}
	return r, nil
}

// Apply dispatches evt by kind and writes the resulting subscription change. Only
// store failures return an error, always wrapping ErrPersistence; every other
// condition is reported through the Outcome.
func (r *Reconciler) Apply(ctx context.Context, evt stripe.Event) (Outcome, error) {
	logger := log.With().Str("event_id", evt.ID).Str("type", evt.Type).Logger()

	if strings.HasPrefix(evt.ID, TestEventPrefix) {
		logger.Info().Msg("stripe test event acknowledged")
		return TestEvent, nil
	}
	if r.applied != nil && evt.ID != "" && r.applied.Contains(evt.ID) {
		logger.Info().Msg("stripe event already applied")
		return Duplicate, nil
	}

	var (
		rec models.SubscriptionRecord
		err error
	)
	switch kind := Classify(evt); kind {
	case CheckoutCompleted:
		rec, err = checkoutRecord(evt.Data)
	case SubscriptionUpdated:
		rec, err = updatedRecord(evt.Data)
	case SubscriptionDeleted:
		rec, err = deletedRecord(evt.Data)
	case Unhandled:
		logger.Info().Msg("unhandled stripe event type")
		return Ignored, nil
	default:
		panic(fmt.Sprintf("reconcile: kind %d not handled", kind))
	}

	switch {
	case errors.Is(err, errMissingUser):
		logger.Warn().Err(err).Str("subscription_id", rec.StripeSubscriptionID).
			Msg("checkout session cannot be linked to an account")
		return UnresolvableAccount, nil
	case err != nil:
		logger.Warn().Err(err).Msg("malformed stripe event payload")
		return Malformed, nil
	}

	logger = logger.With().Str("subscription_id", rec.StripeSubscriptionID).Logger()

	unlock := r.locks.Lock(rec.StripeSubscriptionID)
	defer unlock()

	if err := r.upsert(ctx, rec); err != nil {
		logger.Error().Err(err).Msg("failed to persist subscription")
		return Failed, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	if r.applied != nil && evt.ID != "" {
		r.applied.Add(evt.ID, struct{}{})
	}

	logger.Info().
		Int64("user_id", rec.UserID).
		Str("status", string(rec.Status)).
		Msg("subscription reconciled")
	return Applied, nil
}

func (r *Reconciler) upsert(ctx context.Context, rec models.SubscriptionRecord) error {
	if r.storeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.storeTimeout)
		defer cancel()
	}
	return r.store.UpsertSubscription(ctx, rec)
}
