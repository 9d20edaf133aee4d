package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PortNumber53/landing-api/internal/formrelay"
	"github.com/PortNumber53/landing-api/internal/models"
)

type memQueue struct {
	mu       sync.Mutex
	pending  []*models.ContactSubmission
	relayed  []int64
	failed   map[int64]string
	retries  map[int64]time.Time
	released []int64
	stale    int
}

func newMemQueue(subs ...*models.ContactSubmission) *memQueue {
	return &memQueue{pending: subs, failed: map[int64]string{}, retries: map[int64]time.Time{}}
}

func (q *memQueue) ClaimNextRelay(_ context.Context, workerID string) (*models.ContactSubmission, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil, nil
	}
	sub := q.pending[0]
	q.pending = q.pending[1:]
	sub.RelayAttempts++
	sub.RelayStatus = models.RelayInFlight
	sub.WorkerID = &workerID
	return sub, nil
}

func (q *memQueue) MarkRelayed(_ context.Context, id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.relayed = append(q.relayed, id)
	return nil
}

func (q *memQueue) ScheduleRelayRetry(_ context.Context, id int64, _ string, retryAfter time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.retries[id] = retryAfter
	return nil
}

func (q *memQueue) MarkRelayFailed(_ context.Context, id int64, msg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failed[id] = msg
	return nil
}

func (q *memQueue) ReleaseRelay(_ context.Context, id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.released = append(q.released, id)
	return nil
}

func (q *memQueue) ReleaseStaleRelays(context.Context, time.Duration) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stale++
	return 0, nil
}

type relayFunc func(ctx context.Context, sub models.ContactSubmission) error

func (f relayFunc) Relay(ctx context.Context, sub models.ContactSubmission) error {
	return f(ctx, sub)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PollInterval = 5 * time.Millisecond
	cfg.ShutdownTimeout = time.Second
	cfg.MaxAttempts = 3
	return cfg
}

func runWorker(t *testing.T, w *Worker) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	t.Cleanup(func() {
		require.NoError(t, w.Stop(context.Background()))
		cancel()
	})
}

func TestWorkerRelaysPendingSubmissions(t *testing.T) {
	q := newMemQueue(&models.ContactSubmission{ID: 1, Name: "Jane"}, &models.ContactSubmission{ID: 2, Name: "Joe"})

	var completed int
	var mu sync.Mutex
	w := New(testConfig(), q, relayFunc(func(context.Context, models.ContactSubmission) error { return nil }))
	w.SetInstrumentation(&Instrumentation{
		OnComplete: func(*models.ContactSubmission, time.Duration) {
			mu.Lock()
			completed++
			mu.Unlock()
		},
	})
	runWorker(t, w)

	assert.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return len(q.relayed) == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, 2, completed)
	mu.Unlock()
	assert.Equal(t, int64(2), w.Stats().Succeeded)
	assert.Equal(t, 1, q.stale)
}

func TestWorkerSchedulesRetryForTransientError(t *testing.T) {
	q := newMemQueue(&models.ContactSubmission{ID: 7})
	w := New(testConfig(), q, relayFunc(func(context.Context, models.ContactSubmission) error {
		return &formrelay.StatusError{StatusCode: 503}
	}))
	runWorker(t, w)

	assert.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		_, ok := q.retries[7]
		return ok
	}, time.Second, 5*time.Millisecond)

	q.mu.Lock()
	retryAt := q.retries[7]
	q.mu.Unlock()
	// first attempt: 30s base delay ±20%
	assert.WithinDuration(t, time.Now().Add(30*time.Second), retryAt, 7*time.Second)
	assert.Empty(t, q.failed)
}

func TestWorkerFailsPermanentError(t *testing.T) {
	q := newMemQueue(&models.ContactSubmission{ID: 8})
	w := New(testConfig(), q, relayFunc(func(context.Context, models.ContactSubmission) error {
		return &formrelay.StatusError{StatusCode: 422, Body: "invalid email"}
	}))
	runWorker(t, w)

	assert.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return q.failed[8] != ""
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, q.retries)
}

func TestWorkerFailsAfterMaxAttempts(t *testing.T) {
	q := newMemQueue(&models.ContactSubmission{ID: 9, RelayAttempts: 2})
	w := New(testConfig(), q, relayFunc(func(context.Context, models.ContactSubmission) error {
		return errors.New("connection reset")
	}))
	runWorker(t, w)

	assert.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return q.failed[9] == "connection reset"
	}, time.Second, 5*time.Millisecond)
}

func TestWorkerStopReleasesInFlight(t *testing.T) {
	q := newMemQueue(&models.ContactSubmission{ID: 10})
	started := make(chan struct{})
	w := New(testConfig(), q, relayFunc(func(ctx context.Context, _ models.ContactSubmission) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	<-started
	require.NoError(t, w.Stop(context.Background()))

	q.mu.Lock()
	defer q.mu.Unlock()
	assert.Equal(t, []int64{10}, q.released)
	assert.Empty(t, q.failed)
	assert.Empty(t, q.retries)

	assert.NoError(t, w.Stop(context.Background()), "stop is idempotent")
}

func TestRetryDelay(t *testing.T) {
	w := New(Config{RetryBaseDelay: time.Second, RetryMaxDelay: 10 * time.Second, RetryBackoffMultiplier: 2}, newMemQueue(), nil)

	assert.Equal(t, time.Second, w.retryDelay(0))
	assert.Equal(t, time.Second, w.retryDelay(1))
	assert.Equal(t, 2*time.Second, w.retryDelay(2))
	assert.Equal(t, 8*time.Second, w.retryDelay(4))
	assert.Equal(t, 10*time.Second, w.retryDelay(10))

	for i := 0; i < 100; i++ {
		d := jitter(10 * time.Second)
		assert.GreaterOrEqual(t, d, 8*time.Second)
		assert.LessOrEqual(t, d, 12*time.Second)
	}
}
