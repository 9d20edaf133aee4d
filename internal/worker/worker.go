// Package worker relays stored contact submissions to the form-relay provider in the
// background, with bounded concurrency, retry backoff and graceful shutdown.
package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/PortNumber53/landing-api/internal/formrelay"
	"github.com/PortNumber53/landing-api/internal/models"
)

// Queue is the persistent relay queue the worker drains.
type Queue interface {
	ClaimNextRelay(ctx context.Context, workerID string) (*models.ContactSubmission, error)
	MarkRelayed(ctx context.Context, id int64) error
	ScheduleRelayRetry(ctx context.Context, id int64, errorMsg string, retryAfter time.Time) error
	MarkRelayFailed(ctx context.Context, id int64, errorMsg string) error
	ReleaseRelay(ctx context.Context, id int64) error
	ReleaseStaleRelays(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Relayer delivers one submission.
type Relayer interface {
	Relay(ctx context.Context, sub models.ContactSubmission) error
}

// Instrumentation provides hooks for monitoring relay lifecycle
type Instrumentation struct {
	OnStart     func(sub *models.ContactSubmission)
	OnComplete  func(sub *models.ContactSubmission, duration time.Duration)
	OnFail      func(sub *models.ContactSubmission, err error, duration time.Duration)
	OnRetry     func(sub *models.ContactSubmission, retryAfter time.Duration)
	OnHeartbeat func(workerID string, stats Stats)
}

// Stats holds worker statistics
type Stats struct {
	Processed       int64
	Succeeded       int64
	Failed          int64
	Retried         int64
	Active          int
	LastProcessedAt time.Time
}

// Config holds worker configuration
type Config struct {
	// MaxConcurrent is the maximum number of concurrent relays
	MaxConcurrent int
	// PollInterval is the time between polls when the queue is empty
	PollInterval time.Duration
	// MaxAttempts is how many relay attempts a submission gets before it is marked failed
	MaxAttempts int
	// RetryBaseDelay is the base delay for exponential backoff
	RetryBaseDelay time.Duration
	// RetryMaxDelay is the maximum delay between retries
	RetryMaxDelay time.Duration
	// RetryBackoffMultiplier is the multiplier for exponential backoff
	RetryBackoffMultiplier float64
	// RelayTimeout bounds a single relay call
	RelayTimeout time.Duration
	// StaleAfter is how long a claimed submission may stay in flight before it is requeued at startup
	StaleAfter time.Duration
	// ShutdownTimeout is the maximum time to wait for in-flight relays during shutdown
	ShutdownTimeout time.Duration
	// HeartbeatInterval is the interval for sending heartbeat stats
	HeartbeatInterval time.Duration
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:          2,
		PollInterval:           2 * time.Second,
		MaxAttempts:            5,
		RetryBaseDelay:         30 * time.Second,
		RetryMaxDelay:          time.Hour,
		RetryBackoffMultiplier: 2.0,
		RelayTimeout:           30 * time.Second,
		StaleAfter:             10 * time.Minute,
		ShutdownTimeout:        30 * time.Second,
		HeartbeatInterval:      time.Minute,
	}
}

// Worker is the contact relay processor
type Worker struct {
	config          Config
	queue           Queue
	relayer         Relayer
	instrumentation *Instrumentation

	workerID string
	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopped  bool
	mu       sync.RWMutex

	// active tracks in-flight submission ids for graceful shutdown
	active map[int64]context.CancelFunc

	statsMu         sync.RWMutex
	processed       int64
	succeeded       int64
	failed          int64
	retried         int64
	lastProcessedAt time.Time
}

// New creates a new Worker instance
func New(config Config, queue Queue, relayer Relayer) *Worker {
	def := DefaultConfig()
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = def.MaxConcurrent
	}
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.RetryBaseDelay <= 0 {
		config.RetryBaseDelay = def.RetryBaseDelay
	}
	if config.RetryMaxDelay <= 0 {
		config.RetryMaxDelay = def.RetryMaxDelay
	}
	if config.RetryBackoffMultiplier <= 1 {
		config.RetryBackoffMultiplier = def.RetryBackoffMultiplier
	}
	if config.RelayTimeout <= 0 {
		config.RelayTimeout = def.RelayTimeout
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = def.StaleAfter
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = def.ShutdownTimeout
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = def.HeartbeatInterval
	}

	return &Worker{
		config:          config,
		queue:           queue,
		relayer:         relayer,
		workerID:        "relay-" + uuid.NewString(),
		stopCh:          make(chan struct{}),
		active:          make(map[int64]context.CancelFunc),
		instrumentation: &Instrumentation{},
	}
}

// SetInstrumentation sets the instrumentation hooks. Call it before Start.
func (w *Worker) SetInstrumentation(inst *Instrumentation) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if inst == nil {
		inst = &Instrumentation{}
	}
	w.instrumentation = inst
}

// ID returns the worker instance id recorded on claimed submissions.
func (w *Worker) ID() string {
	return w.workerID
}

// Start requeues stale in-flight submissions and begins the processor pool.
func (w *Worker) Start(ctx context.Context) {
	logger := log.With().Str("worker_id", w.workerID).Logger()

	if released, err := w.queue.ReleaseStaleRelays(ctx, w.config.StaleAfter); err != nil {
		logger.Warn().Err(err).Msg("failed to release stale relays")
	} else if released > 0 {
		logger.Info().Int64("released", released).Msg("requeued stale relays")
	}

	if w.instrumentation.OnHeartbeat != nil {
		w.wg.Add(1)
		go w.heartbeat(ctx)
	}

	for i := 0; i < w.config.MaxConcurrent; i++ {
		w.wg.Add(1)
		go w.processor(ctx, i)
	}

	logger.Info().Int("processors", w.config.MaxConcurrent).Msg("relay worker started")
}

// Stop gracefully shuts down the worker
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.mu.Unlock()

	log.Info().Str("worker_id", w.workerID).Msg("relay worker shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, w.config.ShutdownTimeout)
	defer cancel()

	w.releaseActive(shutdownCtx)

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Str("worker_id", w.workerID).Msg("relay worker stopped")
		return nil
	case <-shutdownCtx.Done():
		return errors.New("worker: shutdown timeout exceeded")
	}
}

func (w *Worker) isStopping() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stopped
}

func (w *Worker) processor(ctx context.Context, id int) {
	defer w.wg.Done()

	logger := log.With().Str("worker_id", w.workerID).Int("processor", id).Logger()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		default:
			if err := w.processNext(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				logger.Error().Err(err).Msg("relay processor error")
				w.wait(ctx)
			}
		}
	}
}

// processNext claims and relays the next due submission, waiting a poll interval
// when nothing is due.
func (w *Worker) processNext(ctx context.Context) error {
	sub, err := w.queue.ClaimNextRelay(ctx, w.workerID)
	if err != nil {
		return err
	}
	if sub == nil {
		w.wait(ctx)
		return nil
	}

	w.process(ctx, sub)
	return nil
}

func (w *Worker) wait(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-w.stopCh:
	case <-time.After(w.config.PollInterval):
	}
}

func (w *Worker) process(ctx context.Context, sub *models.ContactSubmission) {
	start := time.Now()

	relayCtx, cancel := context.WithTimeout(ctx, w.config.RelayTimeout)
	defer cancel()

	w.track(sub.ID, cancel)
	defer w.untrack(sub.ID)

	if w.instrumentation.OnStart != nil {
		w.instrumentation.OnStart(sub)
	}

	log.Debug().
		Int64("submission_id", sub.ID).
		Int("attempt", sub.RelayAttempts).
		Int("max_attempts", w.config.MaxAttempts).
		Msg("relaying contact submission")

	err := w.relayer.Relay(relayCtx, *sub)
	switch {
	case err == nil:
		w.handleSuccess(ctx, sub, start)
	case w.isStopping() && errors.Is(err, context.Canceled):
		// Released back to the queue by Stop.
	default:
		w.handleError(ctx, sub, err, start)
	}
}

func (w *Worker) handleError(ctx context.Context, sub *models.ContactSubmission, err error, start time.Time) {
	duration := time.Since(start)
	logger := log.With().Int64("submission_id", sub.ID).Int("attempt", sub.RelayAttempts).Logger()

	w.statsMu.Lock()
	w.processed++
	w.failed++
	w.lastProcessedAt = time.Now()
	w.statsMu.Unlock()

	if w.instrumentation.OnFail != nil {
		w.instrumentation.OnFail(sub, err, duration)
	}

	if errors.Is(err, formrelay.ErrPermanent) || sub.RelayAttempts >= w.config.MaxAttempts {
		logger.Warn().Err(err).Msg("contact relay failed permanently")
		if markErr := w.queue.MarkRelayFailed(ctx, sub.ID, err.Error()); markErr != nil {
			logger.Error().Err(markErr).Msg("failed to mark relay failed")
		}
		return
	}

	delay := jitter(w.retryDelay(sub.RelayAttempts))

	w.statsMu.Lock()
	w.retried++
	w.statsMu.Unlock()

	if w.instrumentation.OnRetry != nil {
		w.instrumentation.OnRetry(sub, delay)
	}

	logger.Warn().Err(err).Dur("retry_in", delay).Msg("contact relay failed, scheduling retry")
	if schedErr := w.queue.ScheduleRelayRetry(ctx, sub.ID, err.Error(), time.Now().Add(delay)); schedErr != nil {
		logger.Error().Err(schedErr).Msg("failed to schedule relay retry")
	}
}

func (w *Worker) handleSuccess(ctx context.Context, sub *models.ContactSubmission, start time.Time) {
	duration := time.Since(start)

	w.statsMu.Lock()
	w.processed++
	w.succeeded++
	w.lastProcessedAt = time.Now()
	w.statsMu.Unlock()

	if w.instrumentation.OnComplete != nil {
		w.instrumentation.OnComplete(sub, duration)
	}

	log.Info().Int64("submission_id", sub.ID).Dur("duration", duration).Msg("contact submission relayed")
	if err := w.queue.MarkRelayed(ctx, sub.ID); err != nil {
		log.Error().Err(err).Int64("submission_id", sub.ID).Msg("failed to mark submission relayed")
	}
}

// retryDelay is the un-jittered backoff after the given attempt number (1-based).
func (w *Worker) retryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(w.config.RetryBaseDelay) * math.Pow(w.config.RetryBackoffMultiplier, float64(attempt-1))
	return time.Duration(math.Min(delay, float64(w.config.RetryMaxDelay)))
}

// jitter spreads d by ±20%.
func jitter(d time.Duration) time.Duration {
	return time.Duration(float64(d) * (0.8 + 0.4*rand.Float64()))
}

func (w *Worker) track(id int64, cancel context.CancelFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.active[id] = cancel
}

func (w *Worker) untrack(id int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.active, id)
}

// releaseActive cancels in-flight relays and returns them to the queue.
func (w *Worker) releaseActive(ctx context.Context) {
	w.mu.Lock()
	ids := make([]int64, 0, len(w.active))
	for id, cancel := range w.active {
		cancel()
		ids = append(ids, id)
	}
	w.mu.Unlock()

	for _, id := range ids {
		if err := w.queue.ReleaseRelay(ctx, id); err != nil {
			log.Error().Err(err).Int64("submission_id", id).Msg("failed to release relay")
		} else {
			log.Info().Int64("submission_id", id).Msg("released relay back to pending")
		}
	}
}

func (w *Worker) heartbeat(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.instrumentation.OnHeartbeat(w.workerID, w.Stats())
		}
	}
}

// Stats returns current worker statistics
func (w *Worker) Stats() Stats {
	w.mu.RLock()
	active := len(w.active)
	w.mu.RUnlock()

	w.statsMu.RLock()
	defer w.statsMu.RUnlock()
	return Stats{
		Processed:       w.processed,
		Succeeded:       w.succeeded,
		Failed:          w.failed,
		Retried:         w.retried,
		Active:          active,
		LastProcessedAt: w.lastProcessedAt,
	}
}

func (s Stats) String() string {
	return fmt.Sprintf("processed=%d succeeded=%d failed=%d retried=%d active=%d",
		s.Processed, s.Succeeded, s.Failed, s.Retried, s.Active)
}
