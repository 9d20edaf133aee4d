package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/PortNumber53/landing-api/internal/models"
)

const contactColumns = `id, name, email, company, message, relay_status, relay_attempts,
       relay_error, relay_after, worker_id, created_at`

// CreateContactSubmission persists a validated submission as pending relay and fills
// in its id and creation time.
func (s *Store) CreateContactSubmission(ctx context.Context, sub *models.ContactSubmission) error {
	if sub == nil {
		return errors.New("store: create contact submission: submission is nil")
	}

	query := `
INSERT INTO contact_submissions (name, email, company, message, relay_status)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at
`
	err := s.db.QueryRowContext(
		ctx,
		query,
		sub.Name,
		sub.Email,
		sub.Company,
		sub.Message,
		string(models.RelayPending),
	).Scan(&sub.ID, &sub.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: create contact submission: %w", err)
	}

	sub.RelayStatus = models.RelayPending
	return nil
}

// ClaimNextRelay atomically claims the oldest pending submission that is due for
// relay. It returns nil when nothing is due.
func (s *Store) ClaimNextRelay(ctx context.Context, workerID string) (*models.ContactSubmission, error) {
	query := `
UPDATE contact_submissions
SET relay_status = 'relaying',
    worker_id = $1,
    relay_attempts = relay_attempts + 1,
    claimed_at = NOW()
WHERE id = (
	SELECT id FROM contact_submissions
	WHERE relay_status = 'pending'
	  AND (relay_after IS NULL OR relay_after <= NOW())
	ORDER BY created_at ASC
	LIMIT 1
	FOR UPDATE SKIP LOCKED
)
RETURNING ` + contactColumns

	sub, err := scanContact(s.db.QueryRowContext(ctx, query, workerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: claim next relay: %w", err)
	}
	return sub, nil
}

// MarkRelayed records a successful relay.
func (s *Store) MarkRelayed(ctx context.Context, id int64) error {
	query := `
UPDATE contact_submissions
SET relay_status = 'relayed',
    relay_error = NULL,
    relayed_at = NOW(),
    worker_id = NULL
WHERE id = $1
`
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("store: mark contact %d relayed: %w", id, err)
	}
	return nil
}

// ScheduleRelayRetry puts the submission back in the queue, not before retryAfter.
func (s *Store) ScheduleRelayRetry(ctx context.Context, id int64, errorMsg string, retryAfter time.Time) error {
	query := `
UPDATE contact_submissions
SET relay_status = 'pending',
    relay_error = $2,
    relay_after = $3,
    worker_id = NULL
WHERE id = $1
`
	if _, err := s.db.ExecContext(ctx, query, id, errorMsg, retryAfter.UTC()); err != nil {
		return fmt.Errorf("store: schedule contact %d relay retry: %w", id, err)
	}
	return nil
}

// MarkRelayFailed gives up on relaying the submission.
func (s *Store) MarkRelayFailed(ctx context.Context, id int64, errorMsg string) error {
	query := `
UPDATE contact_submissions
SET relay_status = 'failed',
    relay_error = $2,
    worker_id = NULL
WHERE id = $1
`
	if _, err := s.db.ExecContext(ctx, query, id, errorMsg); err != nil {
		return fmt.Errorf("store: mark contact %d relay failed: %w", id, err)
	}
	return nil
}

// ReleaseRelay returns an in-flight submission to the queue without counting the
// interrupted attempt.
func (s *Store) ReleaseRelay(ctx context.Context, id int64) error {
	query := `
UPDATE contact_submissions
SET relay_status = 'pending',
    relay_attempts = GREATEST(relay_attempts - 1, 0),
    worker_id = NULL
WHERE id = $1 AND relay_status = 'relaying'
`
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("store: release contact %d relay: %w", id, err)
	}
	return nil
}

// ReleaseStaleRelays returns submissions stuck in flight for longer than olderThan,
// e.g. after a crash, to the pending queue.
func (s *Store) ReleaseStaleRelays(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
UPDATE contact_submissions
SET relay_status = 'pending',
    worker_id = NULL
WHERE relay_status = 'relaying'
  AND claimed_at < NOW() - make_interval(secs => $1)
`
	result, err := s.db.ExecContext(ctx, query, olderThan.Seconds())
	if err != nil {
		return 0, fmt.Errorf("store: release stale relays: %w", err)
	}
	released, _ := result.RowsAffected()
	return released, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(row rowScanner) (*models.ContactSubmission, error) {
	var (
		sub        models.ContactSubmission
		company    sql.NullString
		status     string
		relayError sql.NullString
		relayAfter sql.NullTime
		workerID   sql.NullString
	)
	if err := row.Scan(
		&sub.ID,
		&sub.Name,
		&sub.Email,
		&company,
		&sub.Message,
		&status,
		&sub.RelayAttempts,
		&relayError,
		&relayAfter,
		&workerID,
		&sub.CreatedAt,
	); err != nil {
		return nil, err
	}

	sub.Company = nullStringPtr(company)
	sub.RelayStatus = models.RelayStatus(status)
	sub.RelayError = nullStringPtr(relayError)
	sub.RelayAfter = nullTimePtr(relayAfter)
	sub.WorkerID = nullStringPtr(workerID)
	return &sub, nil
}
