package repositories

import (
	"context"
	"sort"
	"time"

	"storage-backend/internal/models"
	"storage-backend/internal/store"

	"github.com/jackc/pgx/v5"
)

type OutboxRepository struct {
	DB DBTX
}

func NewOutboxRepository(db DBTX) *OutboxRepository {
	return &OutboxRepository{DB: db}
}

const outboxColumns = `id, dedupe_key, type, payload, processed, attempts, last_attempt_at, last_error,
	next_attempt_at, claim_token, claimed_until, processed_at, created_at`

// Insert enqueues a notification. Called only inside a transition's transaction.
func (r *OutboxRepository) Insert(ctx context.Context, e *models.OutboxEntry) error {
	query := `
		INSERT INTO notification_outbox (dedupe_key, type, payload, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	return r.DB.QueryRow(ctx, query, e.DedupeKey, e.Type, string(e.Payload), e.CreatedAt).Scan(&e.ID)
}

// Claim leases up to p.Limit due entries to p.Token. SKIP LOCKED lets several
// workers claim disjoint batches at once; the statement's locks are released
// as soon as it returns.
func (r *OutboxRepository) Claim(ctx context.Context, p store.ClaimParams) ([]models.OutboxEntry, error) {
	query := `
		UPDATE notification_outbox o
		SET claim_token = $1, claimed_until = $2
		FROM (
			SELECT id FROM notification_outbox
			WHERE processed = FALSE
			  AND attempts < $3
			  AND (next_attempt_at IS NULL OR next_attempt_at <= $4)
			  AND (claimed_until IS NULL OR claimed_until <= $4)
			ORDER BY created_at, id
			LIMIT $5
			FOR UPDATE SKIP LOCKED
		) due
		WHERE o.id = due.id
		RETURNING o.id, o.dedupe_key, o.type, o.payload, o.processed, o.attempts, o.last_attempt_at, o.last_error,
			o.next_attempt_at, o.claim_token, o.claimed_until, o.processed_at, o.created_at
	`
	rows, err := r.DB.Query(ctx, query, p.Token, p.LeaseUntil, p.MaxAttempts, p.Now, p.Limit)
	if err != nil {
		return nil, err
	}
	entries, err := scanOutboxRows(rows)
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		}
		return entries[i].ID < entries[j].ID
	})
	return entries, nil
}

func (r *OutboxRepository) MarkDelivered(ctx context.Context, id int64, token string, at time.Time) (bool, error) {
	query := `
		UPDATE notification_outbox
		SET processed = TRUE, processed_at = $1, last_attempt_at = $1, claim_token = NULL, claimed_until = NULL
		WHERE id = $2 AND processed = FALSE AND claim_token = $3
	`
	tag, err := r.DB.Exec(ctx, query, at, id, token)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, id int64, token string, at time.Time, errMsg string, nextAttemptAt time.Time) (bool, error) {
	query := `
		UPDATE notification_outbox
		SET attempts = attempts + 1, last_attempt_at = $1, last_error = $2, next_attempt_at = $3,
		    claim_token = NULL, claimed_until = NULL
		WHERE id = $4 AND processed = FALSE AND claim_token = $5
	`
	tag, err := r.DB.Exec(ctx, query, at, errMsg, nextAttemptAt, id, token)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *OutboxRepository) Release(ctx context.Context, id int64, token string) (bool, error) {
	query := `
		UPDATE notification_outbox SET claim_token = NULL, claimed_until = NULL
		WHERE id = $1 AND processed = FALSE AND claim_token = $2
	`
	tag, err := r.DB.Exec(ctx, query, id, token)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListStuck returns entries that used up their attempts, oldest first
func (r *OutboxRepository) ListStuck(ctx context.Context, maxAttempts, limit int) ([]models.OutboxEntry, error) {
	query := `SELECT ` + outboxColumns + ` FROM notification_outbox
		WHERE processed = FALSE AND attempts >= $1
		ORDER BY created_at, id
		LIMIT $2`
	rows, err := r.DB.Query(ctx, query, maxAttempts, limit)
	if err != nil {
		return nil, err
	}
	return scanOutboxRows(rows)
}

func scanOutboxRows(rows pgx.Rows) ([]models.OutboxEntry, error) {
	defer rows.Close()

	var entries []models.OutboxEntry
	for rows.Next() {
		var (
			e       models.OutboxEntry
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.DedupeKey, &e.Type, &payload, &e.Processed, &e.Attempts,
			&e.LastAttemptAt, &e.LastError, &e.NextAttemptAt, &e.ClaimToken, &e.ClaimedUntil,
			&e.ProcessedAt, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Payload = payload
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
