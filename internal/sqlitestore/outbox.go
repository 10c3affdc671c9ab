package sqlitestore

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"storage-backend/internal/models"
	"storage-backend/internal/store"
)

const outboxColumns = `id, dedupe_key, type, payload, processed, attempts, last_attempt_at, last_error,
	next_attempt_at, claim_token, claimed_until, processed_at, created_at`

// ClaimOutboxEntries leases up to p.Limit due entries to p.Token in one statement.
func (s *Store) ClaimOutboxEntries(ctx context.Context, p store.ClaimParams) ([]models.OutboxEntry, error) {
	now := nanos(p.Now)
	rows, err := s.db.QueryContext(ctx, `
		UPDATE notification_outbox
		SET claim_token = ?, claimed_until = ?
		WHERE id IN (
			SELECT id FROM notification_outbox
			WHERE processed = 0
			  AND attempts < ?
			  AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
			  AND (claimed_until IS NULL OR claimed_until <= ?)
			ORDER BY created_at, id
			LIMIT ?
		)
		RETURNING `+outboxColumns,
		p.Token, nanos(p.LeaseUntil), p.MaxAttempts, now, now, p.Limit,
	)
	if err != nil {
		return nil, err
	}
	entries, err := scanOutbox(rows)
	if err != nil {
		return nil, err
	}

	// RETURNING order is unspecified
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		}
		return entries[i].ID < entries[j].ID
	})
	return entries, nil
}

func (s *Store) MarkOutboxDelivered(ctx context.Context, id int64, token string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notification_outbox
		SET processed = 1, processed_at = ?, last_attempt_at = ?, claim_token = NULL, claimed_until = NULL
		WHERE id = ? AND processed = 0 AND claim_token = ?`,
		nanos(at), nanos(at), id, token,
	)
	return affected(res, err)
}

func (s *Store) MarkOutboxFailed(ctx context.Context, id int64, token string, at time.Time, errMsg string, nextAttemptAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notification_outbox
		SET attempts = attempts + 1, last_attempt_at = ?, last_error = ?, next_attempt_at = ?,
		    claim_token = NULL, claimed_until = NULL
		WHERE id = ? AND processed = 0 AND claim_token = ?`,
		nanos(at), errMsg, nanos(nextAttemptAt), id, token,
	)
	return affected(res, err)
}

func (s *Store) ReleaseOutboxClaim(ctx context.Context, id int64, token string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notification_outbox SET claim_token = NULL, claimed_until = NULL
		WHERE id = ? AND processed = 0 AND claim_token = ?`,
		id, token,
	)
	return affected(res, err)
}

func (s *Store) ListStuckOutboxEntries(ctx context.Context, maxAttempts, limit int) ([]models.OutboxEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+outboxColumns+` FROM notification_outbox
		WHERE processed = 0 AND attempts >= ?
		ORDER BY created_at, id
		LIMIT ?`, maxAttempts, limit)
	if err != nil {
		return nil, err
	}
	return scanOutbox(rows)
}

// GetOutboxEntry reads one entry regardless of state
func (s *Store) GetOutboxEntry(ctx context.Context, id int64) (*models.OutboxEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+outboxColumns+` FROM notification_outbox WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	entries, err := scanOutbox(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, store.ErrNotFound
	}
	return &entries[0], nil
}

func scanOutbox(rows *sql.Rows) ([]models.OutboxEntry, error) {
	defer rows.Close()

	var entries []models.OutboxEntry
	for rows.Next() {
		var (
			e                            models.OutboxEntry
			payload                      string
			processed                    int64
			lastAttemptAt, nextAttemptAt sql.NullInt64
			claimedUntil, processedAt    sql.NullInt64
			lastError, claimToken        sql.NullString
			createdAt                    int64
		)
		if err := rows.Scan(&e.ID, &e.DedupeKey, &e.Type, &payload, &processed, &e.Attempts,
			&lastAttemptAt, &lastError, &nextAttemptAt, &claimToken, &claimedUntil, &processedAt, &createdAt); err != nil {
			return nil, err
		}
		e.Payload = []byte(payload)
		e.Processed = processed != 0
		e.LastAttemptAt = nullTime(lastAttemptAt)
		e.LastError = nullString(lastError)
		e.NextAttemptAt = nullTime(nextAttemptAt)
		e.ClaimToken = nullString(claimToken)
		e.ClaimedUntil = nullTime(claimedUntil)
		e.ProcessedAt = nullTime(processedAt)
		e.CreatedAt = fromNanos(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func affected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
