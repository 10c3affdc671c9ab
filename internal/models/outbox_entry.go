package models

import (
	"encoding/json"
	"time"
)

// OutboxEntry is a durably queued notification awaiting delivery.
// Inserted by the transition service, mutated only by the notification worker.
type OutboxEntry struct {
	ID            int64           `json:"id" db:"id"`
	DedupeKey     string          `json:"dedupe_key" db:"dedupe_key"`
	Type          string          `json:"type" db:"type"`
	Payload       json.RawMessage `json:"payload" db:"payload"`
	Processed     bool            `json:"processed" db:"processed"`
	Attempts      int             `json:"attempts" db:"attempts"`
	LastAttemptAt *time.Time      `json:"last_attempt_at,omitempty" db:"last_attempt_at"`
	LastError     *string         `json:"last_error,omitempty" db:"last_error"`
	NextAttemptAt *time.Time      `json:"next_attempt_at,omitempty" db:"next_attempt_at"`
	ClaimToken    *string         `json:"-" db:"claim_token"`
	ClaimedUntil  *time.Time      `json:"-" db:"claimed_until"`
	ProcessedAt   *time.Time      `json:"processed_at,omitempty" db:"processed_at"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}
