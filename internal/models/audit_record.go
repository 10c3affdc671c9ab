package models

import (
	"encoding/json"
	"time"
)

// Audit actions
const (
	AuditActionApprove = "APPROVE"
	AuditActionReject  = "REJECT"
)

// Audit entity types
const (
	EntityStorageRequest = "storage_request"
)

// AuditRecord is an append-only log entry. Rows are never updated or deleted.
type AuditRecord struct {
	ID          int64           `json:"id" db:"id"`
	ActorID     int64           `json:"actor_id" db:"actor_id"`
	Action      string          `json:"action" db:"action"`
	EntityType  string          `json:"entity_type" db:"entity_type"`
	EntityID    int64           `json:"entity_id" db:"entity_id"`
	Description string          `json:"description" db:"description"`
	Detail      json.RawMessage `json:"detail" db:"detail"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}
