// Package store declares the persistence contracts the services depend on.
// internal/repositories implements them on Postgres, internal/sqlitestore on SQLite.
package store

import (
	"context"
	"errors"
	"time"

	"storage-backend/internal/models"
	"storage-backend/internal/workflow"
)

// ErrNotFound is returned when a looked-up row does not exist
var ErrNotFound = errors.New("record not found")

// EntityStore runs fn inside one database transaction. The transaction is
// committed when fn returns nil and rolled back otherwise.
type EntityStore interface {
	WithinTx(ctx context.Context, fn func(tx TransitionTx) error) error
}

// TransitionTx is the set of operations the transition service performs atomically.
type TransitionTx interface {
	// LockStorageRequest reads the request and holds a row lock until the transaction ends.
	LockStorageRequest(ctx context.Context, id int64) (*models.StorageRequest, error)
	// LockLocations locks the given locations in ascending id order and returns
	// them in that order. Unknown ids are simply absent from the result.
	LockLocations(ctx context.Context, ids []int64) ([]models.Location, error)
	GetCustomer(ctx context.Context, id int64) (*models.Customer, error)

	MarkRequestApproved(ctx context.Context, d ApprovalDecision) error
	MarkRequestRejected(ctx context.Context, d RejectionDecision) error
	AddOccupied(ctx context.Context, locationID, quantity int64, at time.Time) error

	InsertAuditRecord(ctx context.Context, rec *models.AuditRecord) error
	InsertOutboxEntry(ctx context.Context, entry *models.OutboxEntry) error
}

type ApprovalDecision struct {
	RequestID   int64
	LocationIDs []int64
	Quantity    int64
	Notes       *string
	ActorID     int64
	At          time.Time
}

type RejectionDecision struct {
	RequestID int64
	Reason    string
	Notes     *string
	ActorID   int64
	At        time.Time
}

// ClaimParams selects and leases outbox entries for one drain pass.
type ClaimParams struct {
	Token       string
	Limit       int
	MaxAttempts int
	Now         time.Time
	LeaseUntil  time.Time
}

// OutboxStore is the notification worker's view of the outbox. The mark and
// release calls only touch rows still unprocessed and claimed by token; they
// report false when the row was not updated.
type OutboxStore interface {
	ClaimOutboxEntries(ctx context.Context, p ClaimParams) ([]models.OutboxEntry, error)
	MarkOutboxDelivered(ctx context.Context, id int64, token string, at time.Time) (bool, error)
	MarkOutboxFailed(ctx context.Context, id int64, token string, at time.Time, errMsg string, nextAttemptAt time.Time) (bool, error)
	ReleaseOutboxClaim(ctx context.Context, id int64, token string) (bool, error)
	ListStuckOutboxEntries(ctx context.Context, maxAttempts, limit int) ([]models.OutboxEntry, error)
}

// SnapshotReader loads a consistent workflow snapshot with loads sorted by sequence number.
type SnapshotReader interface {
	LoadRequestSnapshot(ctx context.Context, requestID int64) (*workflow.Snapshot, error)
}

// QueryStore serves the read-only operator views.
type QueryStore interface {
	ListLocations(ctx context.Context) ([]models.Location, error)
	ListAuditRecords(ctx context.Context, entityType string, entityID int64) ([]models.AuditRecord, error)
}

// Store is everything a backend provides.
type Store interface {
	EntityStore
	OutboxStore
	SnapshotReader
	QueryStore
	Ping(ctx context.Context) error
	Close()
}
