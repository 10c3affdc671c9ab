package repositories

import (
	"context"
	"fmt"
	"time"

	"storage-backend/internal/models"
	"storage-backend/internal/store"
	"storage-backend/internal/workflow"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore composes the repositories into the store contracts.
type PostgresStore struct {
	Pool *pgxpool.Pool
}

var _ store.Store = (*PostgresStore)(nil)

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{Pool: pool}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.Pool.Close()
}

// WithinTx runs fn in a read-committed transaction. Rollback after a
// successful commit is a no-op.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx store.TransitionTx) error) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(newTransitionTx(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) ClaimOutboxEntries(ctx context.Context, p store.ClaimParams) ([]models.OutboxEntry, error) {
	return NewOutboxRepository(s.Pool).Claim(ctx, p)
}

func (s *PostgresStore) MarkOutboxDelivered(ctx context.Context, id int64, token string, at time.Time) (bool, error) {
	return NewOutboxRepository(s.Pool).MarkDelivered(ctx, id, token, at)
}

func (s *PostgresStore) MarkOutboxFailed(ctx context.Context, id int64, token string, at time.Time, errMsg string, nextAttemptAt time.Time) (bool, error) {
	return NewOutboxRepository(s.Pool).MarkFailed(ctx, id, token, at, errMsg, nextAttemptAt)
}

func (s *PostgresStore) ReleaseOutboxClaim(ctx context.Context, id int64, token string) (bool, error) {
	return NewOutboxRepository(s.Pool).Release(ctx, id, token)
}

func (s *PostgresStore) ListStuckOutboxEntries(ctx context.Context, maxAttempts, limit int) ([]models.OutboxEntry, error) {
	return NewOutboxRepository(s.Pool).ListStuck(ctx, maxAttempts, limit)
}

// LoadRequestSnapshot reads under REPEATABLE READ so loads, documents and
// inventory all come from the same point in time.
func (s *PostgresStore) LoadRequestSnapshot(ctx context.Context, requestID int64) (*workflow.Snapshot, error) {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	snap, err := NewSnapshotRepository(tx).Load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return snap, tx.Commit(ctx)
}

func (s *PostgresStore) ListLocations(ctx context.Context) ([]models.Location, error) {
	return NewLocationRepository(s.Pool).List(ctx)
}

func (s *PostgresStore) ListAuditRecords(ctx context.Context, entityType string, entityID int64) ([]models.AuditRecord, error) {
	return NewAuditRecordRepository(s.Pool).ListByEntity(ctx, entityType, entityID)
}

// transitionTx binds the repositories to one pgx.Tx
type transitionTx struct {
	requests  *StorageRequestRepository
	locations *LocationRepository
	customers *CustomerRepository
	audit     *AuditRecordRepository
	outbox    *OutboxRepository
}

func newTransitionTx(tx pgx.Tx) *transitionTx {
	return &transitionTx{
		requests:  NewStorageRequestRepository(tx),
		locations: NewLocationRepository(tx),
		customers: NewCustomerRepository(tx),
		audit:     NewAuditRecordRepository(tx),
		outbox:    NewOutboxRepository(tx),
	}
}

func (t *transitionTx) LockStorageRequest(ctx context.Context, id int64) (*models.StorageRequest, error) {
	return t.requests.GetForUpdate(ctx, id)
}

func (t *transitionTx) LockLocations(ctx context.Context, ids []int64) ([]models.Location, error) {
	return t.locations.LockByIDs(ctx, ids)
}

func (t *transitionTx) GetCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	return t.customers.Get(ctx, id)
}

func (t *transitionTx) MarkRequestApproved(ctx context.Context, d store.ApprovalDecision) error {
	return t.requests.MarkApproved(ctx, d)
}

func (t *transitionTx) MarkRequestRejected(ctx context.Context, d store.RejectionDecision) error {
	return t.requests.MarkRejected(ctx, d)
}

func (t *transitionTx) AddOccupied(ctx context.Context, locationID, quantity int64, at time.Time) error {
	return t.locations.AddOccupied(ctx, locationID, quantity, at)
}

func (t *transitionTx) InsertAuditRecord(ctx context.Context, rec *models.AuditRecord) error {
	return t.audit.Create(ctx, rec)
}

func (t *transitionTx) InsertOutboxEntry(ctx context.Context, e *models.OutboxEntry) error {
	return t.outbox.Insert(ctx, e)
}
