// Package sqlitestore is the embedded Entity Store, backed by modernc.org/sqlite.
// It implements the same contracts as the Postgres repositories; SQLite's single
// writer takes the place of row locks.
package sqlitestore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"storage-backend/internal/models"
	"storage-backend/internal/store"
	"storage-backend/internal/workflow"

	"github.com/shopspring/decimal"
)

//go:embed schema.sql
var schema string

type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// New applies the schema and returns the store. db should come from db.OpenSQLite.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() {
	s.db.Close()
}

// WithinTx runs fn in a transaction, rolling back on error or panic.
func (s *Store) WithinTx(ctx context.Context, fn func(tx store.TransitionTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				log.Printf("[SQLiteStore] rollback failed: %v", rbErr)
			}
		}
	}()

	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return nil
}

// queryer is satisfied by *sql.DB and *sql.Tx
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txStore struct {
	tx *sql.Tx
}

const requestColumns = `id, reference_code, customer_id, status, requested_quantity, approved_quantity,
	assigned_location_ids, rejection_reason, admin_notes, decided_by,
	created_at, updated_at, approved_at, rejected_at, completed_at`

func scanRequest(row interface{ Scan(...any) error }) (*models.StorageRequest, error) {
	var (
		r                                   models.StorageRequest
		approvedQty, decidedBy              sql.NullInt64
		assigned                            string
		reason, notes                       sql.NullString
		createdAt, updatedAt                int64
		approvedAt, rejectedAt, completedAt sql.NullInt64
	)
	err := row.Scan(&r.ID, &r.ReferenceCode, &r.CustomerID, &r.Status, &r.RequestedQuantity, &approvedQty,
		&assigned, &reason, &notes, &decidedBy,
		&createdAt, &updatedAt, &approvedAt, &rejectedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal([]byte(assigned), &r.AssignedLocationIDs); err != nil {
		return nil, fmt.Errorf("decode assigned_location_ids: %w", err)
	}
	r.ApprovedQuantity = nullInt(approvedQty)
	r.DecidedBy = nullInt(decidedBy)
	r.RejectionReason = nullString(reason)
	r.AdminNotes = nullString(notes)
	r.CreatedAt = fromNanos(createdAt)
	r.UpdatedAt = fromNanos(updatedAt)
	r.ApprovedAt = nullTime(approvedAt)
	r.RejectedAt = nullTime(rejectedAt)
	r.CompletedAt = nullTime(completedAt)
	return &r, nil
}

func (t *txStore) LockStorageRequest(ctx context.Context, id int64) (*models.StorageRequest, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM storage_requests WHERE id = ?`, id)
	return scanRequest(row)
}

func (t *txStore) LockLocations(ctx context.Context, ids []int64) ([]models.Location, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders, args := inClause(ids)
	query := `SELECT id, name, capacity, occupied, updated_at FROM storage_locations
		WHERE id IN (` + placeholders + `) ORDER BY id`
	return queryLocations(ctx, t.tx, query, args...)
}

func (t *txStore) GetCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	var (
		c         models.Customer
		createdAt int64
	)
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, name, phone, email, created_at FROM customers WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.CreatedAt = fromNanos(createdAt)
	return &c, nil
}

func (t *txStore) MarkRequestApproved(ctx context.Context, d store.ApprovalDecision) error {
	assigned, err := json.Marshal(d.LocationIDs)
	if err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE storage_requests
		SET status = ?, approved_quantity = ?, assigned_location_ids = ?, admin_notes = ?,
		    decided_by = ?, approved_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		models.RequestStatusApproved, d.Quantity, string(assigned), d.Notes,
		d.ActorID, nanos(d.At), nanos(d.At),
		d.RequestID, models.RequestStatusPending,
	)
	return expectOneRow(res, err, "approve request")
}

func (t *txStore) MarkRequestRejected(ctx context.Context, d store.RejectionDecision) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE storage_requests
		SET status = ?, rejection_reason = ?, admin_notes = ?, decided_by = ?, rejected_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		models.RequestStatusRejected, d.Reason, d.Notes, d.ActorID, nanos(d.At), nanos(d.At),
		d.RequestID, models.RequestStatusPending,
	)
	return expectOneRow(res, err, "reject request")
}

func (t *txStore) AddOccupied(ctx context.Context, locationID, quantity int64, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE storage_locations SET occupied = occupied + ?, updated_at = ?
		WHERE id = ? AND occupied + ? <= capacity`,
		quantity, nanos(at), locationID, quantity,
	)
	return expectOneRow(res, err, "reserve capacity")
}

func (t *txStore) InsertAuditRecord(ctx context.Context, rec *models.AuditRecord) error {
	detail := rec.Detail
	if len(detail) == 0 {
		detail = json.RawMessage(`{}`)
	}
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO audit_records (actor_id, action, entity_type, entity_id, description, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ActorID, rec.Action, rec.EntityType, rec.EntityID, rec.Description, string(detail), nanos(rec.CreatedAt),
	)
	if err != nil {
		return err
	}
	rec.ID, err = res.LastInsertId()
	return err
}

func (t *txStore) InsertOutboxEntry(ctx context.Context, e *models.OutboxEntry) error {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO notification_outbox (dedupe_key, type, payload, created_at)
		VALUES (?, ?, ?, ?)`,
		e.DedupeKey, e.Type, string(e.Payload), nanos(e.CreatedAt),
	)
	if err != nil {
		return err
	}
	e.ID, err = res.LastInsertId()
	return err
}

// ListLocations returns every location ordered by id
func (s *Store) ListLocations(ctx context.Context) ([]models.Location, error) {
	return queryLocations(ctx, s.db, `SELECT id, name, capacity, occupied, updated_at FROM storage_locations ORDER BY id`)
}

func (s *Store) ListAuditRecords(ctx context.Context, entityType string, entityID int64) ([]models.AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_id, action, entity_type, entity_id, description, detail, created_at
		FROM audit_records WHERE entity_type = ? AND entity_id = ?
		ORDER BY created_at, id`, entityType, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.AuditRecord
	for rows.Next() {
		var (
			r         models.AuditRecord
			detail    string
			createdAt int64
		)
		if err := rows.Scan(&r.ID, &r.ActorID, &r.Action, &r.EntityType, &r.EntityID, &r.Description, &detail, &createdAt); err != nil {
			return nil, err
		}
		r.Detail = json.RawMessage(detail)
		r.CreatedAt = fromNanos(createdAt)
		records = append(records, r)
	}
	return records, rows.Err()
}

// LoadRequestSnapshot reads the request and its loads, documents and
// inventory inside one read transaction.
func (s *Store) LoadRequestSnapshot(ctx context.Context, requestID int64) (*workflow.Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	req, err := scanRequest(tx.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM storage_requests WHERE id = ?`, requestID))
	if err != nil {
		return nil, err
	}

	loads, err := queryLoads(ctx, tx, requestID)
	if err != nil {
		return nil, err
	}
	if err := attachDocuments(ctx, tx, loads); err != nil {
		return nil, err
	}

	records, err := queryInventory(ctx, tx, requestID)
	if err != nil {
		return nil, err
	}

	snap := &workflow.Snapshot{Request: *req, Inventory: workflow.Summarize(records)}
	for _, l := range loads {
		if l.Direction == models.DirectionInbound {
			snap.Inbound = append(snap.Inbound, l)
		} else {
			snap.Outbound = append(snap.Outbound, l)
		}
	}
	return snap, nil
}

func queryLocations(ctx context.Context, q queryer, query string, args ...any) ([]models.Location, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locations []models.Location
	for rows.Next() {
		var (
			l         models.Location
			updatedAt int64
		)
		if err := rows.Scan(&l.ID, &l.Name, &l.Capacity, &l.Occupied, &updatedAt); err != nil {
			return nil, err
		}
		l.UpdatedAt = fromNanos(updatedAt)
		locations = append(locations, l)
	}
	return locations, rows.Err()
}

func queryLoads(ctx context.Context, q queryer, requestID int64) ([]models.Load, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, request_id, direction, sequence_number, status,
		       planned_quantity, completed_quantity, planned_weight, completed_weight,
		       planned_length, completed_length, window_start, window_end, created_at, updated_at
		FROM loads WHERE request_id = ?
		ORDER BY direction, sequence_number`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var loads []models.Load
	for rows.Next() {
		var (
			l                      models.Load
			pw, cw, pl, cl         string
			windowStart, windowEnd sql.NullInt64
			createdAt, updatedAt   int64
		)
		if err := rows.Scan(&l.ID, &l.RequestID, &l.Direction, &l.SequenceNumber, &l.Status,
			&l.PlannedQuantity, &l.CompletedQuantity, &pw, &cw, &pl, &cl,
			&windowStart, &windowEnd, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		for _, f := range []struct {
			dst *decimal.Decimal
			src string
		}{{&l.PlannedWeight, pw}, {&l.CompletedWeight, cw}, {&l.PlannedLength, pl}, {&l.CompletedLength, cl}} {
			d, err := decimal.NewFromString(f.src)
			if err != nil {
				return nil, fmt.Errorf("load %d: %w", l.ID, err)
			}
			*f.dst = d
		}
		l.WindowStart = nullTime(windowStart)
		l.WindowEnd = nullTime(windowEnd)
		l.CreatedAt = fromNanos(createdAt)
		l.UpdatedAt = fromNanos(updatedAt)
		loads = append(loads, l)
	}
	return loads, rows.Err()
}

func attachDocuments(ctx context.Context, q queryer, loads []models.Load) error {
	if len(loads) == 0 {
		return nil
	}
	ids := make([]int64, len(loads))
	index := make(map[int64]int, len(loads))
	for i, l := range loads {
		ids[i] = l.ID
		index[l.ID] = i
	}

	placeholders, args := inClause(ids)
	rows, err := q.QueryContext(ctx, `
		SELECT id, load_id, file_name, extraction, extraction_version, created_at
		FROM load_documents WHERE load_id IN (`+placeholders+`) ORDER BY id`, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			d          models.Document
			extraction sql.NullString
			version    sql.NullInt64
			createdAt  int64
		)
		if err := rows.Scan(&d.ID, &d.LoadID, &d.FileName, &extraction, &version, &createdAt); err != nil {
			return err
		}
		var raw []byte
		if extraction.Valid {
			raw = []byte(extraction.String)
		}
		var v *int
		if version.Valid {
			n := int(version.Int64)
			v = &n
		}
		d.Extraction = models.ParseExtraction(v, raw)
		d.CreatedAt = fromNanos(createdAt)

		i := index[d.LoadID]
		loads[i].Documents = append(loads[i].Documents, d)
	}
	return rows.Err()
}

func queryInventory(ctx context.Context, q queryer, requestID int64) ([]models.InventoryRecord, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, request_id, location_id, status, quantity, created_at, updated_at
		FROM inventory_records WHERE request_id = ? ORDER BY id`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.InventoryRecord
	for rows.Next() {
		var (
			r                    models.InventoryRecord
			locationID           sql.NullInt64
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&r.ID, &r.RequestID, &locationID, &r.Status, &r.Quantity, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		r.LocationID = nullInt(locationID)
		r.CreatedAt = fromNanos(createdAt)
		r.UpdatedAt = fromNanos(updatedAt)
		records = append(records, r)
	}
	return records, rows.Err()
}

func expectOneRow(res sql.Result, err error, op string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n != 1 {
		return fmt.Errorf("%s: expected 1 row, updated %d", op, n)
	}
	return nil
}

func inClause(ids []int64) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(ids)), ","), args
}

func nanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullTime(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

func nullInt(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func nullNanos(t *time.Time) any {
	if t == nil {
		return nil
	}
	return nanos(*t)
}
