package repositories

import (
	"context"
	"fmt"

	"storage-backend/internal/models"
	"storage-backend/internal/store"
)

type StorageRequestRepository struct {
	DB DBTX
}

func NewStorageRequestRepository(db DBTX) *StorageRequestRepository {
	return &StorageRequestRepository{DB: db}
}

const storageRequestColumns = `id, reference_code, customer_id, status, requested_quantity, approved_quantity,
	assigned_location_ids, rejection_reason, admin_notes, decided_by,
	created_at, updated_at, approved_at, rejected_at, completed_at`

func scanStorageRequest(row interface{ Scan(...any) error }) (*models.StorageRequest, error) {
	var r models.StorageRequest
	err := row.Scan(&r.ID, &r.ReferenceCode, &r.CustomerID, &r.Status, &r.RequestedQuantity, &r.ApprovedQuantity,
		&r.AssignedLocationIDs, &r.RejectionReason, &r.AdminNotes, &r.DecidedBy,
		&r.CreatedAt, &r.UpdatedAt, &r.ApprovedAt, &r.RejectedAt, &r.CompletedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

func (r *StorageRequestRepository) Get(ctx context.Context, id int64) (*models.StorageRequest, error) {
	query := `SELECT ` + storageRequestColumns + ` FROM storage_requests WHERE id = $1`
	return scanStorageRequest(r.DB.QueryRow(ctx, query, id))
}

// GetForUpdate reads the request and row-locks it until the surrounding transaction ends.
func (r *StorageRequestRepository) GetForUpdate(ctx context.Context, id int64) (*models.StorageRequest, error) {
	query := `SELECT ` + storageRequestColumns + ` FROM storage_requests WHERE id = $1 FOR UPDATE`
	return scanStorageRequest(r.DB.QueryRow(ctx, query, id))
}

// Create inserts a request as submitted by a customer
func (r *StorageRequestRepository) Create(ctx context.Context, req *models.StorageRequest) error {
	if req.AssignedLocationIDs == nil {
		req.AssignedLocationIDs = []int64{}
	}
	query := `
		INSERT INTO storage_requests (reference_code, customer_id, status, requested_quantity, assigned_location_ids)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	return r.DB.QueryRow(ctx, query,
		req.ReferenceCode, req.CustomerID, req.Status, req.RequestedQuantity, req.AssignedLocationIDs,
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
}

// MarkApproved moves a pending request to approved. It refuses to touch a
// request that is no longer pending.
func (r *StorageRequestRepository) MarkApproved(ctx context.Context, d store.ApprovalDecision) error {
	query := `
		UPDATE storage_requests
		SET status = $1, approved_quantity = $2, assigned_location_ids = $3, admin_notes = $4,
		    decided_by = $5, approved_at = $6, updated_at = $6
		WHERE id = $7 AND status = $8
	`
	tag, err := r.DB.Exec(ctx, query,
		models.RequestStatusApproved, d.Quantity, d.LocationIDs, d.Notes,
		d.ActorID, d.At, d.RequestID, models.RequestStatusPending,
	)
	if err != nil {
		return fmt.Errorf("approve request: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("approve request %d: expected 1 row, updated %d", d.RequestID, tag.RowsAffected())
	}
	return nil
}

func (r *StorageRequestRepository) MarkRejected(ctx context.Context, d store.RejectionDecision) error {
	query := `
		UPDATE storage_requests
		SET status = $1, rejection_reason = $2, admin_notes = $3, decided_by = $4,
		    rejected_at = $5, updated_at = $5
		WHERE id = $6 AND status = $7
	`
	tag, err := r.DB.Exec(ctx, query,
		models.RequestStatusRejected, d.Reason, d.Notes, d.ActorID, d.At,
		d.RequestID, models.RequestStatusPending,
	)
	if err != nil {
		return fmt.Errorf("reject request: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("reject request %d: expected 1 row, updated %d", d.RequestID, tag.RowsAffected())
	}
	return nil
}
