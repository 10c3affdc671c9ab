package models

import "time"

// Request lifecycle status
const (
	RequestStatusDraft     = "draft"
	RequestStatusPending   = "pending"
	RequestStatusApproved  = "approved"
	RequestStatusRejected  = "rejected"
	RequestStatusCompleted = "completed"
)

// StorageRequest is a customer's ask to store a quantity of goods.
// It is never hard-deleted; only the transition service mutates it after submission.
type StorageRequest struct {
	ID                  int64      `json:"id" db:"id"`
	ReferenceCode       string     `json:"reference_code" db:"reference_code"`
	CustomerID          int64      `json:"customer_id" db:"customer_id"`
	Status              string     `json:"status" db:"status"`
	RequestedQuantity   int64      `json:"requested_quantity" db:"requested_quantity"`
	ApprovedQuantity    *int64     `json:"approved_quantity,omitempty" db:"approved_quantity"`
	AssignedLocationIDs []int64    `json:"assigned_location_ids" db:"assigned_location_ids"`
	RejectionReason     *string    `json:"rejection_reason,omitempty" db:"rejection_reason"`
	AdminNotes          *string    `json:"admin_notes,omitempty" db:"admin_notes"`
	DecidedBy           *int64     `json:"decided_by,omitempty" db:"decided_by"`
	CreatedAt           time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at" db:"updated_at"`
	ApprovedAt          *time.Time `json:"approved_at,omitempty" db:"approved_at"`
	RejectedAt          *time.Time `json:"rejected_at,omitempty" db:"rejected_at"`
	CompletedAt         *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// IsDecided reports whether the request has left the pending stage.
func (r *StorageRequest) IsDecided() bool {
	return r.Status == RequestStatusApproved || r.Status == RequestStatusRejected || r.Status == RequestStatusCompleted
}
