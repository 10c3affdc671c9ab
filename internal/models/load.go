package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Load direction
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Load status
const (
	LoadStatusNew       = "new"
	LoadStatusApproved  = "approved"
	LoadStatusInTransit = "in_transit"
	LoadStatusCompleted = "completed"
	LoadStatusCancelled = "cancelled"
)

// Load is one physical delivery (inbound) or retrieval (outbound) tied to a request.
type Load struct {
	ID                int64           `json:"id" db:"id"`
	RequestID         int64           `json:"request_id" db:"request_id"`
	Direction         string          `json:"direction" db:"direction"`
	SequenceNumber    int             `json:"sequence_number" db:"sequence_number"`
	Status            string          `json:"status" db:"status"`
	PlannedQuantity   int64           `json:"planned_quantity" db:"planned_quantity"`
	CompletedQuantity int64           `json:"completed_quantity" db:"completed_quantity"`
	PlannedWeight     decimal.Decimal `json:"planned_weight" db:"planned_weight"`
	CompletedWeight   decimal.Decimal `json:"completed_weight" db:"completed_weight"`
	PlannedLength     decimal.Decimal `json:"planned_length" db:"planned_length"`
	CompletedLength   decimal.Decimal `json:"completed_length" db:"completed_length"`
	WindowStart       *time.Time      `json:"window_start,omitempty" db:"window_start"`
	WindowEnd         *time.Time      `json:"window_end,omitempty" db:"window_end"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`

	Documents []Document `json:"documents,omitempty" db:"-"`
}

// IsActive reports whether the load is still expected to move goods.
func (l Load) IsActive() bool {
	switch l.Status {
	case LoadStatusNew, LoadStatusApproved, LoadStatusInTransit:
		return true
	}
	return false
}
