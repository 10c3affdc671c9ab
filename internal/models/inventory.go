package models

import "time"

// Inventory record status
const (
	InventoryPendingDelivery = "pending_delivery"
	InventoryInStorage       = "in_storage"
	InventoryInTransit       = "in_transit"
	InventoryPickedUp        = "picked_up"
)

type InventoryRecord struct {
	ID         int64     `json:"id" db:"id"`
	RequestID  int64     `json:"request_id" db:"request_id"`
	LocationID *int64    `json:"location_id,omitempty" db:"location_id"`
	Status     string    `json:"status" db:"status"`
	Quantity   int64     `json:"quantity" db:"quantity"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}
