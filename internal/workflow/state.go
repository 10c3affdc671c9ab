package workflow

import (
	"fmt"
	"sort"

	"storage-backend/internal/models"
)

// Kind is the lifecycle state of a storage request as shown to operators and customers.
type Kind string

const (
	KindRejected            Kind = "rejected"
	KindCompleted           Kind = "completed"
	KindPendingApproval     Kind = "pending_approval"
	KindAwaitingInboundLoad Kind = "awaiting_inbound_load"
	KindProcessingManifests Kind = "processing_manifests"
	KindInStorage           Kind = "in_storage"
	KindPickupInProgress    Kind = "pickup_in_progress"
	KindAwaitingPickup      Kind = "awaiting_pickup"

	// KindUnknown is the fallback. Seeing it means the snapshot is inconsistent.
	KindUnknown Kind = "unknown"
)

// State is the derived lifecycle state. Load carries the sequence number for
// the load-scoped kinds; Anomaly is set only on the fallback.
type State struct {
	Kind    Kind   `json:"kind"`
	Load    int    `json:"load,omitempty"`
	Anomaly string `json:"anomaly,omitempty"`
}

// Fallback reports whether no rule matched the snapshot
func (s State) Fallback() bool {
	return s.Kind == KindUnknown
}

// Label is the short badge text for the state
func (s State) Label() string {
	switch s.Kind {
	case KindRejected:
		return "Rejected"
	case KindCompleted:
		return "Completed"
	case KindPendingApproval:
		return "Pending approval"
	case KindAwaitingInboundLoad:
		return fmt.Sprintf("Awaiting inbound load #%d", s.Load)
	case KindProcessingManifests:
		return "Processing manifests"
	case KindInStorage:
		return "In storage"
	case KindPickupInProgress:
		return fmt.Sprintf("Pickup #%d in progress", s.Load)
	case KindAwaitingPickup:
		return "Awaiting pickup"
	}
	return "Status unavailable"
}

// NextActionHint tells the reader what happens next. Code is stable for clients;
// Message is display text.
type NextActionHint struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// InventorySummary aggregates a request's inventory records.
// TotalQuantity counts only goods physically in storage.
type InventorySummary struct {
	TotalQuantity int64            `json:"total_quantity"`
	ByStatus      map[string]int64 `json:"by_status"`
}

// Summarize folds inventory records into a summary
func Summarize(records []models.InventoryRecord) InventorySummary {
	s := InventorySummary{ByStatus: make(map[string]int64)}
	for _, r := range records {
		s.ByStatus[r.Status] += r.Quantity
		if r.Status == models.InventoryInStorage {
			s.TotalQuantity += r.Quantity
		}
	}
	return s
}

// Snapshot is a consistent point-in-time read of one request and everything hanging off it.
type Snapshot struct {
	Request   models.StorageRequest `json:"request"`
	Inbound   []models.Load         `json:"inbound_loads"`
	Outbound  []models.Load         `json:"outbound_loads"`
	Inventory InventorySummary      `json:"inventory"`
}

// SortLoads orders loads by sequence number, keeping the input order of ties.
// DeriveState expects its load slices to be sorted this way.
func SortLoads(loads []models.Load) {
	sort.SliceStable(loads, func(i, j int) bool {
		return loads[i].SequenceNumber < loads[j].SequenceNumber
	})
}
