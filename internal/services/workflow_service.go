package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"storage-backend/internal/auth"
	"storage-backend/internal/metrics"
	"storage-backend/internal/store"
	"storage-backend/internal/timeutil"
	"storage-backend/internal/workflow"
)

// RequestState is the derived workflow state of one request, as served to clients.
type RequestState struct {
	RequestID     int64                     `json:"request_id"`
	ReferenceCode string                    `json:"reference_code"`
	CustomerID    int64                     `json:"customer_id"`
	State         workflow.State            `json:"state"`
	Label         string                    `json:"label"`
	Hint          workflow.NextActionHint   `json:"next_action"`
	Inventory     workflow.InventorySummary `json:"inventory"`
	DerivedAt     time.Time                 `json:"derived_at"`
}

// WorkflowService reads a snapshot and derives the request's current state.
type WorkflowService struct {
	Snapshots store.SnapshotReader
}

func NewWorkflowService(s store.SnapshotReader) *WorkflowService {
	return &WorkflowService{Snapshots: s}
}

// CurrentState returns the state of a request the actor is allowed to see.
// Customers asking about someone else's request get ErrNotFound.
func (s *WorkflowService) CurrentState(ctx context.Context, actor auth.Principal, requestID int64) (*RequestState, error) {
	if requestID <= 0 {
		return nil, fmt.Errorf("%w: request id is required", ErrInvalidArgument)
	}

	snap, err := s.Snapshots.LoadRequestSnapshot(ctx, requestID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: storage request %d", ErrNotFound, requestID)
	}
	if err != nil {
		return nil, classify(ctx, err)
	}
	if !actor.CanViewRequest(snap.Request.CustomerID) {
		return nil, fmt.Errorf("%w: storage request %d", ErrNotFound, requestID)
	}

	state, hint := workflow.Derive(workflow.Localize(*snap, timeutil.Zone))
	if state.Fallback() {
		metrics.WorkflowFallbackTotal.Inc()
		log.Printf("[Workflow] No state rule matched request %s: %s", snap.Request.ReferenceCode, state.Anomaly)
	}

	return &RequestState{
		RequestID:     snap.Request.ID,
		ReferenceCode: snap.Request.ReferenceCode,
		CustomerID:    snap.Request.CustomerID,
		State:         state,
		Label:         state.Label(),
		Hint:          hint,
		Inventory:     snap.Inventory,
		DerivedAt:     timeutil.Now(),
	}, nil
}
