package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"storage-backend/internal/auth"
	"storage-backend/internal/metrics"
	"storage-backend/internal/models"
	"storage-backend/internal/store"
	"storage-backend/internal/timeutil"

	"github.com/google/uuid"
)

const (
	DefaultTransitionTimeout = 5 * time.Second
	DefaultMinReasonLength   = 10
)

// TransitionService approves and rejects storage requests. Each call is one
// transaction: the request, the touched locations, one audit record and one
// outbox entry commit together or not at all.
type TransitionService struct {
	Store store.EntityStore

	// Timeout applies when the caller's context has no deadline
	Timeout         time.Duration
	MinReasonLength int

	now func() time.Time
}

func NewTransitionService(s store.EntityStore, timeout time.Duration, minReasonLength int) *TransitionService {
	if timeout <= 0 {
		timeout = DefaultTransitionTimeout
	}
	if minReasonLength <= 0 {
		minReasonLength = DefaultMinReasonLength
	}
	return &TransitionService{
		Store:           s,
		Timeout:         timeout,
		MinReasonLength: minReasonLength,
		now:             timeutil.Now,
	}
}

type ApproveInput struct {
	RequestID        int64   `json:"request_id"`
	LocationIDs      []int64 `json:"location_ids"`
	RequiredQuantity int64   `json:"required_quantity"`
	Notes            string  `json:"notes"`
}

type ApprovalResult struct {
	RequestID     int64        `json:"request_id"`
	ReferenceCode string       `json:"reference_code"`
	Status        string       `json:"status"`
	ApprovedAt    time.Time    `json:"approved_at"`
	Quantity      int64        `json:"quantity"`
	LocationNames []string     `json:"location_names"`
	Allocations   []Allocation `json:"allocations"`
}

type RejectInput struct {
	RequestID int64  `json:"request_id"`
	Reason    string `json:"reason"`
	Notes     string `json:"notes"`
}

type RejectionResult struct {
	RequestID     int64     `json:"request_id"`
	ReferenceCode string    `json:"reference_code"`
	Status        string    `json:"status"`
	RejectedAt    time.Time `json:"rejected_at"`
	Reason        string    `json:"reason"`
}

// Approve assigns locations to a pending request and reserves capacity on them.
// Repeating it on a decided request fails with ErrInvalidState and changes nothing.
func (s *TransitionService) Approve(ctx context.Context, actor auth.Principal, in ApproveInput) (result *ApprovalResult, err error) {
	start := time.Now()
	defer func() { s.record("approve", in.RequestID, start, err) }()

	if !actor.CanDecideRequests() {
		return nil, fmt.Errorf("%w: user %d may not approve requests", ErrForbidden, actor.UserID)
	}
	lockOrder, err := validateApprove(in)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err = s.Store.WithinTx(ctx, func(tx store.TransitionTx) error {
		req, err := lockPending(ctx, tx, in.RequestID)
		if err != nil {
			return err
		}

		locations, err := tx.LockLocations(ctx, lockOrder)
		if err != nil {
			return err
		}
		if missing := unresolved(lockOrder, locations); len(missing) > 0 {
			return fmt.Errorf("%w: unknown location ids %v", ErrInvalidReference, missing)
		}

		allocs, available, ok := Allocate(locations, in.RequiredQuantity)
		if !ok {
			names := make([]string, len(locations))
			for i, l := range locations {
				names[i] = l.Name
			}
			return &CapacityExceededError{Required: in.RequiredQuantity, Available: available, LocationNames: names}
		}

		now := s.now()
		notes := optional(in.Notes)
		if err := tx.MarkRequestApproved(ctx, store.ApprovalDecision{
			RequestID:   req.ID,
			LocationIDs: in.LocationIDs,
			Quantity:    in.RequiredQuantity,
			Notes:       notes,
			ActorID:     actor.UserID,
			At:          now,
		}); err != nil {
			return err
		}

		for _, a := range allocs {
			if a.Quantity == 0 {
				continue
			}
			if err := tx.AddOccupied(ctx, a.LocationID, a.Quantity, now); err != nil {
				return err
			}
		}

		customer, err := tx.GetCustomer(ctx, req.CustomerID)
		if err != nil {
			return fmt.Errorf("load customer %d: %w", req.CustomerID, err)
		}

		lines := make([]models.AllocationLine, 0, len(allocs))
		for _, a := range allocs {
			if a.Quantity > 0 {
				lines = append(lines, models.AllocationLine{LocationID: a.LocationID, LocationName: a.LocationName, Quantity: a.Quantity})
			}
		}

		if err := s.appendAudit(ctx, tx, actor, models.AuditActionApprove, req,
			fmt.Sprintf("Approved %s for %d units", req.ReferenceCode, in.RequiredQuantity),
			map[string]any{
				"previous_status":   req.Status,
				"required_quantity": in.RequiredQuantity,
				"location_ids":      in.LocationIDs,
				"allocations":       allocs,
				"notes":             notes,
			}, now); err != nil {
			return err
		}

		if err := s.enqueue(ctx, tx, models.RequestApprovedPayload{
			RequestID:     req.ID,
			ReferenceCode: req.ReferenceCode,
			Recipient:     recipient(customer),
			Quantity:      in.RequiredQuantity,
			Allocations:   lines,
		}, now); err != nil {
			return err
		}

		result = &ApprovalResult{
			RequestID:     req.ID,
			ReferenceCode: req.ReferenceCode,
			Status:        models.RequestStatusApproved,
			ApprovedAt:    now,
			Quantity:      in.RequiredQuantity,
			Allocations:   allocs,
		}
		for _, l := range lines {
			result.LocationNames = append(result.LocationNames, l.LocationName)
		}
		return nil
	})
	if err != nil {
		return nil, classify(ctx, err)
	}

	log.Printf("[Transition] Request %s approved by user %d: %d units across %v",
		result.ReferenceCode, actor.UserID, result.Quantity, result.LocationNames)
	return result, nil
}

// Reject closes a pending request with a reason. Locations are never touched.
func (s *TransitionService) Reject(ctx context.Context, actor auth.Principal, in RejectInput) (result *RejectionResult, err error) {
	start := time.Now()
	defer func() { s.record("reject", in.RequestID, start, err) }()

	if !actor.CanDecideRequests() {
		return nil, fmt.Errorf("%w: user %d may not reject requests", ErrForbidden, actor.UserID)
	}
	if in.RequestID <= 0 {
		return nil, fmt.Errorf("%w: request id is required", ErrInvalidArgument)
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: rejection reason is required", ErrInvalidArgument)
	}
	if utf8.RuneCountInString(reason) < s.MinReasonLength {
		return nil, fmt.Errorf("%w: rejection reason must be at least %d characters", ErrInvalidArgument, s.MinReasonLength)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err = s.Store.WithinTx(ctx, func(tx store.TransitionTx) error {
		req, err := lockPending(ctx, tx, in.RequestID)
		if err != nil {
			return err
		}

		now := s.now()
		notes := optional(in.Notes)
		if err := tx.MarkRequestRejected(ctx, store.RejectionDecision{
			RequestID: req.ID,
			Reason:    reason,
			Notes:     notes,
			ActorID:   actor.UserID,
			At:        now,
		}); err != nil {
			return err
		}

		customer, err := tx.GetCustomer(ctx, req.CustomerID)
		if err != nil {
			return fmt.Errorf("load customer %d: %w", req.CustomerID, err)
		}

		if err := s.appendAudit(ctx, tx, actor, models.AuditActionReject, req,
			fmt.Sprintf("Rejected %s", req.ReferenceCode),
			map[string]any{
				"previous_status": req.Status,
				"reason":          reason,
				"notes":           notes,
			}, now); err != nil {
			return err
		}

		if err := s.enqueue(ctx, tx, models.RequestRejectedPayload{
			RequestID:     req.ID,
			ReferenceCode: req.ReferenceCode,
			Recipient:     recipient(customer),
			Reason:        reason,
		}, now); err != nil {
			return err
		}

		result = &RejectionResult{
			RequestID:     req.ID,
			ReferenceCode: req.ReferenceCode,
			Status:        models.RequestStatusRejected,
			RejectedAt:    now,
			Reason:        reason,
		}
		return nil
	})
	if err != nil {
		return nil, classify(ctx, err)
	}

	log.Printf("[Transition] Request %s rejected by user %d", result.ReferenceCode, actor.UserID)
	return result, nil
}

func (s *TransitionService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.Timeout)
}

func (s *TransitionService) record(action string, requestID int64, start time.Time, err error) {
	kind := ErrorKind(err)
	metrics.TransitionsTotal.WithLabelValues(action, kind).Inc()
	metrics.TransitionDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())

	if kind == "timeout" || kind == "unexpected" {
		log.Printf("[Transition] %s request %d failed: %v", action, requestID, err)
	}
}

func (s *TransitionService) appendAudit(ctx context.Context, tx store.TransitionTx, actor auth.Principal, action string,
	req *models.StorageRequest, description string, detail map[string]any, at time.Time) error {
	raw, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("encode audit detail: %w", err)
	}
	return tx.InsertAuditRecord(ctx, &models.AuditRecord{
		ActorID:     actor.UserID,
		Action:      action,
		EntityType:  models.EntityStorageRequest,
		EntityID:    req.ID,
		Description: description,
		Detail:      raw,
		CreatedAt:   at,
	})
}

func (s *TransitionService) enqueue(ctx context.Context, tx store.TransitionTx, p models.NotificationPayload, at time.Time) error {
	raw, err := models.EncodeNotification(p)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	return tx.InsertOutboxEntry(ctx, &models.OutboxEntry{
		DedupeKey: uuid.NewString(),
		Type:      p.NotificationType(),
		Payload:   raw,
		CreatedAt: at,
	})
}

// lockPending locks the request row and checks it can still be decided.
func lockPending(ctx context.Context, tx store.TransitionTx, id int64) (*models.StorageRequest, error) {
	req, err := tx.LockStorageRequest(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: storage request %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if req.Status != models.RequestStatusPending {
		return nil, fmt.Errorf("%w: request %s is %s, not pending", ErrInvalidState, req.ReferenceCode, req.Status)
	}
	return req, nil
}

// validateApprove checks the input and returns the location ids in lock order.
func validateApprove(in ApproveInput) ([]int64, error) {
	if in.RequestID <= 0 {
		return nil, fmt.Errorf("%w: request id is required", ErrInvalidArgument)
	}
	if in.RequiredQuantity <= 0 {
		return nil, fmt.Errorf("%w: required quantity must be positive", ErrInvalidArgument)
	}
	if len(in.LocationIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one location is required", ErrInvalidArgument)
	}

	ids := make([]int64, len(in.LocationIDs))
	copy(ids, in.LocationIDs)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for i := 1; i < len(ids); i++ {
		if ids[i] == ids[i-1] {
			return nil, fmt.Errorf("%w: location %d listed twice", ErrInvalidArgument, ids[i])
		}
	}
	return ids, nil
}

func unresolved(ids []int64, found []models.Location) []int64 {
	seen := make(map[int64]bool, len(found))
	for _, l := range found {
		seen[l.ID] = true
	}
	var missing []int64
	for _, id := range ids {
		if !seen[id] {
			missing = append(missing, id)
		}
	}
	return missing
}

func recipient(c *models.Customer) models.Recipient {
	return models.Recipient{Name: c.Name, Phone: c.Phone, Email: c.Email}
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
