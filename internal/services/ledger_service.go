package services

import (
	"context"
	"fmt"

	"storage-backend/internal/auth"
	"storage-backend/internal/models"
	"storage-backend/internal/store"
)

// LedgerService serves the staff read views: capacity per location and the
// audit trail of a request.
type LedgerService struct {
	Store store.QueryStore
}

func NewLedgerService(s store.QueryStore) *LedgerService {
	return &LedgerService{Store: s}
}

func (s *LedgerService) Locations(ctx context.Context, actor auth.Principal) ([]models.LocationView, error) {
	if !actor.CanOperate() {
		return nil, fmt.Errorf("%w: user %d may not view locations", ErrForbidden, actor.UserID)
	}
	locations, err := s.Store.ListLocations(ctx)
	if err != nil {
		return nil, classify(ctx, err)
	}

	views := make([]models.LocationView, len(locations))
	for i, l := range locations {
		views[i] = models.LocationView{Location: l, Headroom: l.Headroom()}
	}
	return views, nil
}

func (s *LedgerService) AuditTrail(ctx context.Context, actor auth.Principal, requestID int64) ([]models.AuditRecord, error) {
	if !actor.CanOperate() {
		return nil, fmt.Errorf("%w: user %d may not view the audit trail", ErrForbidden, actor.UserID)
	}
	if requestID <= 0 {
		return nil, fmt.Errorf("%w: request id is required", ErrInvalidArgument)
	}
	records, err := s.Store.ListAuditRecords(ctx, models.EntityStorageRequest, requestID)
	if err != nil {
		return nil, classify(ctx, err)
	}
	return records, nil
}
