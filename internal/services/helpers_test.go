package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"storage-backend/internal/auth"
	"storage-backend/internal/db"
	"storage-backend/internal/models"
	"storage-backend/internal/sqlitestore"
	"storage-backend/internal/store"

	"github.com/stretchr/testify/require"
)

var (
	admin    = auth.Principal{UserID: 1, Role: auth.RoleAdmin}
	employee = auth.Principal{UserID: 2, Role: auth.RoleEmployee}

	refSeq atomic.Int64
)

func newTestStore(t *testing.T) *sqlitestore.Store {
	t.Helper()
	ctx := context.Background()
	conn, err := db.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	s, err := sqlitestore.New(ctx, conn)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func seedCustomer(t *testing.T, s *sqlitestore.Store) *models.Customer {
	t.Helper()
	c := &models.Customer{Name: "Asha Traders", Phone: "9876543210", Email: "asha@example.com"}
	require.NoError(t, s.InsertCustomer(context.Background(), c))
	return c
}

func seedLocation(t *testing.T, s *sqlitestore.Store, name string, capacity, occupied int64) *models.Location {
	t.Helper()
	l := &models.Location{Name: name, Capacity: capacity, Occupied: occupied}
	require.NoError(t, s.InsertLocation(context.Background(), l))
	return l
}

func seedRequest(t *testing.T, s *sqlitestore.Store, customerID int64, status string, qty int64) *models.StorageRequest {
	t.Helper()
	r := &models.StorageRequest{
		ReferenceCode:     fmt.Sprintf("SR-%04d", refSeq.Add(1)),
		CustomerID:        customerID,
		Status:            status,
		RequestedQuantity: qty,
	}
	if status == models.RequestStatusRejected {
		reason := "seeded as rejected"
		r.RejectionReason = &reason
	}
	require.NoError(t, s.InsertStorageRequest(context.Background(), r))
	return r
}

func locationsByName(t *testing.T, s *sqlitestore.Store) map[string]models.Location {
	t.Helper()
	locs, err := s.ListLocations(context.Background())
	require.NoError(t, err)
	out := make(map[string]models.Location, len(locs))
	for _, l := range locs {
		out[l.Name] = l
	}
	return out
}

func getRequest(t *testing.T, s *sqlitestore.Store, id int64) models.StorageRequest {
	t.Helper()
	snap, err := s.LoadRequestSnapshot(context.Background(), id)
	require.NoError(t, err)
	return snap.Request
}

func auditTrail(t *testing.T, s *sqlitestore.Store, requestID int64) []models.AuditRecord {
	t.Helper()
	records, err := s.ListAuditRecords(context.Background(), models.EntityStorageRequest, requestID)
	require.NoError(t, err)
	return records
}

// outboxEntries reads every outbox row; ids are dense in a fresh database.
func outboxEntries(t *testing.T, s *sqlitestore.Store) []models.OutboxEntry {
	t.Helper()
	var out []models.OutboxEntry
	for id := int64(1); ; id++ {
		e, err := s.GetOutboxEntry(context.Background(), id)
		if errors.Is(err, store.ErrNotFound) {
			return out
		}
		require.NoError(t, err)
		out = append(out, *e)
	}
}
