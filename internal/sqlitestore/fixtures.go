package sqlitestore

import (
	"context"
	"encoding/json"

	"storage-backend/internal/models"
	"storage-backend/internal/timeutil"
)

// The Insert* methods stand in for the intake flows (customer signup, request
// submission, load scheduling, document upload) that live outside this service.
// They back the seed command and tests.

func (s *Store) InsertCustomer(ctx context.Context, c *models.Customer) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = timeutil.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO customers (name, phone, email, created_at) VALUES (?, ?, ?, ?)`,
		c.Name, c.Phone, c.Email, nanos(c.CreatedAt))
	if err != nil {
		return err
	}
	c.ID, err = res.LastInsertId()
	return err
}

func (s *Store) InsertLocation(ctx context.Context, l *models.Location) error {
	if l.UpdatedAt.IsZero() {
		l.UpdatedAt = timeutil.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO storage_locations (name, capacity, occupied, updated_at) VALUES (?, ?, ?, ?)`,
		l.Name, l.Capacity, l.Occupied, nanos(l.UpdatedAt))
	if err != nil {
		return err
	}
	l.ID, err = res.LastInsertId()
	return err
}

func (s *Store) InsertStorageRequest(ctx context.Context, r *models.StorageRequest) error {
	now := timeutil.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = now
	}
	if r.AssignedLocationIDs == nil {
		r.AssignedLocationIDs = []int64{}
	}
	assigned, err := json.Marshal(r.AssignedLocationIDs)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO storage_requests (reference_code, customer_id, status, requested_quantity, approved_quantity,
			assigned_location_ids, rejection_reason, admin_notes, decided_by,
			created_at, updated_at, approved_at, rejected_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ReferenceCode, r.CustomerID, r.Status, r.RequestedQuantity, r.ApprovedQuantity,
		string(assigned), r.RejectionReason, r.AdminNotes, r.DecidedBy,
		nanos(r.CreatedAt), nanos(r.UpdatedAt), nullNanos(r.ApprovedAt), nullNanos(r.RejectedAt), nullNanos(r.CompletedAt))
	if err != nil {
		return err
	}
	r.ID, err = res.LastInsertId()
	return err
}

func (s *Store) InsertLoad(ctx context.Context, l *models.Load) error {
	now := timeutil.Now()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	if l.UpdatedAt.IsZero() {
		l.UpdatedAt = now
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO loads (request_id, direction, sequence_number, status,
			planned_quantity, completed_quantity, planned_weight, completed_weight,
			planned_length, completed_length, window_start, window_end, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.RequestID, l.Direction, l.SequenceNumber, l.Status,
		l.PlannedQuantity, l.CompletedQuantity, l.PlannedWeight.String(), l.CompletedWeight.String(),
		l.PlannedLength.String(), l.CompletedLength.String(), nullNanos(l.WindowStart), nullNanos(l.WindowEnd),
		nanos(l.CreatedAt), nanos(l.UpdatedAt))
	if err != nil {
		return err
	}
	l.ID, err = res.LastInsertId()
	return err
}

// InsertDocument stores a document; a nil extraction leaves the payload absent.
func (s *Store) InsertDocument(ctx context.Context, d *models.Document, extraction *models.ManifestV1) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = timeutil.Now()
	}
	var (
		raw     any
		version any
	)
	if extraction != nil {
		b, err := json.Marshal(extraction)
		if err != nil {
			return err
		}
		raw = string(b)
		version = models.ManifestSchemaV1
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO load_documents (load_id, file_name, extraction, extraction_version, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		d.LoadID, d.FileName, raw, version, nanos(d.CreatedAt))
	if err != nil {
		return err
	}
	d.ID, err = res.LastInsertId()
	return err
}

func (s *Store) InsertInventoryRecord(ctx context.Context, r *models.InventoryRecord) error {
	now := timeutil.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = now
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory_records (request_id, location_id, status, quantity, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.RequestID, r.LocationID, r.Status, r.Quantity, nanos(r.CreatedAt), nanos(r.UpdatedAt))
	if err != nil {
		return err
	}
	r.ID, err = res.LastInsertId()
	return err
}
