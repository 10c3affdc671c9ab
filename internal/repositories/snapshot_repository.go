package repositories

import (
	"context"
	"fmt"

	"storage-backend/internal/models"
	"storage-backend/internal/workflow"

	"github.com/shopspring/decimal"
)

// SnapshotRepository reads everything workflow derivation needs about one request.
type SnapshotRepository struct {
	DB DBTX
}

func NewSnapshotRepository(db DBTX) *SnapshotRepository {
	return &SnapshotRepository{DB: db}
}

// Load assembles the snapshot. Run it inside a repeatable-read transaction
// for a consistent view.
func (r *SnapshotRepository) Load(ctx context.Context, requestID int64) (*workflow.Snapshot, error) {
	req, err := NewStorageRequestRepository(r.DB).Get(ctx, requestID)
	if err != nil {
		return nil, err
	}

	loads, err := r.loads(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := r.attachDocuments(ctx, loads); err != nil {
		return nil, err
	}

	records, err := r.inventory(ctx, requestID)
	if err != nil {
		return nil, err
	}

	snap := &workflow.Snapshot{Request: *req, Inventory: workflow.Summarize(records)}
	for _, l := range loads {
		if l.Direction == models.DirectionInbound {
			snap.Inbound = append(snap.Inbound, l)
		} else {
			snap.Outbound = append(snap.Outbound, l)
		}
	}
	return snap, nil
}

func (r *SnapshotRepository) loads(ctx context.Context, requestID int64) ([]models.Load, error) {
	query := `
		SELECT id, request_id, direction, sequence_number, status,
		       planned_quantity, completed_quantity,
		       planned_weight::text, completed_weight::text, planned_length::text, completed_length::text,
		       window_start, window_end, created_at, updated_at
		FROM loads
		WHERE request_id = $1
		ORDER BY direction, sequence_number
	`
	rows, err := r.DB.Query(ctx, query, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var loads []models.Load
	for rows.Next() {
		var (
			l              models.Load
			pw, cw, pl, cl string
		)
		if err := rows.Scan(&l.ID, &l.RequestID, &l.Direction, &l.SequenceNumber, &l.Status,
			&l.PlannedQuantity, &l.CompletedQuantity, &pw, &cw, &pl, &cl,
			&l.WindowStart, &l.WindowEnd, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		if l.PlannedWeight, err = decimal.NewFromString(pw); err != nil {
			return nil, fmt.Errorf("load %d planned_weight: %w", l.ID, err)
		}
		if l.CompletedWeight, err = decimal.NewFromString(cw); err != nil {
			return nil, fmt.Errorf("load %d completed_weight: %w", l.ID, err)
		}
		if l.PlannedLength, err = decimal.NewFromString(pl); err != nil {
			return nil, fmt.Errorf("load %d planned_length: %w", l.ID, err)
		}
		if l.CompletedLength, err = decimal.NewFromString(cl); err != nil {
			return nil, fmt.Errorf("load %d completed_length: %w", l.ID, err)
		}
		loads = append(loads, l)
	}
	return loads, rows.Err()
}

func (r *SnapshotRepository) attachDocuments(ctx context.Context, loads []models.Load) error {
	if len(loads) == 0 {
		return nil
	}
	ids := make([]int64, len(loads))
	index := make(map[int64]int, len(loads))
	for i, l := range loads {
		ids[i] = l.ID
		index[l.ID] = i
	}

	query := `
		SELECT id, load_id, file_name, extraction, extraction_version, created_at
		FROM load_documents
		WHERE load_id = ANY($1)
		ORDER BY id
	`
	rows, err := r.DB.Query(ctx, query, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			d       models.Document
			raw     []byte
			version *int
		)
		if err := rows.Scan(&d.ID, &d.LoadID, &d.FileName, &raw, &version, &d.CreatedAt); err != nil {
			return err
		}
		d.Extraction = models.ParseExtraction(version, raw)

		i := index[d.LoadID]
		loads[i].Documents = append(loads[i].Documents, d)
	}
	return rows.Err()
}

func (r *SnapshotRepository) inventory(ctx context.Context, requestID int64) ([]models.InventoryRecord, error) {
	query := `
		SELECT id, request_id, location_id, status, quantity, created_at, updated_at
		FROM inventory_records
		WHERE request_id = $1
		ORDER BY id
	`
	rows, err := r.DB.Query(ctx, query, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.InventoryRecord
	for rows.Next() {
		var rec models.InventoryRecord
		if err := rows.Scan(&rec.ID, &rec.RequestID, &rec.LocationID, &rec.Status, &rec.Quantity,
			&rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
