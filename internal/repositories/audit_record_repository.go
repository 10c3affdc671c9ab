package repositories

import (
	"context"

	"storage-backend/internal/models"
)

type AuditRecordRepository struct {
	DB DBTX
}

func NewAuditRecordRepository(db DBTX) *AuditRecordRepository {
	return &AuditRecordRepository{DB: db}
}

// Create appends an audit record
func (r *AuditRecordRepository) Create(ctx context.Context, rec *models.AuditRecord) error {
	detail := string(rec.Detail)
	if detail == "" {
		detail = "{}"
	}
	query := `
		INSERT INTO audit_records (
			actor_id, action, entity_type, entity_id, description, detail, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	return r.DB.QueryRow(ctx, query,
		rec.ActorID, rec.Action, rec.EntityType, rec.EntityID,
		rec.Description, detail, rec.CreatedAt,
	).Scan(&rec.ID)
}

// ListByEntity returns the audit trail of one entity, oldest first
func (r *AuditRecordRepository) ListByEntity(ctx context.Context, entityType string, entityID int64) ([]models.AuditRecord, error) {
	query := `
		SELECT id, actor_id, action, entity_type, entity_id, description, detail, created_at
		FROM audit_records
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at, id
	`

	rows, err := r.DB.Query(ctx, query, entityType, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.AuditRecord
	for rows.Next() {
		var (
			rec    models.AuditRecord
			detail []byte
		)
		if err := rows.Scan(
			&rec.ID, &rec.ActorID, &rec.Action, &rec.EntityType, &rec.EntityID,
			&rec.Description, &detail, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		rec.Detail = detail
		records = append(records, rec)
	}

	return records, rows.Err()
}
