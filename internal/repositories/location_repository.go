package repositories

import (
	"context"
	"fmt"
	"time"

	"storage-backend/internal/models"
)

type LocationRepository struct {
	DB DBTX
}

func NewLocationRepository(db DBTX) *LocationRepository {
	return &LocationRepository{DB: db}
}

func (r *LocationRepository) List(ctx context.Context) ([]models.Location, error) {
	return r.query(ctx, `SELECT id, name, capacity, occupied, updated_at FROM storage_locations ORDER BY id`)
}

// LockByIDs row-locks the given locations in ascending id order. Every writer
// takes location locks in this order, which keeps concurrent approvals from
// deadlocking on each other.
func (r *LocationRepository) LockByIDs(ctx context.Context, ids []int64) ([]models.Location, error) {
	query := `
		SELECT id, name, capacity, occupied, updated_at
		FROM storage_locations
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`
	return r.query(ctx, query, ids)
}

// AddOccupied reserves quantity units. The guard mirrors the table's CHECK constraint.
func (r *LocationRepository) AddOccupied(ctx context.Context, id, quantity int64, at time.Time) error {
	query := `
		UPDATE storage_locations
		SET occupied = occupied + $1, updated_at = $2
		WHERE id = $3 AND occupied + $1 <= capacity
	`
	tag, err := r.DB.Exec(ctx, query, quantity, at, id)
	if err != nil {
		return fmt.Errorf("reserve capacity: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("reserve capacity on location %d: no headroom for %d", id, quantity)
	}
	return nil
}

func (r *LocationRepository) Create(ctx context.Context, l *models.Location) error {
	return r.DB.QueryRow(ctx,
		`INSERT INTO storage_locations (name, capacity, occupied) VALUES ($1, $2, $3) RETURNING id, updated_at`,
		l.Name, l.Capacity, l.Occupied,
	).Scan(&l.ID, &l.UpdatedAt)
}

func (r *LocationRepository) query(ctx context.Context, query string, args ...any) ([]models.Location, error) {
	rows, err := r.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locations []models.Location
	for rows.Next() {
		var l models.Location
		if err := rows.Scan(&l.ID, &l.Name, &l.Capacity, &l.Occupied, &l.UpdatedAt); err != nil {
			return nil, err
		}
		locations = append(locations, l)
	}
	return locations, rows.Err()
}
