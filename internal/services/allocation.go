package services

import (
	"sort"

	"storage-backend/internal/models"
)

// Allocation is one location's share of an approved quantity.
type Allocation struct {
	LocationID   int64  `json:"location_id"`
	LocationName string `json:"location_name"`
	Quantity     int64  `json:"quantity"`
	OccupiedFrom int64  `json:"occupied_before"`
	OccupiedTo   int64  `json:"occupied_after"`
}

// Allocate splits required across locations by greedy fill in ascending id
// order: each location takes min(headroom, remaining). Every location gets an
// entry, possibly zero. ok is false when total headroom is short, in which
// case available holds that total.
func Allocate(locations []models.Location, required int64) (allocs []Allocation, available int64, ok bool) {
	sorted := make([]models.Location, len(locations))
	copy(sorted, locations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	for _, l := range sorted {
		available += l.Headroom()
	}
	if available < required {
		return nil, available, false
	}

	remaining := required
	allocs = make([]Allocation, 0, len(sorted))
	for _, l := range sorted {
		share := l.Headroom()
		if share > remaining {
			share = remaining
		}
		remaining -= share
		allocs = append(allocs, Allocation{
			LocationID:   l.ID,
			LocationName: l.Name,
			Quantity:     share,
			OccupiedFrom: l.Occupied,
			OccupiedTo:   l.Occupied + share,
		})
	}
	return allocs, available, true
}
