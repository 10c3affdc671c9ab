package models

import "time"

// Location is a storage rack with finite capacity.
// occupied <= capacity holds after every committed transition.
type Location struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Capacity  int64     `json:"capacity" db:"capacity"`
	Occupied  int64     `json:"occupied" db:"occupied"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Headroom returns the free capacity, never negative.
func (l Location) Headroom() int64 {
	if l.Occupied >= l.Capacity {
		return 0
	}
	return l.Capacity - l.Occupied
}

// LocationView is the capacity ledger row returned by the locations endpoint
type LocationView struct {
	Location
	Headroom int64 `json:"headroom"`
}
