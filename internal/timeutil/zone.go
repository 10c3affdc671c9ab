package timeutil

import (
	"log"
	"time"
)

// Zone is the location used for anything shown to people (hints, messages).
// Storage always uses UTC.
var Zone = time.UTC

// SetZone switches the display zone. Unknown names keep the current zone.
func SetZone(name string) {
	if name == "" {
		return
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Printf("[Time] Unknown timezone %q, keeping %s: %v", name, Zone, err)
		return
	}
	Zone = loc
}

// Now returns the current time in UTC, truncated to microseconds so values
// survive a round trip through Postgres unchanged.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// DisplayLayout is the human-facing timestamp format
const DisplayLayout = "02 Jan 2006, 03:04 PM"
