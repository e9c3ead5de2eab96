package domain

import (
	"time"

	"github.com/google/uuid"
)

// Venue carries the per-venue settings the resolver needs. Address is the pickup
// origin for every route of the venue.
type Venue struct {
	ID        uuid.UUID
	Name      string
	Address   string
	Location  *time.Location
	DaySwitch DaySwitchBoundary
}

func (v Venue) CurrentBusinessDate() BusinessDate {
	return CurrentBusinessDate(v.DaySwitch, v.Location)
}

func (v Venue) ResolveBusinessDate(ts time.Time) BusinessDate {
	return ResolveBusinessDate(ts, v.DaySwitch, v.Location)
}
