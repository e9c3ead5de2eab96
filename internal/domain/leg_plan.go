package domain

import (
	"time"

	"github.com/google/uuid"
)

// Represents a single drop-off stop of a leg.
// A LegStop corresponds to arriving at one destination at a computed time and
// dropping every attendee headed there.
type LegStop struct {
	Destination string
	ArriveAt    time.Time
	AttendeeIDs []uuid.UUID
}

// Represents the timed stop sequence of one leg of a route.
// A LegPlan is planning output; applying it to the ledger is a separate Reorder.
type LegPlan struct {
	RouteID              uuid.UUID
	TripNumber           int
	DepartAt             time.Time
	Stops                []LegStop
	TotalDurationSeconds int
	TotalDistanceMeters  int
}

// Order flattens the plan into the attendee order it implies.
func (p *LegPlan) Order() []uuid.UUID {
	var out []uuid.UUID
	for _, s := range p.Stops {
		out = append(out, s.AttendeeIDs...)
	}
	return out
}
