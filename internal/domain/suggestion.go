package domain

import "github.com/google/uuid"

// Suggestion proposes placing an attendee on a leg. Suggestions come from an LLM or a
// distance heuristic and are only advice until applied through the ledger.
type Suggestion struct {
	AttendeeID uuid.UUID `json:"attendee_id"`
	RouteID    uuid.UUID `json:"route_id"`
	TripNumber int       `json:"trip_number"`
	Reason     string    `json:"reason,omitempty"`
}

// LedgerChange describes one committed mutation, published so other staff devices
// can refresh their view of the day.
type LedgerChange struct {
	VenueID      uuid.UUID    `json:"venue_id"`
	BusinessDate BusinessDate `json:"business_date"`
	Operation    string       `json:"operation"`
	RouteID      uuid.UUID    `json:"route_id"`
	AttendeeID   uuid.UUID    `json:"attendee_id"`
	Version      int64        `json:"version"`
}
