package dto

import (
	"time"

	"github.com/google/uuid"
)

type PassengerResponse struct {
	AttendeeID  uuid.UUID `json:"attendee_id"`
	DisplayName string    `json:"display_name,omitempty"`
	Destination *string   `json:"destination,omitempty"`
	TripNumber  int       `json:"trip_number"`
	OrderIndex  int       `json:"order_index"`
}

type TripResponse struct {
	TripNumber int                 `json:"trip_number"`
	DepartAt   time.Time           `json:"depart_at"`
	Passengers []PassengerResponse `json:"passengers"`
}

type RouteResponse struct {
	ID               uuid.UUID      `json:"id"`
	Label            string         `json:"label"`
	DriverID         *uuid.UUID     `json:"driver_id"`
	RoundTrips       int            `json:"round_trips"`
	Capacity         int            `json:"capacity"`
	DepartAt         time.Time      `json:"depart_at"`
	ReturnDepartAt   *time.Time     `json:"return_depart_at"`
	AvoidHighways    bool           `json:"avoid_highways"`
	AvoidTolls       bool           `json:"avoid_tolls"`
	Trips            []TripResponse `json:"trips"`
	CapacityWarnings []int          `json:"capacity_warnings"`
}

type LedgerResponse struct {
	VenueID      uuid.UUID       `json:"venue_id"`
	BusinessDate string          `json:"business_date"`
	Version      int64           `json:"version"`
	Routes       []RouteResponse `json:"routes"`
}

type AttendeeResponse struct {
	ID          uuid.UUID  `json:"id"`
	DisplayName string     `json:"display_name"`
	Destination *string    `json:"destination"`
	ClockInAt   *time.Time `json:"clock_in_at"`
	Eligible    bool       `json:"eligible"`
	RouteID     *uuid.UUID `json:"route_id"`
}

type BoardResponse struct {
	VenueName  string             `json:"venue_name"`
	Ledger     LedgerResponse     `json:"ledger"`
	Attendees  []AttendeeResponse `json:"attendees"`
	Unassigned []AttendeeResponse `json:"unassigned"`
}

type UpdateRouteResponse struct {
	Dropped []PassengerResponse `json:"dropped_passengers"`
	Ledger  LedgerResponse      `json:"ledger"`
}

type AssignmentResponse struct {
	AttendeeID uuid.UUID  `json:"attendee_id"`
	Assigned   bool       `json:"assigned"`
	RouteID    *uuid.UUID `json:"route_id"`
}

type CapacityWarningsResponse struct {
	RouteID uuid.UUID `json:"route_id"`
	Trips   []int     `json:"trips"`
}

type BusinessDateResponse struct {
	VenueID      uuid.UUID `json:"venue_id"`
	Timezone     string    `json:"timezone"`
	DaySwitch    string    `json:"day_switch"`
	At           time.Time `json:"at"`
	BusinessDate string    `json:"business_date"`
	SpanStart    string    `json:"span_start"`
	SpanEnd      string    `json:"span_end"`
	WindowStart  time.Time `json:"window_start"`
	WindowEnd    time.Time `json:"window_end"`
}

type SuggestionsResponse struct {
	Source      string          `json:"source"`
	Suggestions []SuggestionDTO `json:"suggestions"`
}

type ApplyConflictResponse struct {
	Suggestion         SuggestionDTO `json:"suggestion"`
	ConflictingRouteID uuid.UUID     `json:"conflicting_route_id"`
}

type ApplyRejectionResponse struct {
	Suggestion SuggestionDTO `json:"suggestion"`
	Reason     string        `json:"reason"`
}

type ApplySuggestionsResponse struct {
	Applied   []SuggestionDTO          `json:"applied"`
	Conflicts []ApplyConflictResponse  `json:"conflicts"`
	Rejected  []ApplyRejectionResponse `json:"rejected"`
	Ledger    LedgerResponse           `json:"ledger"`
}
