package dto

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type RouteRequest struct {
	Label          string     `json:"label" validate:"max=80"`
	DriverID       *uuid.UUID `json:"driver_id"`
	RoundTrips     int        `json:"round_trips" validate:"gte=0,lte=5"`
	Capacity       int        `json:"capacity" validate:"required,gte=1,lte=50"`
	DepartAt       *time.Time `json:"depart_at" validate:"required"`
	ReturnDepartAt *time.Time `json:"return_depart_at"`
	AvoidHighways  bool       `json:"avoid_highways"`
	AvoidTolls     bool       `json:"avoid_tolls"`
}

func (d *RouteRequest) Normalize() {
	d.Label = strings.TrimSpace(d.Label)
}

type AddPassengerRequest struct {
	AttendeeID uuid.UUID `json:"attendee_id" validate:"required"`
	TripNumber int       `json:"trip_number" validate:"omitempty,gte=1"`
}

type MoveAttendeeRequest struct {
	RouteID    uuid.UUID `json:"route_id" validate:"required"`
	TripNumber int       `json:"trip_number" validate:"omitempty,gte=1"`
}

type ReorderRequest struct {
	AttendeeIDs []uuid.UUID `json:"attendee_ids" validate:"required"`
}

type StepRequest struct {
	Direction string `json:"direction" validate:"required,oneof=up down"`
}

type SuggestionDTO struct {
	AttendeeID uuid.UUID `json:"attendee_id" validate:"required"`
	RouteID    uuid.UUID `json:"route_id" validate:"required"`
	TripNumber int       `json:"trip_number" validate:"gte=1"`
	Reason     string    `json:"reason,omitempty"`
}

type ApplySuggestionsRequest struct {
	Suggestions  []SuggestionDTO `json:"suggestions" validate:"required,min=1,dive"`
	ConfirmMoves bool            `json:"confirm_moves"`
}

type ErrorResponse struct {
	Error              string            `json:"error"`
	Kind               string            `json:"kind,omitempty"`
	ConflictingRouteID *uuid.UUID        `json:"conflicting_route_id,omitempty"`
	Fields             map[string]string `json:"fields,omitempty"`
}
