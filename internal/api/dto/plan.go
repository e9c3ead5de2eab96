package dto

import (
	"time"

	"github.com/google/uuid"
)

type PlanStopResponse struct {
	Destination string      `json:"destination"`
	ArriveAt    time.Time   `json:"arrive_at"`
	AttendeeIDs []uuid.UUID `json:"attendee_ids"`
}

type PlanResponse struct {
	RouteID              uuid.UUID          `json:"route_id"`
	TripNumber           int                `json:"trip_number"`
	DepartAt             time.Time          `json:"depart_at"`
	TotalDistanceMeters  int                `json:"total_distance_meters"`
	TotalDurationSeconds int                `json:"total_duration_seconds"`
	Stops                []PlanStopResponse `json:"stops"`
}

type OptimizeResponse struct {
	Plan   PlanResponse   `json:"plan"`
	Ledger LedgerResponse `json:"ledger"`
}
