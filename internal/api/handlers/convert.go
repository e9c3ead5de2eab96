package handlers

import (
	"venue-pickup-service/internal/api/dto"
	"venue-pickup-service/internal/domain"
	"venue-pickup-service/internal/services"

	"github.com/google/uuid"
)

// ledgerResponse renders the ledger. attendees may be nil; when given, passengers
// carry their display name and destination.
func ledgerResponse(l *domain.PickupLedger, attendees []domain.Attendee) dto.LedgerResponse {
	byID := make(map[uuid.UUID]domain.Attendee, len(attendees))
	for _, a := range attendees {
		byID[a.ProfileID] = a
	}

	res := dto.LedgerResponse{
		VenueID:      l.VenueID,
		BusinessDate: l.BusinessDate.String(),
		Version:      l.Version,
		Routes:       make([]dto.RouteResponse, 0),
	}
	for _, rt := range l.Routes() {
		warnings, _ := l.CapacityWarnings(rt.ID)
		if warnings == nil {
			warnings = []int{}
		}

		rr := dto.RouteResponse{
			ID:               rt.ID,
			Label:            rt.Label,
			DriverID:         rt.DriverID,
			RoundTrips:       rt.RoundTrips,
			Capacity:         rt.Capacity,
			DepartAt:         rt.DepartAt,
			ReturnDepartAt:   rt.ReturnDepartAt,
			AvoidHighways:    rt.AvoidHighways,
			AvoidTolls:       rt.AvoidTolls,
			Trips:            make([]dto.TripResponse, 0, rt.TripCount()),
			CapacityWarnings: warnings,
		}
		for trip := 1; trip <= rt.TripCount(); trip++ {
			tr := dto.TripResponse{TripNumber: trip, DepartAt: rt.DepartureFor(trip), Passengers: []dto.PassengerResponse{}}
			for i, id := range l.Leg(rt.ID, trip) {
				tr.Passengers = append(tr.Passengers, passengerResponse(domain.Passenger{
					RouteID: rt.ID, AttendeeID: id, TripNumber: trip, OrderIndex: i,
				}, byID))
			}
			rr.Trips = append(rr.Trips, tr)
		}
		res.Routes = append(res.Routes, rr)
	}
	return res
}

func passengerResponse(p domain.Passenger, byID map[uuid.UUID]domain.Attendee) dto.PassengerResponse {
	pr := dto.PassengerResponse{AttendeeID: p.AttendeeID, TripNumber: p.TripNumber, OrderIndex: p.OrderIndex}
	if a, ok := byID[p.AttendeeID]; ok {
		pr.DisplayName = a.DisplayName
		pr.Destination = a.Destination
	}
	return pr
}

func attendeeResponses(l *domain.PickupLedger, attendees []domain.Attendee) []dto.AttendeeResponse {
	out := make([]dto.AttendeeResponse, 0, len(attendees))
	for _, a := range attendees {
		ar := dto.AttendeeResponse{
			ID:          a.ProfileID,
			DisplayName: a.DisplayName,
			Destination: a.Destination,
			ClockInAt:   a.ClockInAt,
			Eligible:    a.Eligible(),
		}
		if routeID, ok := l.FindExistingAssignment(a.ProfileID); ok {
			ar.RouteID = &routeID
		}
		out = append(out, ar)
	}
	return out
}

func planResponse(p *domain.LegPlan) dto.PlanResponse {
	stops := make([]dto.PlanStopResponse, 0, len(p.Stops))
	for _, s := range p.Stops {
		stops = append(stops, dto.PlanStopResponse{
			Destination: s.Destination,
			ArriveAt:    s.ArriveAt,
			AttendeeIDs: s.AttendeeIDs,
		})
	}

	return dto.PlanResponse{
		RouteID:              p.RouteID,
		TripNumber:           p.TripNumber,
		DepartAt:             p.DepartAt,
		TotalDistanceMeters:  p.TotalDistanceMeters,
		TotalDurationSeconds: p.TotalDurationSeconds,
		Stops:                stops,
	}
}

func suggestionDTO(s domain.Suggestion) dto.SuggestionDTO {
	return dto.SuggestionDTO{AttendeeID: s.AttendeeID, RouteID: s.RouteID, TripNumber: s.TripNumber, Reason: s.Reason}
}

func suggestionDTOs(in []domain.Suggestion) []dto.SuggestionDTO {
	out := make([]dto.SuggestionDTO, 0, len(in))
	for _, s := range in {
		out = append(out, suggestionDTO(s))
	}
	return out
}

func applyResponse(report services.ApplyReport, l *domain.PickupLedger) dto.ApplySuggestionsResponse {
	res := dto.ApplySuggestionsResponse{
		Applied:   suggestionDTOs(report.Applied),
		Conflicts: make([]dto.ApplyConflictResponse, 0, len(report.Conflicts)),
		Rejected:  make([]dto.ApplyRejectionResponse, 0, len(report.Rejected)),
		Ledger:    ledgerResponse(l, nil),
	}
	for _, c := range report.Conflicts {
		res.Conflicts = append(res.Conflicts, dto.ApplyConflictResponse{Suggestion: suggestionDTO(c.Suggestion), ConflictingRouteID: c.ConflictingRouteID})
	}
	for _, rj := range report.Rejected {
		res.Rejected = append(res.Rejected, dto.ApplyRejectionResponse{Suggestion: suggestionDTO(rj.Suggestion), Reason: rj.Reason})
	}
	return res
}
