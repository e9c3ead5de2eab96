package services

import (
	"context"
	"slices"
	"strings"
	"time"

	"venue-pickup-service/internal/domain"
	"venue-pickup-service/internal/platform/obs"
	"venue-pickup-service/internal/ports"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

type legInput struct {
	route        domain.Route
	leg          []uuid.UUID
	destinations map[uuid.UUID]string
	table        DistanceTable
}

// legInputs gathers what planning a leg needs: the route, its attendees in order,
// their destinations, and the travel table from the venue.
func (s *PickupService) legInputs(
	ctx context.Context,
	v domain.Venue,
	l *domain.PickupLedger,
	routeID uuid.UUID,
	trip int,
) (*legInput, error) {
	if s.distances == nil {
		return nil, ErrPlanningUnavailable
	}

	rt, ok := l.Route(routeID)
	if !ok {
		return nil, &domain.AssignmentError{Kind: domain.KindRouteNotFound, RouteID: routeID, TripNumber: trip}
	}
	if !rt.HasTrip(trip) {
		return nil, &domain.AssignmentError{Kind: domain.KindTripNumberOutOfRange, RouteID: routeID, TripNumber: trip}
	}

	attendees, err := s.attendees(ctx, v, l.BusinessDate)
	if err != nil {
		return nil, err
	}
	destinations := make(map[uuid.UUID]string, len(attendees))
	for _, a := range attendees {
		if a.Eligible() {
			destinations[a.ProfileID] = strings.TrimSpace(*a.Destination)
		}
	}

	leg := l.Leg(routeID, trip)
	var unique []string
	for _, id := range leg {
		if d, ok := destinations[id]; ok && !slices.Contains(unique, d) {
			unique = append(unique, d)
		}
	}

	opts := ports.RouteOptions{AvoidHighways: rt.AvoidHighways, AvoidTolls: rt.AvoidTolls}
	table, err := FetchDistanceTable(ctx, s.distances, v.Address, unique, opts)
	if err != nil {
		return nil, err
	}

	return &legInput{route: rt, leg: leg, destinations: destinations, table: table}, nil
}

func (s *PickupService) planLeg(
	ctx context.Context,
	sc Scope,
	routeID uuid.UUID,
	trip int,
	op string,
	plan func(domain.Route, int, string, []uuid.UUID, map[uuid.UUID]string, DistanceTable) (*domain.LegPlan, error),
) (_ *domain.LegPlan, err error) {
	defer obs.Time(ctx, "pickup."+op)(&err)

	v, date, err := s.day(ctx, sc)
	if err != nil {
		return nil, err
	}
	l, err := s.ledgers.LoadLedger(ctx, v.ID, date)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: load ledger", op)
	}

	in, err := s.legInputs(ctx, v, l, routeID, trip)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	return plan(in.route, trip, v.Address, in.leg, in.destinations, in.table)
}

// PlanLeg proposes a drop-off order for the leg without changing it.
func (s *PickupService) PlanLeg(ctx context.Context, sc Scope, routeID uuid.UUID, trip int) (*domain.LegPlan, error) {
	return s.planLeg(ctx, sc, routeID, trip, "plan_leg", PlanLeg)
}

// TimeLeg estimates arrival times for the leg in its current order.
func (s *PickupService) TimeLeg(ctx context.Context, sc Scope, routeID uuid.UUID, trip int) (*domain.LegPlan, error) {
	return s.planLeg(ctx, sc, routeID, trip, "time_leg", TimeLeg)
}

// OptimizeLeg plans the leg and applies the planned order through Reorder.
func (s *PickupService) OptimizeLeg(
	ctx context.Context,
	sc Scope,
	routeID uuid.UUID,
	trip int,
) (*domain.LegPlan, *domain.PickupLedger, error) {
	var plan *domain.LegPlan
	l, err := s.mutate(ctx, sc, "optimize_leg", func(ctx context.Context, v domain.Venue, l *domain.PickupLedger) (domain.LedgerChange, error) {
		change := domain.LedgerChange{RouteID: routeID}

		in, err := s.legInputs(ctx, v, l, routeID, trip)
		if err != nil {
			return change, err
		}
		plan, err = PlanLeg(in.route, trip, v.Address, in.leg, in.destinations, in.table)
		if err != nil {
			return change, err
		}

		order := plan.Order()
		if slices.Equal(order, in.leg) {
			return change, errNoChange
		}
		return change, l.Reorder(routeID, trip, order)
	})
	if err != nil {
		return nil, nil, err
	}
	return plan, l, nil
}

const (
	SourceLLM           = "llm"
	SourceDistanceBands = "distance_bands"
	SourceNone          = "none"
)

// Suggest proposes placements for the attendees still waiting for a ride. The
// configured suggester is tried first; when it fails or is absent the distance band
// heuristic answers. The returned source names which one did.
func (s *PickupService) Suggest(ctx context.Context, sc Scope) (_ []domain.Suggestion, _ string, err error) {
	defer obs.Time(ctx, "pickup.suggest")(&err)

	v, date, err := s.day(ctx, sc)
	if err != nil {
		return nil, "", err
	}
	l, err := s.ledgers.LoadLedger(ctx, v.ID, date)
	if err != nil {
		return nil, "", errors.Wrap(err, "suggest: load ledger")
	}
	attendees, err := s.attendees(ctx, v, date)
	if err != nil {
		return nil, "", errors.Wrap(err, "suggest")
	}

	req := ports.SuggestionRequest{
		Venue:      v,
		Date:       date,
		Routes:     l.Routes(),
		Passengers: l.AllPassengers(),
		Attendees:  l.Unassigned(attendees),
	}
	if len(req.Routes) == 0 || len(req.Attendees) == 0 {
		return []domain.Suggestion{}, SourceNone, nil
	}

	if s.suggester != nil {
		start := time.Now()
		out, err := s.suggester.Suggest(ctx, req)
		s.observeSuggestion(SourceLLM, time.Since(start))
		if err == nil {
			return filterSuggestions(req, out), SourceLLM, nil
		}
		obs.Logger(ctx).WithError(err).Warn("suggester failed, falling back to distance bands")
	}

	start := time.Now()
	out, err := s.fallback.Suggest(ctx, req)
	s.observeSuggestion(SourceDistanceBands, time.Since(start))
	if err != nil {
		return nil, "", errors.Wrap(err, "suggest")
	}
	return filterSuggestions(req, out), SourceDistanceBands, nil
}

// filterSuggestions keeps suggestions for waiting attendees on existing legs, one per
// attendee.
func filterSuggestions(req ports.SuggestionRequest, in []domain.Suggestion) []domain.Suggestion {
	waiting := make(map[uuid.UUID]bool, len(req.Attendees))
	for _, a := range req.Attendees {
		waiting[a.ProfileID] = true
	}
	routes := make(map[uuid.UUID]domain.Route, len(req.Routes))
	for _, rt := range req.Routes {
		routes[rt.ID] = rt
	}

	out := make([]domain.Suggestion, 0, len(in))
	for _, sg := range in {
		rt, ok := routes[sg.RouteID]
		if !ok || !waiting[sg.AttendeeID] || !rt.HasTrip(sg.TripNumber) {
			continue
		}
		waiting[sg.AttendeeID] = false
		out = append(out, sg)
	}
	return out
}

type ApplyConflict struct {
	Suggestion         domain.Suggestion
	ConflictingRouteID uuid.UUID
}

type ApplyRejection struct {
	Suggestion domain.Suggestion
	Reason     string
}

// ApplyReport lists what happened to each suggestion handed to ApplySuggestions.
type ApplyReport struct {
	Applied   []domain.Suggestion
	Conflicts []ApplyConflict
	Rejected  []ApplyRejection
}

// ApplySuggestions places each suggested attendee in one save. Attendees already
// riding another route are only moved when confirmMoves is set; otherwise they are
// reported as conflicts for the user to confirm.
func (s *PickupService) ApplySuggestions(
	ctx context.Context,
	sc Scope,
	suggestions []domain.Suggestion,
	confirmMoves bool,
) (ApplyReport, *domain.PickupLedger, error) {
	var report ApplyReport

	l, err := s.mutate(ctx, sc, "apply_suggestions", func(ctx context.Context, v domain.Venue, l *domain.PickupLedger) (domain.LedgerChange, error) {
		report = ApplyReport{}

		attendees, err := s.attendees(ctx, v, l.BusinessDate)
		if err != nil {
			return domain.LedgerChange{}, err
		}
		eligible := make(map[uuid.UUID]bool, len(attendees))
		for _, a := range attendees {
			eligible[a.ProfileID] = a.Eligible()
		}

		for _, sg := range suggestions {
			if !eligible[sg.AttendeeID] {
				report.Rejected = append(report.Rejected, ApplyRejection{Suggestion: sg, Reason: ErrAttendeeNotEligible.Error()})
				continue
			}

			current, riding := l.FindExistingAssignment(sg.AttendeeID)
			if riding && current != sg.RouteID && !confirmMoves {
				report.Conflicts = append(report.Conflicts, ApplyConflict{Suggestion: sg, ConflictingRouteID: current})
				continue
			}

			var err error
			if riding && current != sg.RouteID {
				err = l.MoveAttendee(sg.AttendeeID, sg.RouteID, sg.TripNumber)
			} else {
				err = l.AddPassenger(sg.RouteID, sg.AttendeeID, sg.TripNumber)
			}
			if err != nil {
				report.Rejected = append(report.Rejected, ApplyRejection{Suggestion: sg, Reason: err.Error()})
				continue
			}
			report.Applied = append(report.Applied, sg)
		}

		if len(report.Applied) == 0 {
			return domain.LedgerChange{}, errNoChange
		}
		return domain.LedgerChange{}, nil
	})
	if err != nil {
		return ApplyReport{}, nil, err
	}
	return report, l, nil
}
