package services

import (
	"context"
	"slices"
	"time"

	"venue-pickup-service/internal/domain"
	"venue-pickup-service/internal/platform/obs"
	"venue-pickup-service/internal/ports"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

var (
	// ErrAttendeeNotEligible rejects placing someone who is not working that business
	// date or has no destination to be dropped at.
	ErrAttendeeNotEligible = errors.New("attendee is not eligible for a pickup")
	// ErrPlanningUnavailable is returned by leg planning when no maps provider is configured.
	ErrPlanningUnavailable = errors.New("route planning is not configured")

	errNoChange = errors.New("ledger unchanged")
)

// Observer receives operation outcomes; platform/metrics.Collector satisfies it.
type Observer interface {
	LedgerOp(op string, err error, conflict bool)
	SuggestionObserve(source string, d time.Duration)
}

// Deps wires the service. Venues, Ledgers and Attendance are required; the rest
// are optional.
type Deps struct {
	Venues     ports.VenueRepository
	Ledgers    ports.LedgerRepository
	Attendance ports.AttendanceSource
	Distances  ports.DistanceProvider
	Suggester  ports.RouteSuggester
	Publisher  ports.ChangePublisher
	Metrics    Observer
	Now        func() time.Time
}

// PickupService runs every ledger operation as load, mutate, save, publish against
// the ledger of one venue and business date.
type PickupService struct {
	venues     ports.VenueRepository
	ledgers    ports.LedgerRepository
	attendance ports.AttendanceSource
	distances  ports.DistanceProvider
	suggester  ports.RouteSuggester
	fallback   ports.RouteSuggester
	publisher  ports.ChangePublisher
	metrics    Observer
	now        func() time.Time
}

func NewPickupService(d Deps) (*PickupService, error) {
	if d.Venues == nil || d.Ledgers == nil || d.Attendance == nil {
		return nil, errors.New("pickup service: venues, ledgers and attendance are required")
	}
	if d.Now == nil {
		d.Now = time.Now
	}

	return &PickupService{
		venues:     d.Venues,
		ledgers:    d.Ledgers,
		attendance: d.Attendance,
		distances:  d.Distances,
		suggester:  d.Suggester,
		fallback:   &DistanceBandSuggester{Distances: d.Distances},
		publisher:  d.Publisher,
		metrics:    d.Metrics,
		now:        d.Now,
	}, nil
}

// Scope selects a ledger. A zero Date means the venue's current business date.
type Scope struct {
	VenueID uuid.UUID
	Date    domain.BusinessDate
}

func (s *PickupService) day(ctx context.Context, sc Scope) (domain.Venue, domain.BusinessDate, error) {
	v, err := s.venues.GetVenue(ctx, sc.VenueID)
	if err != nil {
		return domain.Venue{}, domain.BusinessDate{}, errors.Wrap(err, "get venue")
	}

	date := sc.Date
	if date.IsZero() {
		date = v.ResolveBusinessDate(s.now())
	}
	return v, date, nil
}

// attendees lists who works on date, reading the rows of both calendar dates the
// business date touches.
func (s *PickupService) attendees(ctx context.Context, v domain.Venue, date domain.BusinessDate) ([]domain.Attendee, error) {
	records, err := s.attendance.ListAttendance(ctx, v.ID, date.Span())
	if err != nil {
		return nil, errors.Wrap(err, "list attendance")
	}
	return domain.AttendeesForBusinessDate(records, date, v.DaySwitch, v.Location), nil
}

func (s *PickupService) requireEligible(
	ctx context.Context,
	v domain.Venue,
	date domain.BusinessDate,
	attendeeID uuid.UUID,
) error {
	attendees, err := s.attendees(ctx, v, date)
	if err != nil {
		return err
	}
	for _, a := range attendees {
		if a.ProfileID == attendeeID && a.Eligible() {
			return nil
		}
	}
	return errors.Wrapf(ErrAttendeeNotEligible, "attendee %s on %s", attendeeID, date)
}

type mutation func(ctx context.Context, v domain.Venue, l *domain.PickupLedger) (domain.LedgerChange, error)

// mutate loads the scoped ledger, applies fn, saves, and publishes the change. A
// publish failure is logged and does not fail the operation. When fn reports
// errNoChange nothing is saved.
func (s *PickupService) mutate(ctx context.Context, sc Scope, op string, fn mutation) (_ *domain.PickupLedger, err error) {
	defer obs.Time(ctx, "pickup."+op)(&err)
	defer func() { s.observeOp(op, err) }()

	v, date, err := s.day(ctx, sc)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}

	l, err := s.ledgers.LoadLedger(ctx, v.ID, date)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: load ledger", op)
	}

	change, err := fn(ctx, v, l)
	if errors.Is(err, errNoChange) {
		return l, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, op)
	}

	if err := s.ledgers.SaveLedger(ctx, l); err != nil {
		return nil, errors.Wrapf(err, "%s: save ledger", op)
	}

	change.VenueID = v.ID
	change.BusinessDate = date
	change.Operation = op
	change.Version = l.Version
	s.publish(ctx, change)

	return l, nil
}

func (s *PickupService) publish(ctx context.Context, change domain.LedgerChange) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishLedgerChange(ctx, change); err != nil {
		obs.Logger(ctx).WithError(err).WithField("op", change.Operation).Warn("publish ledger change")
	}
}

func (s *PickupService) observeOp(op string, err error) {
	if s.metrics == nil {
		return
	}
	conflict := errors.Is(err, domain.KindAlreadyAssignedElsewhere) || errors.Is(err, ports.ErrLedgerConflict)
	s.metrics.LedgerOp(op, err, conflict)
}

func (s *PickupService) observeSuggestion(source string, d time.Duration) {
	if s.metrics != nil {
		s.metrics.SuggestionObserve(source, d)
	}
}

// BusinessDay describes which business date an instant belongs to at a venue.
type BusinessDay struct {
	Venue       domain.Venue
	At          time.Time
	Date        domain.BusinessDate
	Span        domain.CalendarSpan
	WindowStart time.Time
	WindowEnd   time.Time
}

// ResolveBusinessDate resolves at, or the current instant when at is zero, against
// the venue's timezone and day switch.
func (s *PickupService) ResolveBusinessDate(ctx context.Context, venueID uuid.UUID, at time.Time) (BusinessDay, error) {
	v, err := s.venues.GetVenue(ctx, venueID)
	if err != nil {
		return BusinessDay{}, errors.Wrap(err, "get venue")
	}
	if at.IsZero() {
		at = s.now()
	}

	if v.Location != nil {
		at = at.In(v.Location)
	}

	date := v.ResolveBusinessDate(at)
	start, end := date.Window(v.DaySwitch, v.Location)
	return BusinessDay{Venue: v, At: at, Date: date, Span: date.Span(), WindowStart: start, WindowEnd: end}, nil
}

// Board is the staff view of one business date.
type Board struct {
	Venue      domain.Venue
	Date       domain.BusinessDate
	Ledger     *domain.PickupLedger
	Attendees  []domain.Attendee
	Unassigned []domain.Attendee
	// Warnings lists the overloaded trips per route.
	Warnings map[uuid.UUID][]int
}

func (s *PickupService) Board(ctx context.Context, sc Scope) (_ *Board, err error) {
	defer obs.Time(ctx, "pickup.board")(&err)

	v, date, err := s.day(ctx, sc)
	if err != nil {
		return nil, err
	}
	l, err := s.ledgers.LoadLedger(ctx, v.ID, date)
	if err != nil {
		return nil, errors.Wrap(err, "board: load ledger")
	}
	attendees, err := s.attendees(ctx, v, date)
	if err != nil {
		return nil, errors.Wrap(err, "board")
	}

	warnings := make(map[uuid.UUID][]int)
	for _, rt := range l.Routes() {
		trips, err := l.CapacityWarnings(rt.ID)
		if err != nil {
			return nil, errors.Wrap(err, "board: capacity warnings")
		}
		if len(trips) > 0 {
			warnings[rt.ID] = trips
		}
	}

	return &Board{
		Venue:      v,
		Date:       date,
		Ledger:     l,
		Attendees:  attendees,
		Unassigned: l.Unassigned(attendees),
		Warnings:   warnings,
	}, nil
}

// CreateRoute adds a route to the day. A missing ID is generated.
func (s *PickupService) CreateRoute(ctx context.Context, sc Scope, rt domain.Route) (domain.Route, *domain.PickupLedger, error) {
	if rt.ID == uuid.Nil {
		rt.ID = uuid.New()
	}
	rt.CreatedAt = s.now().UTC()

	l, err := s.mutate(ctx, sc, "create_route", func(_ context.Context, _ domain.Venue, l *domain.PickupLedger) (domain.LedgerChange, error) {
		return domain.LedgerChange{RouteID: rt.ID}, l.AddRoute(rt)
	})
	if err != nil {
		return domain.Route{}, nil, err
	}

	created, _ := l.Route(rt.ID)
	return created, l, nil
}

// UpdateRoute replaces a route's attributes and returns the passengers dropped from
// legs that no longer exist.
func (s *PickupService) UpdateRoute(ctx context.Context, sc Scope, rt domain.Route) ([]domain.Passenger, *domain.PickupLedger, error) {
	var dropped []domain.Passenger
	l, err := s.mutate(ctx, sc, "update_route", func(_ context.Context, _ domain.Venue, l *domain.PickupLedger) (domain.LedgerChange, error) {
		var err error
		dropped, err = l.UpdateRoute(rt)
		return domain.LedgerChange{RouteID: rt.ID}, err
	})
	if err != nil {
		return nil, nil, err
	}
	return dropped, l, nil
}

func (s *PickupService) DeleteRoute(ctx context.Context, sc Scope, routeID uuid.UUID) (*domain.PickupLedger, error) {
	return s.mutate(ctx, sc, "delete_route", func(_ context.Context, _ domain.Venue, l *domain.PickupLedger) (domain.LedgerChange, error) {
		return domain.LedgerChange{RouteID: routeID}, l.DeleteRoute(routeID)
	})
}

// AddPassenger places an attendee at the end of a leg. An attendee already riding
// another route is rejected with domain.KindAlreadyAssignedElsewhere.
func (s *PickupService) AddPassenger(
	ctx context.Context,
	sc Scope,
	routeID, attendeeID uuid.UUID,
	trip int,
) (*domain.PickupLedger, error) {
	return s.mutate(ctx, sc, "add_passenger", func(ctx context.Context, v domain.Venue, l *domain.PickupLedger) (domain.LedgerChange, error) {
		change := domain.LedgerChange{RouteID: routeID, AttendeeID: attendeeID}
		present := slices.Contains(l.Leg(routeID, trip), attendeeID)

		if err := l.AddPassenger(routeID, attendeeID, trip); err != nil {
			return change, err
		}
		if present {
			return change, errNoChange
		}
		return change, s.requireEligible(ctx, v, l.BusinessDate, attendeeID)
	})
}

func (s *PickupService) RemovePassenger(ctx context.Context, sc Scope, routeID, attendeeID uuid.UUID) (*domain.PickupLedger, error) {
	return s.mutate(ctx, sc, "remove_passenger", func(_ context.Context, _ domain.Venue, l *domain.PickupLedger) (domain.LedgerChange, error) {
		return domain.LedgerChange{RouteID: routeID, AttendeeID: attendeeID}, l.RemovePassenger(routeID, attendeeID)
	})
}

// MoveAttendee is the confirmed form of AddPassenger: the attendee leaves any other
// route first.
func (s *PickupService) MoveAttendee(
	ctx context.Context,
	sc Scope,
	attendeeID, toRouteID uuid.UUID,
	toTrip int,
) (*domain.PickupLedger, error) {
	return s.mutate(ctx, sc, "move_attendee", func(ctx context.Context, v domain.Venue, l *domain.PickupLedger) (domain.LedgerChange, error) {
		change := domain.LedgerChange{RouteID: toRouteID, AttendeeID: attendeeID}
		_, riding := l.FindExistingAssignment(attendeeID)

		if err := l.MoveAttendee(attendeeID, toRouteID, toTrip); err != nil {
			return change, err
		}
		if riding {
			return change, nil
		}
		return change, s.requireEligible(ctx, v, l.BusinessDate, attendeeID)
	})
}

func (s *PickupService) Reorder(
	ctx context.Context,
	sc Scope,
	routeID uuid.UUID,
	trip int,
	ids []uuid.UUID,
) (*domain.PickupLedger, error) {
	return s.mutate(ctx, sc, "reorder", func(_ context.Context, _ domain.Venue, l *domain.PickupLedger) (domain.LedgerChange, error) {
		return domain.LedgerChange{RouteID: routeID}, l.Reorder(routeID, trip, ids)
	})
}

func (s *PickupService) MoveOneStep(
	ctx context.Context,
	sc Scope,
	routeID uuid.UUID,
	trip int,
	attendeeID uuid.UUID,
	dir domain.Direction,
) (*domain.PickupLedger, error) {
	return s.mutate(ctx, sc, "move_one_step", func(_ context.Context, _ domain.Venue, l *domain.PickupLedger) (domain.LedgerChange, error) {
		return domain.LedgerChange{RouteID: routeID, AttendeeID: attendeeID}, l.MoveOneStep(routeID, trip, attendeeID, dir)
	})
}

// FindAssignment reports the route the attendee rides on the scoped day.
func (s *PickupService) FindAssignment(ctx context.Context, sc Scope, attendeeID uuid.UUID) (uuid.UUID, bool, error) {
	v, date, err := s.day(ctx, sc)
	if err != nil {
		return uuid.Nil, false, err
	}
	l, err := s.ledgers.LoadLedger(ctx, v.ID, date)
	if err != nil {
		return uuid.Nil, false, errors.Wrap(err, "find assignment: load ledger")
	}

	routeID, ok := l.FindExistingAssignment(attendeeID)
	return routeID, ok, nil
}

func (s *PickupService) CapacityWarnings(ctx context.Context, sc Scope, routeID uuid.UUID) ([]int, error) {
	v, date, err := s.day(ctx, sc)
	if err != nil {
		return nil, err
	}
	l, err := s.ledgers.LoadLedger(ctx, v.ID, date)
	if err != nil {
		return nil, errors.Wrap(err, "capacity warnings: load ledger")
	}
	return l.CapacityWarnings(routeID)
}
