package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"venue-pickup-service/internal/adapters/maps"
	"venue-pickup-service/internal/adapters/memory"
	"venue-pickup-service/internal/domain"
	"venue-pickup-service/internal/ports"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var jst = time.FixedZone("JST", 9*60*60)

type recordingPublisher struct {
	mu      sync.Mutex
	changes []domain.LedgerChange
	err     error
}

func (p *recordingPublisher) PublishLedgerChange(_ context.Context, c domain.LedgerChange) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, c)
	return p.err
}

func (p *recordingPublisher) ops() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.changes))
	for _, c := range p.changes {
		out = append(out, c.Operation)
	}
	return out
}

type opRecord struct {
	op       string
	failed   bool
	conflict bool
}

type recordingObserver struct {
	mu      sync.Mutex
	ops     []opRecord
	sources []string
}

func (o *recordingObserver) LedgerOp(op string, err error, conflict bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ops = append(o.ops, opRecord{op: op, failed: err != nil, conflict: conflict})
}

func (o *recordingObserver) SuggestionObserve(source string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sources = append(o.sources, source)
}

type stubSuggester struct {
	out []domain.Suggestion
	err error
}

func (s stubSuggester) Suggest(context.Context, ports.SuggestionRequest) ([]domain.Suggestion, error) {
	return s.out, s.err
}

type fixture struct {
	svc       *PickupService
	store     *memory.Store
	publisher *recordingPublisher
	observer  *recordingObserver
	venue     domain.Venue
	day       domain.BusinessDate
	scope     Scope
	// a, b and c are headed to A, B and C; d has no destination.
	a, b, c, d uuid.UUID
}

func newFixture(t *testing.T, mutate func(*Deps)) *fixture {
	t.Helper()

	f := &fixture{
		store:     memory.NewStore(),
		publisher: &recordingPublisher{},
		observer:  &recordingObserver{},
		venue: domain.Venue{
			ID:        uuid.New(),
			Name:      "Club Luna",
			Address:   "HUB",
			Location:  jst,
			DaySwitch: domain.DefaultDaySwitchBoundary,
		},
		day: domain.BusinessDate{Year: 2026, Month: time.March, Day: 14},
		a:   uuid.New(), b: uuid.New(), c: uuid.New(), d: uuid.New(),
	}
	f.scope = Scope{VenueID: f.venue.ID, Date: f.day}
	f.store.PutVenue(f.venue)

	clockIn := func(h int) *time.Time {
		ts := time.Date(2026, 3, 14, h, 0, 0, 0, jst)
		return &ts
	}
	dest := func(s string) *string { return &s }
	f.store.AddAttendance(
		domain.AttendanceRecord{ID: uuid.New(), VenueID: f.venue.ID, AttendeeID: f.a, DisplayName: "Aoi", WorkDate: f.day, ClockInAt: clockIn(19), Destination: dest("A")},
		domain.AttendanceRecord{ID: uuid.New(), VenueID: f.venue.ID, AttendeeID: f.b, DisplayName: "Beni", WorkDate: f.day, ClockInAt: clockIn(20), Destination: dest("B")},
		domain.AttendanceRecord{ID: uuid.New(), VenueID: f.venue.ID, AttendeeID: f.c, DisplayName: "Chika", WorkDate: f.day, ClockInAt: clockIn(21), Destination: dest("C")},
		domain.AttendanceRecord{ID: uuid.New(), VenueID: f.venue.ID, AttendeeID: f.d, DisplayName: "Dai", WorkDate: f.day, ClockInAt: clockIn(22)},
	)

	deps := Deps{
		Venues:     f.store,
		Ledgers:    f.store,
		Attendance: f.store,
		Distances:  maps.NewMockDistanceProvider(hubPairs),
		Publisher:  f.publisher,
		Metrics:    f.observer,
		Now:        func() time.Time { return time.Date(2026, 3, 14, 23, 0, 0, 0, jst) },
	}
	if mutate != nil {
		mutate(&deps)
	}

	svc, err := NewPickupService(deps)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) route(t *testing.T, capacity, roundTrips int) domain.Route {
	t.Helper()
	rt, _, err := f.svc.CreateRoute(context.Background(), f.scope, domain.Route{
		Label:      "Van",
		Capacity:   capacity,
		RoundTrips: roundTrips,
		DepartAt:   time.Date(2026, 3, 15, 1, 0, 0, 0, jst),
	})
	require.NoError(t, err)
	return rt
}

func (f *fixture) ledger(t *testing.T) *domain.PickupLedger {
	t.Helper()
	l, err := f.store.LoadLedger(context.Background(), f.venue.ID, f.day)
	require.NoError(t, err)
	return l
}

func TestNewPickupServiceRequiresStorage(t *testing.T) {
	t.Parallel()
	_, err := NewPickupService(Deps{})
	require.Error(t, err)
}

func TestServiceAddConflictThenMove(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil)
	r1, r2 := f.route(t, 4, 0), f.route(t, 4, 0)

	require.Equal(t, f.venue.ID, r1.VenueID)
	require.Equal(t, f.day, r1.BusinessDate)
	require.False(t, r1.CreatedAt.IsZero())

	_, err := f.svc.AddPassenger(ctx, f.scope, r1.ID, f.a, 1)
	require.NoError(t, err)

	_, err = f.svc.AddPassenger(ctx, f.scope, r2.ID, f.a, 1)
	require.ErrorIs(t, err, domain.KindAlreadyAssignedElsewhere)
	conflicting, ok := domain.ConflictingRoute(err)
	require.True(t, ok)
	require.Equal(t, r1.ID, conflicting)

	l, err := f.svc.MoveAttendee(ctx, f.scope, f.a, r2.ID, 1)
	require.NoError(t, err)
	require.Empty(t, l.Leg(r1.ID, 1))
	require.Equal(t, []uuid.UUID{f.a}, l.Leg(r2.ID, 1))

	routeID, ok, err := f.svc.FindAssignment(ctx, f.scope, f.a)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, r2.ID, routeID)

	require.Equal(t, []string{"create_route", "create_route", "add_passenger", "move_attendee"}, f.publisher.ops())
	require.Equal(t, int64(4), f.ledger(t).Version)

	last := f.publisher.changes[3]
	require.Equal(t, f.venue.ID, last.VenueID)
	require.Equal(t, f.day, last.BusinessDate)
	require.Equal(t, f.a, last.AttendeeID)
	require.Equal(t, int64(4), last.Version)

	var conflicts int
	for _, o := range f.observer.ops {
		if o.conflict {
			conflicts++
			require.Equal(t, "add_passenger", o.op)
			require.True(t, o.failed)
		}
	}
	require.Equal(t, 1, conflicts)
}

func TestServiceAddPassengerValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil)
	rt := f.route(t, 4, 0)

	_, err := f.svc.AddPassenger(ctx, f.scope, rt.ID, f.d, 1)
	require.ErrorIs(t, err, ErrAttendeeNotEligible)

	_, err = f.svc.AddPassenger(ctx, f.scope, rt.ID, uuid.New(), 1)
	require.ErrorIs(t, err, ErrAttendeeNotEligible)

	_, err = f.svc.AddPassenger(ctx, f.scope, uuid.New(), f.a, 1)
	require.ErrorIs(t, err, domain.KindRouteNotFound)

	_, err = f.svc.AddPassenger(ctx, f.scope, rt.ID, f.a, 2)
	require.ErrorIs(t, err, domain.KindTripNumberOutOfRange)

	_, err = f.svc.AddPassenger(ctx, Scope{VenueID: uuid.New(), Date: f.day}, rt.ID, f.a, 1)
	require.ErrorIs(t, err, ports.ErrVenueNotFound)

	require.Empty(t, f.ledger(t).AllPassengers())
	require.Equal(t, int64(1), f.ledger(t).Version)
}

func TestServiceAddPassengerTwiceSavesOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil)
	rt := f.route(t, 4, 0)

	_, err := f.svc.AddPassenger(ctx, f.scope, rt.ID, f.a, 1)
	require.NoError(t, err)
	l, err := f.svc.AddPassenger(ctx, f.scope, rt.ID, f.a, 1)
	require.NoError(t, err)

	require.Equal(t, []uuid.UUID{f.a}, l.Leg(rt.ID, 1))
	require.Equal(t, int64(2), f.ledger(t).Version)
	require.Len(t, f.publisher.ops(), 2)
}

func TestServiceDefaultsToCurrentBusinessDate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, func(d *Deps) {
		// 03:00 on the 15th still belongs to the 14th.
		d.Now = func() time.Time { return time.Date(2026, 3, 15, 3, 0, 0, 0, jst) }
	})

	rt, _, err := f.svc.CreateRoute(ctx, Scope{VenueID: f.venue.ID}, domain.Route{Capacity: 2, DepartAt: time.Now()})
	require.NoError(t, err)
	require.Equal(t, f.day, rt.BusinessDate)

	board, err := f.svc.Board(ctx, f.scope)
	require.NoError(t, err)
	require.Len(t, board.Ledger.Routes(), 1)
}

func TestServiceResolveBusinessDate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil)

	bd, err := f.svc.ResolveBusinessDate(ctx, f.venue.ID, time.Date(2026, 3, 15, 4, 59, 0, 0, jst))
	require.NoError(t, err)
	require.Equal(t, f.day, bd.Date)
	require.Equal(t, f.day.Span(), bd.Span)
	require.Equal(t, time.Date(2026, 3, 14, 5, 0, 0, 0, jst), bd.WindowStart)
	require.Equal(t, time.Date(2026, 3, 15, 5, 0, 0, 0, jst), bd.WindowEnd)

	bd, err = f.svc.ResolveBusinessDate(ctx, f.venue.ID, time.Time{})
	require.NoError(t, err)
	require.Equal(t, f.day, bd.Date)

	_, err = f.svc.ResolveBusinessDate(ctx, uuid.New(), time.Time{})
	require.ErrorIs(t, err, ports.ErrVenueNotFound)
}

func TestServiceBoard(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil)
	rt := f.route(t, 1, 0)

	for _, id := range []uuid.UUID{f.a, f.b} {
		_, err := f.svc.AddPassenger(ctx, f.scope, rt.ID, id, 1)
		require.NoError(t, err)
	}

	board, err := f.svc.Board(ctx, f.scope)
	require.NoError(t, err)
	require.Equal(t, f.venue.ID, board.Venue.ID)
	require.Len(t, board.Attendees, 4)
	require.Len(t, board.Unassigned, 1)
	require.Equal(t, f.c, board.Unassigned[0].ProfileID)
	require.Equal(t, []int{1}, board.Warnings[rt.ID])

	warnings, err := f.svc.CapacityWarnings(ctx, f.scope, rt.ID)
	require.NoError(t, err)
	require.Equal(t, []int{1}, warnings)

	_, err = f.svc.CapacityWarnings(ctx, f.scope, uuid.New())
	require.ErrorIs(t, err, domain.KindRouteNotFound)
}

func TestServiceReorderAndStep(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil)
	rt := f.route(t, 4, 0)
	for _, id := range []uuid.UUID{f.a, f.b, f.c} {
		_, err := f.svc.AddPassenger(ctx, f.scope, rt.ID, id, 1)
		require.NoError(t, err)
	}

	l, err := f.svc.Reorder(ctx, f.scope, rt.ID, 1, []uuid.UUID{f.c, f.a, f.b})
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{f.c, f.a, f.b}, l.Leg(rt.ID, 1))

	_, err = f.svc.Reorder(ctx, f.scope, rt.ID, 1, []uuid.UUID{f.c, f.a})
	require.ErrorIs(t, err, domain.KindInvalidPermutation)

	l, err = f.svc.MoveOneStep(ctx, f.scope, rt.ID, 1, f.b, domain.Up)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{f.c, f.b, f.a}, l.Leg(rt.ID, 1))

	_, err = f.svc.MoveOneStep(ctx, f.scope, rt.ID, 1, f.d, domain.Down)
	require.ErrorIs(t, err, domain.KindPassengerNotFound)

	l, err = f.svc.RemovePassenger(ctx, f.scope, rt.ID, f.b)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{f.c, f.a}, l.Leg(rt.ID, 1))
	require.Equal(t, 1, l.Passengers(rt.ID)[1].OrderIndex)
}

func TestServiceUpdateAndDeleteRoute(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil)
	rt := f.route(t, 4, 1)

	_, err := f.svc.AddPassenger(ctx, f.scope, rt.ID, f.a, 2)
	require.NoError(t, err)
	_, err = f.svc.AddPassenger(ctx, f.scope, rt.ID, f.b, 1)
	require.NoError(t, err)

	rt.RoundTrips = 0
	rt.Label = "Sedan"
	dropped, l, err := f.svc.UpdateRoute(ctx, f.scope, rt)
	require.NoError(t, err)
	require.Len(t, dropped, 1)
	require.Equal(t, f.a, dropped[0].AttendeeID)
	updated, _ := l.Route(rt.ID)
	require.Equal(t, "Sedan", updated.Label)

	_, ok, err := f.svc.FindAssignment(ctx, f.scope, f.a)
	require.NoError(t, err)
	require.False(t, ok)

	l, err = f.svc.DeleteRoute(ctx, f.scope, rt.ID)
	require.NoError(t, err)
	require.Empty(t, l.Routes())
	_, ok, err = f.svc.FindAssignment(ctx, f.scope, f.b)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = f.svc.DeleteRoute(ctx, f.scope, rt.ID)
	require.ErrorIs(t, err, domain.KindRouteNotFound)
}

func TestServiceOptimizeLeg(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil)
	rt := f.route(t, 4, 0)
	for _, id := range []uuid.UUID{f.b, f.c, f.a} {
		_, err := f.svc.AddPassenger(ctx, f.scope, rt.ID, id, 1)
		require.NoError(t, err)
	}

	timed, err := f.svc.TimeLeg(ctx, f.scope, rt.ID, 1)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{f.b, f.c, f.a}, timed.Order())

	plan, l, err := f.svc.OptimizeLeg(ctx, f.scope, rt.ID, 1)
	require.NoError(t, err)
	require.Equal(t, 780, plan.TotalDurationSeconds)
	require.Equal(t, []uuid.UUID{f.a, f.c, f.b}, l.Leg(rt.ID, 1))
	version := f.ledger(t).Version

	_, _, err = f.svc.OptimizeLeg(ctx, f.scope, rt.ID, 1)
	require.NoError(t, err)
	require.Equal(t, version, f.ledger(t).Version)

	_, err = f.svc.PlanLeg(ctx, f.scope, rt.ID, 3)
	require.ErrorIs(t, err, domain.KindTripNumberOutOfRange)
}

func TestServicePlanningNeedsProvider(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(d *Deps) { d.Distances = nil })
	rt := f.route(t, 4, 0)

	_, err := f.svc.PlanLeg(context.Background(), f.scope, rt.ID, 1)
	require.ErrorIs(t, err, ErrPlanningUnavailable)
}

func TestServiceSuggestFallsBackToDistanceBands(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, func(d *Deps) { d.Suggester = stubSuggester{err: errors.New("model unavailable")} })

	got, source, err := f.svc.Suggest(ctx, f.scope)
	require.NoError(t, err)
	require.Equal(t, SourceNone, source)
	require.Empty(t, got)

	r1, r2 := f.route(t, 4, 0), f.route(t, 4, 0)
	got, source, err = f.svc.Suggest(ctx, f.scope)
	require.NoError(t, err)
	require.Equal(t, SourceDistanceBands, source)
	require.Len(t, got, 3)

	byAttendee := make(map[uuid.UUID]uuid.UUID)
	for _, sg := range got {
		byAttendee[sg.AttendeeID] = sg.RouteID
	}
	require.Equal(t, r1.ID, byAttendee[f.a])
	require.Equal(t, r1.ID, byAttendee[f.c])
	require.Equal(t, r2.ID, byAttendee[f.b])
	require.Equal(t, []string{SourceLLM, SourceDistanceBands}, f.observer.sources)
}

func TestServiceSuggestFiltersModelOutput(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var rtID uuid.UUID
	var f *fixture
	f = newFixture(t, func(d *Deps) {
		d.Suggester = suggesterFunc(func() []domain.Suggestion {
			return []domain.Suggestion{
				{AttendeeID: f.a, RouteID: rtID, TripNumber: 1},
				{AttendeeID: f.a, RouteID: rtID, TripNumber: 1},
				{AttendeeID: f.b, RouteID: uuid.New(), TripNumber: 1},
				{AttendeeID: f.c, RouteID: rtID, TripNumber: 2},
				{AttendeeID: f.d, RouteID: rtID, TripNumber: 1},
			}
		})
	})
	rtID = f.route(t, 4, 0).ID

	got, source, err := f.svc.Suggest(ctx, f.scope)
	require.NoError(t, err)
	require.Equal(t, SourceLLM, source)
	require.Len(t, got, 1)
	require.Equal(t, f.a, got[0].AttendeeID)
}

type suggesterFunc func() []domain.Suggestion

func (fn suggesterFunc) Suggest(context.Context, ports.SuggestionRequest) ([]domain.Suggestion, error) {
	return fn(), nil
}

func TestServiceApplySuggestions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil)
	r1, r2 := f.route(t, 4, 0), f.route(t, 4, 0)
	_, err := f.svc.AddPassenger(ctx, f.scope, r1.ID, f.a, 1)
	require.NoError(t, err)

	suggestions := []domain.Suggestion{
		{AttendeeID: f.a, RouteID: r2.ID, TripNumber: 1},
		{AttendeeID: f.b, RouteID: r2.ID, TripNumber: 1},
		{AttendeeID: f.c, RouteID: r2.ID, TripNumber: 5},
		{AttendeeID: f.d, RouteID: r2.ID, TripNumber: 1},
	}

	report, l, err := f.svc.ApplySuggestions(ctx, f.scope, suggestions, false)
	require.NoError(t, err)
	require.Len(t, report.Applied, 1)
	require.Equal(t, f.b, report.Applied[0].AttendeeID)
	require.Len(t, report.Conflicts, 1)
	require.Equal(t, r1.ID, report.Conflicts[0].ConflictingRouteID)
	require.Len(t, report.Rejected, 2)
	require.Equal(t, []uuid.UUID{f.a}, l.Leg(r1.ID, 1))

	report, l, err = f.svc.ApplySuggestions(ctx, f.scope, suggestions[:1], true)
	require.NoError(t, err)
	require.Len(t, report.Applied, 1)
	require.Empty(t, l.Leg(r1.ID, 1))
	require.Equal(t, []uuid.UUID{f.b, f.a}, l.Leg(r2.ID, 1))

	version := f.ledger(t).Version
	report, _, err = f.svc.ApplySuggestions(ctx, f.scope, suggestions[3:], true)
	require.NoError(t, err)
	require.Empty(t, report.Applied)
	require.Equal(t, version, f.ledger(t).Version)
}

func TestServicePublishFailureIsNotFatal(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.publisher.err = errors.New("nats down")

	rt := f.route(t, 4, 0)
	_, err := f.svc.AddPassenger(context.Background(), f.scope, rt.ID, f.a, 1)
	require.NoError(t, err)
	require.Len(t, f.ledger(t).AllPassengers(), 1)
}

// racingLedgers lets another writer save the same ledger right before each first save.
type racingLedgers struct {
	*memory.Store
	raced bool
}

func (r *racingLedgers) SaveLedger(ctx context.Context, l *domain.PickupLedger) error {
	if !r.raced {
		r.raced = true
		other, err := r.Store.LoadLedger(ctx, l.VenueID, l.BusinessDate)
		if err != nil {
			return err
		}
		if err := r.Store.SaveLedger(ctx, other); err != nil {
			return err
		}
	}
	return r.Store.SaveLedger(ctx, l)
}

func TestServiceStaleSaveConflicts(t *testing.T) {
	t.Parallel()
	var racing *racingLedgers
	f := newFixture(t, func(d *Deps) {
		racing = &racingLedgers{Store: d.Ledgers.(*memory.Store)}
		d.Ledgers = racing
	})

	_, _, err := f.svc.CreateRoute(context.Background(), f.scope, domain.Route{Capacity: 2})
	require.ErrorIs(t, err, ports.ErrLedgerConflict)
	require.Empty(t, f.publisher.ops())
	require.True(t, f.observer.ops[0].conflict)

	rt := f.route(t, 2, 0)
	require.Equal(t, int64(2), f.ledger(t).Version)
	require.NotEqual(t, uuid.Nil, rt.ID)
}
