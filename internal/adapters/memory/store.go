package memory

import (
	"context"
	"sync"

	"venue-pickup-service/internal/domain"
	"venue-pickup-service/internal/ports"

	"github.com/google/uuid"
)

type ledgerKey struct {
	venue uuid.UUID
	date  domain.BusinessDate
}

type snapshot struct {
	version    int64
	routes     []domain.Route
	passengers []domain.Passenger
}

// Store keeps venues, attendance rows and ledger snapshots in process memory.
// Ledgers are copied on load and save so callers never share state.
type Store struct {
	mu         sync.RWMutex
	venues     map[uuid.UUID]domain.Venue
	attendance map[uuid.UUID][]domain.AttendanceRecord
	ledgers    map[ledgerKey]snapshot
}

func NewStore() *Store {
	return &Store{
		venues:     make(map[uuid.UUID]domain.Venue),
		attendance: make(map[uuid.UUID][]domain.AttendanceRecord),
		ledgers:    make(map[ledgerKey]snapshot),
	}
}

func (s *Store) PutVenue(v domain.Venue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.venues[v.ID] = v
}

func (s *Store) AddAttendance(records ...domain.AttendanceRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.attendance[r.VenueID] = append(s.attendance[r.VenueID], r)
	}
}

func (s *Store) GetVenue(_ context.Context, venueID uuid.UUID) (domain.Venue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.venues[venueID]
	if !ok {
		return domain.Venue{}, ports.ErrVenueNotFound
	}
	return v, nil
}

func (s *Store) ListAttendance(_ context.Context, venueID uuid.UUID, span domain.CalendarSpan) ([]domain.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.AttendanceRecord
	for _, r := range s.attendance[venueID] {
		if r.WorkDate.Before(span.Start) || r.WorkDate.After(span.End) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) LoadLedger(_ context.Context, venueID uuid.UUID, date domain.BusinessDate) (*domain.PickupLedger, error) {
	s.mu.RLock()
	snap, ok := s.ledgers[ledgerKey{venue: venueID, date: date}]
	s.mu.RUnlock()

	if !ok {
		return domain.NewPickupLedger(venueID, date), nil
	}
	return domain.RestoreLedger(venueID, date, snap.version, snap.routes, snap.passengers)
}

func (s *Store) SaveLedger(_ context.Context, l *domain.PickupLedger) error {
	key := ledgerKey{venue: l.VenueID, date: l.BusinessDate}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ledgers[key].version != l.Version {
		return ports.ErrLedgerConflict
	}

	next := l.Version + 1
	s.ledgers[key] = snapshot{
		version:    next,
		routes:     l.Routes(),
		passengers: l.AllPassengers(),
	}
	l.Version = next
	return nil
}
