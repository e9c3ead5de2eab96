package ports

import (
	"context"

	"venue-pickup-service/internal/domain"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

var (
	ErrVenueNotFound = errors.New("venue not found")
	// ErrLedgerConflict is returned by SaveLedger when the stored version moved on
	// since the ledger was loaded.
	ErrLedgerConflict = errors.New("ledger was changed concurrently")
)

type VenueRepository interface {
	GetVenue(ctx context.Context, venueID uuid.UUID) (domain.Venue, error)
}

// LedgerRepository stores one PickupLedger per venue and business date.
type LedgerRepository interface {
	// LoadLedger returns the stored ledger, or an empty one at version 0.
	LoadLedger(ctx context.Context, venueID uuid.UUID, date domain.BusinessDate) (*domain.PickupLedger, error)
	// SaveLedger replaces the stored snapshot when its version still equals
	// l.Version, then advances l.Version.
	SaveLedger(ctx context.Context, l *domain.PickupLedger) error
}

// AttendanceSource reads attendance rows owned by the attendance subsystem.
type AttendanceSource interface {
	// ListAttendance returns every row filed under the calendar dates of span.
	ListAttendance(ctx context.Context, venueID uuid.UUID, span domain.CalendarSpan) ([]domain.AttendanceRecord, error)
}
