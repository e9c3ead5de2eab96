package repositories

import (
	"context"
	"database/sql"
	"time"

	"venue-pickup-service/internal/domain"
	"venue-pickup-service/internal/platform/obs"
	"venue-pickup-service/internal/ports"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// Postgres-backed implementation of the VenueRepository and AttendanceSource ports.
type PostgresVenueRepository struct{ DB *sql.DB }

func NewPostgresVenueRepository(db *sql.DB) *PostgresVenueRepository {
	return &PostgresVenueRepository{DB: db}
}

func (r *PostgresVenueRepository) GetVenue(ctx context.Context, venueID uuid.UUID) (_ domain.Venue, err error) {
	defer obs.Time(ctx, "venue.Get")(&err)

	var (
		v         domain.Venue
		tz        string
		daySwitch string
	)
	err = r.DB.QueryRowContext(ctx, `
	SELECT id, name, address, timezone, day_switch_time::text
	FROM venues
	WHERE id = $1;
	`, venueID).Scan(&v.ID, &v.Name, &v.Address, &tz, &daySwitch)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Venue{}, ports.ErrVenueNotFound
	}
	if err != nil {
		return domain.Venue{}, errors.Wrapf(err, "get venue %s", venueID)
	}

	if v.Location, err = time.LoadLocation(tz); err != nil {
		return domain.Venue{}, errors.Wrapf(err, "get venue %s: timezone", venueID)
	}
	if v.DaySwitch, err = domain.ParseDaySwitchBoundary(daySwitch); err != nil {
		return domain.Venue{}, errors.Wrapf(err, "get venue %s: day switch", venueID)
	}

	return v, nil
}

// ListAttendance returns the rows filed under the span's calendar dates. A row
// without its own destination falls back to the profile's default.
func (r *PostgresVenueRepository) ListAttendance(
	ctx context.Context,
	venueID uuid.UUID,
	span domain.CalendarSpan,
) (_ []domain.AttendanceRecord, err error) {
	defer obs.Time(ctx, "attendance.List")(&err)

	rows, err := r.DB.QueryContext(ctx, `
	SELECT
		a.id,
		a.cast_profile_id,
		p.display_name,
		a.work_date,
		a.clock_in_at,
		COALESCE(a.destination, p.default_destination)
	FROM attendance_records a
	JOIN cast_profiles p ON p.id = a.cast_profile_id
	WHERE a.venue_id = $1
		AND a.work_date BETWEEN $2 AND $3
	ORDER BY a.clock_in_at NULLS LAST, a.id;
	`, venueID, span.Start.Time(), span.End.Time())
	if err != nil {
		return nil, errors.Wrap(err, "list attendance: query attendance_records table")
	}
	defer rows.Close()

	out := make([]domain.AttendanceRecord, 0, 32)
	for rows.Next() {
		var (
			rec       domain.AttendanceRecord
			workDate  time.Time
			clockInAt sql.NullTime
			dest      sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.AttendeeID, &rec.DisplayName, &workDate, &clockInAt, &dest); err != nil {
			return nil, errors.Wrap(err, "list attendance: scan row")
		}

		rec.VenueID = venueID
		rec.WorkDate = domain.BusinessDateOf(workDate)
		if clockInAt.Valid {
			t := clockInAt.Time
			rec.ClockInAt = &t
		}
		if dest.Valid {
			d := dest.String
			rec.Destination = &d
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "list attendance: row iteration")
	}

	return out, nil
}
