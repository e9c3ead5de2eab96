package repositories

import (
	"context"
	"database/sql"

	"github.com/go-faster/errors"
)

// Initialize the Postgres schema. Statements are idempotent.
func InitSchema(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return errors.New("init schema: DB is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "init schema: begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	createVenuesQuery := `
	CREATE TABLE IF NOT EXISTS venues (
		id uuid PRIMARY KEY,
		name text NOT NULL,
		address text NOT NULL DEFAULT '',
		timezone text NOT NULL DEFAULT 'Asia/Tokyo',
		day_switch_time time NOT NULL DEFAULT '05:00'
	);
	`

	createCastProfilesQuery := `
	CREATE TABLE IF NOT EXISTS cast_profiles (
		id uuid PRIMARY KEY,
		venue_id uuid NOT NULL REFERENCES venues(id) ON DELETE CASCADE,
		display_name text NOT NULL,
		default_destination text
	);
	`

	createAttendanceQuery := `
	CREATE TABLE IF NOT EXISTS attendance_records (
		id uuid PRIMARY KEY,
		venue_id uuid NOT NULL REFERENCES venues(id) ON DELETE CASCADE,
		cast_profile_id uuid NOT NULL REFERENCES cast_profiles(id) ON DELETE CASCADE,
		work_date date NOT NULL,
		clock_in_at timestamptz,
		destination text
	);
	`

	createPickupDaysQuery := `
	CREATE TABLE IF NOT EXISTS pickup_days (
		venue_id uuid NOT NULL REFERENCES venues(id) ON DELETE CASCADE,
		business_date date NOT NULL,
		version bigint NOT NULL,
		updated_at timestamptz NOT NULL DEFAULT now(),
		PRIMARY KEY (venue_id, business_date)
	);
	`

	createRoutesQuery := `
	CREATE TABLE IF NOT EXISTS pickup_routes (
		id uuid PRIMARY KEY,
		venue_id uuid NOT NULL,
		business_date date NOT NULL,
		label text NOT NULL DEFAULT '',
		driver_id uuid,
		round_trips integer NOT NULL CHECK (round_trips >= 0),
		capacity integer NOT NULL CHECK (capacity > 0),
		depart_at timestamptz NOT NULL,
		return_depart_at timestamptz,
		avoid_highways boolean NOT NULL DEFAULT false,
		avoid_tolls boolean NOT NULL DEFAULT false,
		created_at timestamptz NOT NULL DEFAULT now(),
		FOREIGN KEY (venue_id, business_date)
			REFERENCES pickup_days(venue_id, business_date) ON DELETE CASCADE
	);
	`

	createPassengersQuery := `
	CREATE TABLE IF NOT EXISTS pickup_passengers (
		route_id uuid NOT NULL REFERENCES pickup_routes(id) ON DELETE CASCADE,
		trip_number integer NOT NULL CHECK (trip_number >= 1),
		cast_profile_id uuid NOT NULL,
		order_index integer NOT NULL CHECK (order_index >= 0),
		PRIMARY KEY (route_id, trip_number, cast_profile_id),
		UNIQUE (route_id, trip_number, order_index)
	);
	`

	// One row per attendee and day: the primary key rejects a second route.
	createAssignmentsQuery := `
	CREATE TABLE IF NOT EXISTS pickup_assignments (
		venue_id uuid NOT NULL,
		business_date date NOT NULL,
		cast_profile_id uuid NOT NULL,
		route_id uuid NOT NULL REFERENCES pickup_routes(id) ON DELETE CASCADE,
		PRIMARY KEY (venue_id, business_date, cast_profile_id)
	);
	`

	createDistanceCacheQuery := `
	CREATE TABLE IF NOT EXISTS distance_cache (
		origin text NOT NULL,
		destination text NOT NULL,
		options text NOT NULL DEFAULT 'default',
		distance_meters integer NOT NULL,
		duration_seconds integer NOT NULL,
		PRIMARY KEY (origin, destination, options)
	);
	`

	createGeocodeCacheQuery := `
	CREATE TABLE IF NOT EXISTS geocode_cache (
		address text PRIMARY KEY,
		lon double precision NOT NULL,
		lat double precision NOT NULL
	);
	`

	statements := []string{
		createVenuesQuery,
		createCastProfilesQuery,
		createAttendanceQuery,
		`CREATE INDEX IF NOT EXISTS idx_attendance_venue_work_date ON attendance_records(venue_id, work_date);`,
		createPickupDaysQuery,
		createRoutesQuery,
		`CREATE INDEX IF NOT EXISTS idx_pickup_routes_venue_date ON pickup_routes(venue_id, business_date);`,
		createPassengersQuery,
		createAssignmentsQuery,
		createDistanceCacheQuery,
		createGeocodeCacheQuery,
	}

	for i, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "init schema: exec statement #%d", i+1)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "init schema: commit tx")
	}

	return nil
}
