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
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// Postgres-backed implementation of the LedgerRepository port.
//
// A ledger is stored as one pickup_days row carrying the version, its routes, their
// passengers, and one pickup_assignments row per riding attendee.
type PostgresLedgerRepository struct{ DB *sql.DB }

func NewPostgresLedgerRepository(db *sql.DB) *PostgresLedgerRepository {
	return &PostgresLedgerRepository{DB: db}
}

func (r *PostgresLedgerRepository) LoadLedger(
	ctx context.Context,
	venueID uuid.UUID,
	date domain.BusinessDate,
) (_ *domain.PickupLedger, err error) {
	defer obs.Time(ctx, "ledger.Load")(&err)

	var version int64
	err = r.DB.QueryRowContext(ctx, `
	SELECT version FROM pickup_days WHERE venue_id = $1 AND business_date = $2;
	`, venueID, date.Time()).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewPickupLedger(venueID, date), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "load ledger: query pickup_days table")
	}

	routes, err := r.loadRoutes(ctx, venueID, date)
	if err != nil {
		return nil, err
	}
	passengers, err := r.loadPassengers(ctx, venueID, date)
	if err != nil {
		return nil, err
	}

	l, err := domain.RestoreLedger(venueID, date, version, routes, passengers)
	if err != nil {
		return nil, errors.Wrap(err, "load ledger")
	}
	return l, nil
}

func (r *PostgresLedgerRepository) loadRoutes(ctx context.Context, venueID uuid.UUID, date domain.BusinessDate) ([]domain.Route, error) {
	rows, err := r.DB.QueryContext(ctx, `
	SELECT
		id,
		label,
		driver_id,
		round_trips,
		capacity,
		depart_at,
		return_depart_at,
		avoid_highways,
		avoid_tolls,
		created_at
	FROM pickup_routes
	WHERE venue_id = $1 AND business_date = $2
	ORDER BY created_at, id;
	`, venueID, date.Time())
	if err != nil {
		return nil, errors.Wrap(err, "load ledger: query pickup_routes table")
	}
	defer rows.Close()

	var routes []domain.Route
	for rows.Next() {
		var (
			rt       = domain.Route{VenueID: venueID, BusinessDate: date}
			driverID uuid.NullUUID
			returnAt sql.NullTime
		)
		if err := rows.Scan(
			&rt.ID, &rt.Label, &driverID, &rt.RoundTrips, &rt.Capacity,
			&rt.DepartAt, &returnAt, &rt.AvoidHighways, &rt.AvoidTolls, &rt.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "load ledger: scan route")
		}
		if driverID.Valid {
			id := driverID.UUID
			rt.DriverID = &id
		}
		if returnAt.Valid {
			t := returnAt.Time
			rt.ReturnDepartAt = &t
		}
		routes = append(routes, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "load ledger: route iteration")
	}
	return routes, nil
}

func (r *PostgresLedgerRepository) loadPassengers(ctx context.Context, venueID uuid.UUID, date domain.BusinessDate) ([]domain.Passenger, error) {
	rows, err := r.DB.QueryContext(ctx, `
	SELECT p.route_id, p.cast_profile_id, p.trip_number, p.order_index
	FROM pickup_passengers p
	JOIN pickup_routes r ON r.id = p.route_id
	WHERE r.venue_id = $1 AND r.business_date = $2
	ORDER BY p.route_id, p.trip_number, p.order_index;
	`, venueID, date.Time())
	if err != nil {
		return nil, errors.Wrap(err, "load ledger: query pickup_passengers table")
	}
	defer rows.Close()

	var out []domain.Passenger
	for rows.Next() {
		var p domain.Passenger
		if err := rows.Scan(&p.RouteID, &p.AttendeeID, &p.TripNumber, &p.OrderIndex); err != nil {
			return nil, errors.Wrap(err, "load ledger: scan passenger")
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "load ledger: passenger iteration")
	}
	return out, nil
}

// SaveLedger replaces the stored snapshot in one transaction. It fails with
// ports.ErrLedgerConflict when another writer saved first.
func (r *PostgresLedgerRepository) SaveLedger(ctx context.Context, l *domain.PickupLedger) (err error) {
	defer obs.Time(ctx, "ledger.Save")(&err)

	day := l.BusinessDate.Time()

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "save ledger: begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	var res sql.Result
	if l.Version == 0 {
		res, err = tx.ExecContext(ctx, `
		INSERT INTO pickup_days (venue_id, business_date, version)
		VALUES ($1, $2, 1)
		ON CONFLICT (venue_id, business_date) DO NOTHING;
		`, l.VenueID, day)
	} else {
		res, err = tx.ExecContext(ctx, `
		UPDATE pickup_days
		SET version = version + 1, updated_at = now()
		WHERE venue_id = $1 AND business_date = $2 AND version = $3;
		`, l.VenueID, day, l.Version)
	}
	if err != nil {
		return errors.Wrap(err, "save ledger: bump version")
	}
	if n, err := res.RowsAffected(); err != nil {
		return errors.Wrap(err, "save ledger: rows affected")
	} else if n == 0 {
		return ports.ErrLedgerConflict
	}

	if _, err := tx.ExecContext(ctx, `
	DELETE FROM pickup_assignments WHERE venue_id = $1 AND business_date = $2;
	`, l.VenueID, day); err != nil {
		return errors.Wrap(err, "save ledger: clear assignments")
	}

	if _, err := tx.ExecContext(ctx, `
	DELETE FROM pickup_passengers
	WHERE route_id IN (
		SELECT id FROM pickup_routes WHERE venue_id = $1 AND business_date = $2
	);
	`, l.VenueID, day); err != nil {
		return errors.Wrap(err, "save ledger: clear passengers")
	}

	routes := l.Routes()
	keep := make([]string, 0, len(routes))
	for _, rt := range routes {
		keep = append(keep, rt.ID.String())
	}
	if _, err := tx.ExecContext(ctx, `
	DELETE FROM pickup_routes
	WHERE venue_id = $1 AND business_date = $2 AND NOT (id::text = ANY($3::text[]));
	`, l.VenueID, day, keep); err != nil {
		return errors.Wrap(err, "save ledger: delete routes")
	}

	for _, rt := range routes {
		if err := upsertRoute(ctx, tx, rt, day); err != nil {
			return err
		}
	}

	assigned := make(map[uuid.UUID]bool)
	for _, p := range l.AllPassengers() {
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO pickup_passengers (route_id, trip_number, cast_profile_id, order_index)
		VALUES ($1, $2, $3, $4);
		`, p.RouteID, p.TripNumber, p.AttendeeID, p.OrderIndex); err != nil {
			return errors.Wrapf(err, "save ledger: insert passenger %s", p.AttendeeID)
		}

		if assigned[p.AttendeeID] {
			continue
		}
		assigned[p.AttendeeID] = true
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO pickup_assignments (venue_id, business_date, cast_profile_id, route_id)
		VALUES ($1, $2, $3, $4);
		`, l.VenueID, day, p.AttendeeID, p.RouteID); err != nil {
			if isUniqueViolation(err) {
				return ports.ErrLedgerConflict
			}
			return errors.Wrapf(err, "save ledger: insert assignment %s", p.AttendeeID)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "save ledger: commit tx")
	}

	l.Version++
	return nil
}

func upsertRoute(ctx context.Context, tx *sql.Tx, rt domain.Route, day time.Time) error {
	var driverID uuid.NullUUID
	if rt.DriverID != nil {
		driverID = uuid.NullUUID{UUID: *rt.DriverID, Valid: true}
	}
	var returnAt sql.NullTime
	if rt.ReturnDepartAt != nil {
		returnAt = sql.NullTime{Time: *rt.ReturnDepartAt, Valid: true}
	}
	createdAt := rt.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := tx.ExecContext(ctx, `
	INSERT INTO pickup_routes (
		id, venue_id, business_date, label, driver_id, round_trips, capacity,
		depart_at, return_depart_at, avoid_highways, avoid_tolls, created_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (id) DO UPDATE
	SET label = EXCLUDED.label,
		driver_id = EXCLUDED.driver_id,
		round_trips = EXCLUDED.round_trips,
		capacity = EXCLUDED.capacity,
		depart_at = EXCLUDED.depart_at,
		return_depart_at = EXCLUDED.return_depart_at,
		avoid_highways = EXCLUDED.avoid_highways,
		avoid_tolls = EXCLUDED.avoid_tolls;
	`,
		rt.ID, rt.VenueID, day, rt.Label, driverID, rt.RoundTrips, rt.Capacity,
		rt.DepartAt, returnAt, rt.AvoidHighways, rt.AvoidTolls, createdAt,
	)
	if err != nil {
		return errors.Wrapf(err, "save ledger: upsert route %s", rt.ID)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
