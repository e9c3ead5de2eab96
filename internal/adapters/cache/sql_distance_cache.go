package cache

import (
	"context"
	"database/sql"
	"strings"

	"venue-pickup-service/internal/platform/obs"
	"venue-pickup-service/internal/ports"

	"github.com/go-faster/errors"
)

// SQLDistanceCache is a Postgres-backed cache for origin->destination travel results,
// shared by every server instance.
type SQLDistanceCache struct {
	DB *sql.DB
}

func NewSQLDistanceCache(db *sql.DB) *SQLDistanceCache {
	return &SQLDistanceCache{DB: db}
}

// Fetch cached distances for one origin and multiple destinations.
func (s *SQLDistanceCache) GetMany(
	ctx context.Context,
	origin string,
	destinations []string,
	opts ports.RouteOptions,
) (_ map[string]ports.DistanceResult, err error) {
	defer obs.Time(ctx, "distance.cache.GetMany")(&err)

	if s.DB == nil {
		return nil, errors.New("distance cache: db is nil")
	}
	if origin == "" {
		return nil, errors.New("get distance cache: origin must not be empty")
	}

	uniq := uniqueKeys(destinations)
	if len(uniq) == 0 {
		return map[string]ports.DistanceResult{}, nil
	}

	q := `
	SELECT destination, distance_meters, duration_seconds
	FROM distance_cache
	WHERE origin = $1
		AND options = $2
		AND destination = ANY($3::text[]);
	`

	rows, err := s.DB.QueryContext(ctx, q, origin, opts.Tag(), uniq)
	if err != nil {
		return nil, errors.Wrap(err, "get distance cache: query distance_cache table")
	}
	defer rows.Close()

	return scanDistances(rows, len(uniq))
}

// Store many cached distance results for a single origin.
func (s *SQLDistanceCache) PutMany(
	ctx context.Context,
	origin string,
	results map[string]ports.DistanceResult,
	opts ports.RouteOptions,
) error {
	if s.DB == nil {
		return errors.New("distance cache: db is nil")
	}
	if origin == "" {
		return errors.New("insert distance cache: origin must not be empty")
	}
	if len(results) == 0 {
		return nil
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "insert distance cache: db begin")
	}
	defer func() { _ = tx.Rollback() }()

	for dest, r := range results {
		if strings.TrimSpace(dest) == "" {
			return errors.New("insert distance cache: empty destination key")
		}

		_, err := tx.ExecContext(ctx, `
		INSERT INTO distance_cache (origin, destination, options, distance_meters, duration_seconds)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (origin, destination, options) DO UPDATE
		SET distance_meters = EXCLUDED.distance_meters,
			duration_seconds = EXCLUDED.duration_seconds;
		`, origin, dest, opts.Tag(), r.DistanceMeters, r.DurationSeconds)
		if err != nil {
			return errors.Wrapf(err, "insert distance cache dest=%q", dest)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "insert distance cache commit")
	}

	return nil
}

func scanDistances(rows *sql.Rows, size int) (map[string]ports.DistanceResult, error) {
	out := make(map[string]ports.DistanceResult, size)
	for rows.Next() {
		var dest string
		var meters, seconds int
		if err := rows.Scan(&dest, &meters, &seconds); err != nil {
			return nil, errors.Wrap(err, "get distance cache: scan rows")
		}
		out[dest] = ports.DistanceResult{
			DistanceMeters:  meters,
			DurationSeconds: seconds,
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "get distance cache: row iteration")
	}
	return out, nil
}

// uniqueKeys trims keys and drops blanks and duplicates, keeping first-seen order.
func uniqueKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	uniq := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		uniq = append(uniq, k)
	}
	return uniq
}
