package cache

import (
	"context"
	"database/sql"
	"strings"

	"venue-pickup-service/internal/domain"
	"venue-pickup-service/internal/platform/obs"

	"github.com/go-faster/errors"
)

// SQLGeocodeCache is a Postgres-backed cache mapping addresses to coordinates.
type SQLGeocodeCache struct {
	DB *sql.DB
}

func NewSQLGeocodeCache(db *sql.DB) *SQLGeocodeCache {
	return &SQLGeocodeCache{DB: db}
}

// Fetch cached coordinates for the given addresses.
func (s *SQLGeocodeCache) GetMany(
	ctx context.Context,
	addresses []string,
) (_ map[string]domain.Coordinates, err error) {
	defer obs.Time(ctx, "geocode.cache.GetMany")(&err)

	if s.DB == nil {
		return nil, errors.New("geocode cache: db is nil")
	}

	uniq := uniqueKeys(addresses)
	if len(uniq) == 0 {
		return map[string]domain.Coordinates{}, nil
	}

	rows, err := s.DB.QueryContext(ctx, `
	SELECT address, lon, lat
	FROM geocode_cache
	WHERE address = ANY($1::text[]);
	`, uniq)
	if err != nil {
		return nil, errors.Wrap(err, "get geocode cache: query geocode_cache table")
	}
	defer rows.Close()

	return scanCoordinates(rows, len(uniq))
}

// Store address -> coordinate mappings in the cache.
func (s *SQLGeocodeCache) PutMany(ctx context.Context, results map[string]domain.Coordinates) error {
	if s.DB == nil {
		return errors.New("geocode cache: db is nil")
	}
	if len(results) == 0 {
		return nil
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "insert geocode cache: db begin")
	}
	defer func() { _ = tx.Rollback() }()

	for addr, c := range results {
		if strings.TrimSpace(addr) == "" {
			return errors.New("insert geocode cache: empty address key")
		}

		_, err := tx.ExecContext(ctx, `
		INSERT INTO geocode_cache (address, lon, lat)
		VALUES ($1, $2, $3)
		ON CONFLICT (address) DO UPDATE
		SET lon = EXCLUDED.lon, lat = EXCLUDED.lat;
		`, addr, c.Lon, c.Lat)
		if err != nil {
			return errors.Wrapf(err, "insert geocode cache coord=%q", addr)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "insert geocode cache commit")
	}

	return nil
}

func scanCoordinates(rows *sql.Rows, size int) (map[string]domain.Coordinates, error) {
	out := make(map[string]domain.Coordinates, size)
	for rows.Next() {
		var addr string
		var lon, lat float64
		if err := rows.Scan(&addr, &lon, &lat); err != nil {
			return nil, errors.Wrap(err, "get geocode cache: scan rows")
		}
		out[addr] = domain.Coordinates{Lon: lon, Lat: lat}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "get geocode cache: row iteration")
	}
	return out, nil
}
