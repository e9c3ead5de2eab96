package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"strings"
	"time"

	"venue-pickup-service/internal/domain"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

type VenueSeed struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Timezone  string    `json:"timezone"`
	DaySwitch string    `json:"day_switch"`
}

type CastProfileSeed struct {
	ID                 uuid.UUID `json:"id"`
	VenueID            uuid.UUID `json:"venue_id"`
	DisplayName        string    `json:"display_name"`
	DefaultDestination *string   `json:"default_destination"`
}

type AttendanceSeed struct {
	ID            uuid.UUID           `json:"id"`
	VenueID       uuid.UUID           `json:"venue_id"`
	CastProfileID uuid.UUID           `json:"cast_profile_id"`
	WorkDate      domain.BusinessDate `json:"work_date"`
	ClockInAt     *time.Time          `json:"clock_in_at"`
	Destination   *string             `json:"destination"`
}

// Seed is the demo data file: venues, their cast and attendance rows.
type Seed struct {
	Venues       []VenueSeed       `json:"venues"`
	CastProfiles []CastProfileSeed `json:"cast_profiles"`
	Attendance   []AttendanceSeed  `json:"attendance"`
}

// ReadSeed loads and validates a seed file.
func ReadSeed(path string) (*Seed, error) {
	bytes, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "seed: read %q", path)
	}

	var s Seed
	if err := json.Unmarshal(bytes, &s); err != nil {
		return nil, errors.Wrap(err, "seed: parse json")
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Seed) validate() error {
	venues := make(map[uuid.UUID]bool, len(s.Venues))
	for i, v := range s.Venues {
		if v.ID == uuid.Nil || strings.TrimSpace(v.Name) == "" {
			return errors.Errorf("seed: venue at index %d: id and name are required", i+1)
		}
		if _, err := v.domain(); err != nil {
			return errors.Wrapf(err, "seed: venue at index %d", i+1)
		}
		venues[v.ID] = true
	}

	profiles := make(map[uuid.UUID]string, len(s.CastProfiles))
	for i, p := range s.CastProfiles {
		if p.ID == uuid.Nil || !venues[p.VenueID] {
			return errors.Errorf("seed: cast profile at index %d: unknown venue or missing id", i+1)
		}
		profiles[p.ID] = p.DisplayName
	}

	for i, a := range s.Attendance {
		if _, ok := profiles[a.CastProfileID]; !ok || !venues[a.VenueID] {
			return errors.Errorf("seed: attendance at index %d: unknown venue or cast profile", i+1)
		}
		if a.WorkDate.IsZero() {
			return errors.Errorf("seed: attendance at index %d: work_date is required", i+1)
		}
	}
	return nil
}

func (v VenueSeed) domain() (domain.Venue, error) {
	tz := v.Timezone
	if tz == "" {
		tz = "Asia/Tokyo"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return domain.Venue{}, errors.Wrapf(err, "load timezone %q", tz)
	}

	boundary := domain.DefaultDaySwitchBoundary
	if v.DaySwitch != "" {
		if boundary, err = domain.ParseDaySwitchBoundary(v.DaySwitch); err != nil {
			return domain.Venue{}, err
		}
	}

	return domain.Venue{ID: v.ID, Name: v.Name, Address: v.Address, Location: loc, DaySwitch: boundary}, nil
}

// DomainVenues converts the seeded venues.
func (s *Seed) DomainVenues() ([]domain.Venue, error) {
	out := make([]domain.Venue, 0, len(s.Venues))
	for _, v := range s.Venues {
		dv, err := v.domain()
		if err != nil {
			return nil, err
		}
		out = append(out, dv)
	}
	return out, nil
}

// DomainAttendance converts the seeded attendance rows, filling in display names and
// default destinations from the cast profiles.
func (s *Seed) DomainAttendance() []domain.AttendanceRecord {
	profiles := make(map[uuid.UUID]CastProfileSeed, len(s.CastProfiles))
	for _, p := range s.CastProfiles {
		profiles[p.ID] = p
	}

	out := make([]domain.AttendanceRecord, 0, len(s.Attendance))
	for _, a := range s.Attendance {
		p := profiles[a.CastProfileID]
		dest := a.Destination
		if dest == nil {
			dest = p.DefaultDestination
		}
		out = append(out, domain.AttendanceRecord{
			ID:          a.ID,
			VenueID:     a.VenueID,
			AttendeeID:  a.CastProfileID,
			DisplayName: p.DisplayName,
			WorkDate:    a.WorkDate,
			ClockInAt:   a.ClockInAt,
			Destination: dest,
		})
	}
	return out
}

// Populate the database with the seed file. Existing rows with the same ids are
// updated.
func SeedFromJSON(ctx context.Context, db *sql.DB, jsonPath string) error {
	s, err := ReadSeed(jsonPath)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "seed: begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	for _, v := range s.Venues {
		daySwitch := v.DaySwitch
		if daySwitch == "" {
			daySwitch = domain.DefaultDaySwitchBoundary.String()
		}
		tz := v.Timezone
		if tz == "" {
			tz = "Asia/Tokyo"
		}
		_, err := tx.ExecContext(ctx, `
		INSERT INTO venues (id, name, address, timezone, day_switch_time)
		VALUES ($1, $2, $3, $4, $5::time)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
			address = EXCLUDED.address,
			timezone = EXCLUDED.timezone,
			day_switch_time = EXCLUDED.day_switch_time;
		`, v.ID, v.Name, v.Address, tz, daySwitch)
		if err != nil {
			return errors.Wrapf(err, "seed: insert venue id=%s", v.ID)
		}
	}

	for _, p := range s.CastProfiles {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO cast_profiles (id, venue_id, display_name, default_destination)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET display_name = EXCLUDED.display_name,
			default_destination = EXCLUDED.default_destination;
		`, p.ID, p.VenueID, p.DisplayName, p.DefaultDestination)
		if err != nil {
			return errors.Wrapf(err, "seed: insert cast profile id=%s", p.ID)
		}
	}

	for _, a := range s.Attendance {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO attendance_records (id, venue_id, cast_profile_id, work_date, clock_in_at, destination)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING;
		`, a.ID, a.VenueID, a.CastProfileID, a.WorkDate.Time(), a.ClockInAt, a.Destination)
		if err != nil {
			return errors.Wrapf(err, "seed: insert attendance id=%s", a.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "seed: commit tx")
	}

	return nil
}
