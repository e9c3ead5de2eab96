package export

import (
	"io"
	"strconv"
	"strings"
	"time"

	"venue-pickup-service/internal/domain"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

const (
	summarySheet  = "Summary"
	maxSheetName  = 31
	clockLayout   = "15:04"
	missingMarker = "-"
)

// LegRef names one leg of a route.
type LegRef struct {
	RouteID    uuid.UUID
	TripNumber int
}

type ManifestRow struct {
	Order       int
	Name        string
	Destination string
	ETA         *time.Time
}

type ManifestLeg struct {
	TripNumber int
	DepartAt   time.Time
	Rows       []ManifestRow
}

type ManifestRoute struct {
	Route    domain.Route
	Legs     []ManifestLeg
	Warnings []int
}

// Manifest is the printable driver sheet of one business date.
type Manifest struct {
	Venue  domain.Venue
	Date   domain.BusinessDate
	Routes []ManifestRoute
}

// NewManifest lays out every leg of the ledger in pickup order. plans may carry
// timed legs; arrival times are filled in from them where present.
func NewManifest(
	venue domain.Venue,
	l *domain.PickupLedger,
	attendees []domain.Attendee,
	plans map[LegRef]*domain.LegPlan,
) Manifest {
	byID := make(map[uuid.UUID]domain.Attendee, len(attendees))
	for _, a := range attendees {
		byID[a.ProfileID] = a
	}

	m := Manifest{Venue: venue, Date: l.BusinessDate}
	for _, rt := range l.Routes() {
		mr := ManifestRoute{Route: rt}
		mr.Warnings, _ = l.CapacityWarnings(rt.ID)

		for trip := 1; trip <= rt.TripCount(); trip++ {
			eta := make(map[uuid.UUID]time.Time)
			if p := plans[LegRef{RouteID: rt.ID, TripNumber: trip}]; p != nil {
				for _, stop := range p.Stops {
					for _, id := range stop.AttendeeIDs {
						eta[id] = stop.ArriveAt
					}
				}
			}

			leg := ManifestLeg{TripNumber: trip, DepartAt: rt.DepartureFor(trip)}
			for i, id := range l.Leg(rt.ID, trip) {
				row := ManifestRow{Order: i + 1, Name: id.String()}
				if a, ok := byID[id]; ok {
					row.Name = a.DisplayName
					if a.Destination != nil {
						row.Destination = *a.Destination
					}
				}
				if t, ok := eta[id]; ok {
					row.ETA = &t
				}
				leg.Rows = append(leg.Rows, row)
			}
			mr.Legs = append(mr.Legs, leg)
		}
		m.Routes = append(m.Routes, mr)
	}
	return m
}

// WriteManifest renders m as an XLSX workbook: a summary sheet, then one sheet per route.
func WriteManifest(w io.Writer, m Manifest) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), summarySheet); err != nil {
		return errors.Wrap(err, "manifest: rename summary sheet")
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return errors.Wrap(err, "manifest: header style")
	}

	loc := m.Venue.Location
	if loc == nil {
		loc = time.UTC
	}
	clock := func(t time.Time) string { return t.In(loc).Format(clockLayout) }

	summary := [][]any{
		{m.Venue.Name, m.Date.String()},
		{},
		{"Route", "Driver", "Departs", "Trips", "Capacity", "Passengers", "Over capacity"},
	}
	for _, mr := range m.Routes {
		driver := ""
		if mr.Route.DriverID != nil {
			driver = mr.Route.DriverID.String()
		}
		passengers := 0
		for _, leg := range mr.Legs {
			passengers += len(leg.Rows)
		}
		summary = append(summary, []any{
			mr.Route.Label, driver, clock(mr.Route.DepartAt), mr.Route.TripCount(),
			mr.Route.Capacity, passengers, joinTrips(mr.Warnings),
		})
	}
	if err := writeRows(f, summarySheet, summary); err != nil {
		return err
	}
	if err := f.SetCellStyle(summarySheet, "A3", "G3", bold); err != nil {
		return errors.Wrap(err, "manifest: style summary header")
	}

	used := map[string]bool{strings.ToLower(summarySheet): true}
	for i, mr := range m.Routes {
		name := sheetName(mr.Route.Label, i+1, used)
		if _, err := f.NewSheet(name); err != nil {
			return errors.Wrapf(err, "manifest: add sheet %q", name)
		}

		rows := [][]any{{"Trip", "Order", "Name", "Destination", "ETA"}}
		for _, leg := range mr.Legs {
			rows = append(rows, []any{leg.TripNumber, missingMarker, "departs " + clock(leg.DepartAt), "", ""})
			for _, r := range leg.Rows {
				eta := missingMarker
				if r.ETA != nil {
					eta = clock(*r.ETA)
				}
				rows = append(rows, []any{leg.TripNumber, r.Order, r.Name, r.Destination, eta})
			}
		}
		if err := writeRows(f, name, rows); err != nil {
			return err
		}
		if err := f.SetCellStyle(name, "A1", "E1", bold); err != nil {
			return errors.Wrapf(err, "manifest: style %q header", name)
		}
		if err := f.SetColWidth(name, "C", "D", 28); err != nil {
			return errors.Wrapf(err, "manifest: widen %q", name)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return errors.Wrap(err, "manifest: write workbook")
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return errors.Wrap(err, "manifest: cell name")
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return errors.Wrapf(err, "manifest: write %s!%s", sheet, cell)
		}
	}
	return nil
}

// sheetName derives a unique worksheet name from a route label. Excel compares names
// case-insensitively, limits them to 31 characters and forbids : \ / ? * [ ].
func sheetName(label string, n int, used map[string]bool) string {
	name := strings.NewReplacer(":", " ", "\\", " ", "/", " ", "?", " ", "*", " ", "[", "(", "]", ")").
		Replace(strings.TrimSpace(label))
	if name == "" {
		name = "Route " + strconv.Itoa(n)
	}
	if r := []rune(name); len(r) > maxSheetName {
		name = string(r[:maxSheetName])
	}

	base := name
	for i := 2; used[strings.ToLower(name)]; i++ {
		suffix := " (" + strconv.Itoa(i) + ")"
		r := []rune(base)
		if len(r)+len(suffix) > maxSheetName {
			r = r[:maxSheetName-len(suffix)]
		}
		name = string(r) + suffix
	}
	used[strings.ToLower(name)] = true
	return name
}

func joinTrips(trips []int) string {
	parts := make([]string, 0, len(trips))
	for _, t := range trips {
		parts = append(parts, strconv.Itoa(t))
	}
	return strings.Join(parts, ", ")
}
