package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Attendee is a cast member working on a business date, with the address they
// want to be dropped at. Only attendees with a destination can ride a route.
type Attendee struct {
	ProfileID   uuid.UUID
	DisplayName string
	Destination *string
	ClockInAt   *time.Time
}

func (a Attendee) Eligible() bool {
	return a.Destination != nil && strings.TrimSpace(*a.Destination) != ""
}

// AttendanceRecord is one clock-in/clock-out row owned by the attendance subsystem.
// WorkDate is the calendar date the row was filed under.
type AttendanceRecord struct {
	ID          uuid.UUID
	VenueID     uuid.UUID
	AttendeeID  uuid.UUID
	DisplayName string
	WorkDate    BusinessDate
	ClockInAt   *time.Time
	Destination *string
}

// BusinessDateOf resolves which business date the record belongs to: the clock-in
// instant when present, otherwise the calendar date it was filed under.
func (r AttendanceRecord) BusinessDateOf(b DaySwitchBoundary, loc *time.Location) BusinessDate {
	if r.ClockInAt != nil {
		return ResolveBusinessDate(*r.ClockInAt, b, loc)
	}
	return r.WorkDate
}

// AttendeesForBusinessDate filters attendance rows fetched for date.Span() down to the
// attendees working on date. Several rows for one attendee collapse into one; the
// latest clock-in wins and a known destination is never replaced by a missing one.
// The result is ordered by clock-in, then display name.
func AttendeesForBusinessDate(
	records []AttendanceRecord,
	date BusinessDate,
	b DaySwitchBoundary,
	loc *time.Location,
) []Attendee {
	byID := make(map[uuid.UUID]*Attendee)
	order := make([]uuid.UUID, 0, len(records))

	for _, r := range records {
		if r.BusinessDateOf(b, loc) != date {
			continue
		}

		a, ok := byID[r.AttendeeID]
		if !ok {
			a = &Attendee{ProfileID: r.AttendeeID, DisplayName: r.DisplayName}
			byID[r.AttendeeID] = a
			order = append(order, r.AttendeeID)
		}

		if r.ClockInAt != nil && (a.ClockInAt == nil || r.ClockInAt.After(*a.ClockInAt)) {
			a.ClockInAt = r.ClockInAt
			if r.Destination != nil {
				a.Destination = r.Destination
			}
		} else if a.Destination == nil && r.Destination != nil {
			a.Destination = r.Destination
		}
		if a.DisplayName == "" {
			a.DisplayName = r.DisplayName
		}
	}

	out := make([]Attendee, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}

	sort.SliceStable(out, func(i, j int) bool {
		ci, cj := out[i].ClockInAt, out[j].ClockInAt
		switch {
		case ci != nil && cj != nil && !ci.Equal(*cj):
			return ci.Before(*cj)
		case ci != nil && cj == nil:
			return true
		case ci == nil && cj != nil:
			return false
		}
		return out[i].DisplayName < out[j].DisplayName
	})

	return out
}
