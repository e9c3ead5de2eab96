package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

func TestAttendeesForBusinessDate(t *testing.T) {
	t.Parallel()

	day := BusinessDate{Year: 2026, Month: time.March, Day: 14}
	late, early, overnight, tomorrow := uuid.New(), uuid.New(), uuid.New(), uuid.New()

	records := []AttendanceRecord{
		// Clocked in at 23:00 on the 14th.
		{AttendeeID: late, DisplayName: "Rin", ClockInAt: timePtr(time.Date(2026, 3, 14, 23, 0, 0, 0, jst)), Destination: strPtr("Ebisu")},
		// Clocked in at 19:00; a second row without a destination follows.
		{AttendeeID: early, DisplayName: "Aoi", ClockInAt: timePtr(time.Date(2026, 3, 14, 19, 0, 0, 0, jst)), Destination: strPtr("Meguro")},
		{AttendeeID: early, DisplayName: "Aoi", ClockInAt: timePtr(time.Date(2026, 3, 14, 20, 30, 0, 0, jst))},
		// 01:30 on the 15th still belongs to the 14th.
		{AttendeeID: overnight, DisplayName: "Mio", ClockInAt: timePtr(time.Date(2026, 3, 15, 1, 30, 0, 0, jst))},
		// 06:00 on the 15th is the next business day.
		{AttendeeID: tomorrow, DisplayName: "Yui", ClockInAt: timePtr(time.Date(2026, 3, 15, 6, 0, 0, 0, jst)), Destination: strPtr("Shibuya")},
	}

	got := AttendeesForBusinessDate(records, day, DefaultDaySwitchBoundary, jst)
	require.Len(t, got, 3)

	require.Equal(t, early, got[0].ProfileID)
	require.Equal(t, "Meguro", *got[0].Destination)
	require.True(t, got[0].ClockInAt.Equal(time.Date(2026, 3, 14, 20, 30, 0, 0, jst)))

	require.Equal(t, late, got[1].ProfileID)
	require.Equal(t, overnight, got[2].ProfileID)
	require.False(t, got[2].Eligible())
}

func TestAttendeesForBusinessDateWithoutClockIn(t *testing.T) {
	t.Parallel()

	day := BusinessDate{Year: 2026, Month: time.March, Day: 14}
	b, a := uuid.New(), uuid.New()
	records := []AttendanceRecord{
		{AttendeeID: b, DisplayName: "Beni", WorkDate: day, Destination: strPtr("Nakano")},
		{AttendeeID: a, DisplayName: "Aya", WorkDate: day},
		{AttendeeID: uuid.New(), DisplayName: "Other", WorkDate: day.AddDays(1)},
	}

	got := AttendeesForBusinessDate(records, day, DefaultDaySwitchBoundary, jst)
	require.Len(t, got, 2)
	require.Equal(t, "Aya", got[0].DisplayName)
	require.Equal(t, "Beni", got[1].DisplayName)
}
