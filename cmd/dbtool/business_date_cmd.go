package main

import (
	"strings"
	"time"
	_ "time/tzdata"

	"venue-pickup-service/internal/domain"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"
)

type businessDateOutput struct {
	At           time.Time `json:"at"`
	Timezone     string    `json:"timezone"`
	DaySwitch    string    `json:"day_switch"`
	BusinessDate string    `json:"business_date"`
	SpanStart    string    `json:"span_start"`
	SpanEnd      string    `json:"span_end"`
	WindowStart  time.Time `json:"window_start"`
	WindowEnd    time.Time `json:"window_end"`
}

// newBusinessDateCmd resolves a business date offline, without a database.
func newBusinessDateCmd() *cobra.Command {
	var (
		at        string
		timezone  string
		daySwitch string
	)

	cmd := &cobra.Command{
		Use:   "business-date",
		Short: "Resolve the business date an instant belongs to",
		RunE: func(cmd *cobra.Command, _ []string) error {
			loc, err := time.LoadLocation(timezone)
			if err != nil {
				return errors.Wrapf(err, "invalid --tz %q", timezone)
			}
			boundary, err := domain.ParseDaySwitchBoundary(daySwitch)
			if err != nil {
				return errors.Wrap(err, "invalid --switch")
			}

			ts := time.Now()
			if strings.TrimSpace(at) != "" {
				if ts, err = time.Parse(time.RFC3339, at); err != nil {
					return errors.Wrap(err, "invalid --at, want RFC3339")
				}
			}

			date := domain.ResolveBusinessDate(ts, boundary, loc)
			span := date.Span()
			start, end := date.Window(boundary, loc)

			return writeJSON(businessDateOutput{
				At:           ts.In(loc),
				Timezone:     loc.String(),
				DaySwitch:    boundary.String(),
				BusinessDate: date.String(),
				SpanStart:    span.Start.String(),
				SpanEnd:      span.End.String(),
				WindowStart:  start,
				WindowEnd:    end,
			})
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "Instant to resolve, RFC3339 (default now)")
	cmd.Flags().StringVar(&timezone, "tz", "Asia/Tokyo", "Venue IANA time zone")
	cmd.Flags().StringVar(&daySwitch, "switch", domain.DefaultDaySwitchBoundary.String(), "Day switch time, HH:MM")
	return cmd
}
