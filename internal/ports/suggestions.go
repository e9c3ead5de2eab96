package ports

import (
	"context"
	"time"

	"venue-pickup-service/internal/domain"
)

// SuggestionRequest is the input of a route suggester: the day's routes with their
// current passengers and the attendees still waiting for a ride.
type SuggestionRequest struct {
	Venue      domain.Venue
	Date       domain.BusinessDate
	Routes     []domain.Route
	Passengers []domain.Passenger
	Attendees  []domain.Attendee
}

type RouteSuggester interface {
	Suggest(ctx context.Context, req SuggestionRequest) ([]domain.Suggestion, error)
}

// SuggestionCache holds raw suggester responses keyed by a request digest.
type SuggestionCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}
