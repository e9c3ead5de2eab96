package ports

import (
	"context"

	"venue-pickup-service/internal/domain"
)

// Cache of geocoded addresses. Keys are normalized address strings.
type GeocodeCache interface {
	GetMany(ctx context.Context, addresses []string) (map[string]domain.Coordinates, error)
	PutMany(ctx context.Context, results map[string]domain.Coordinates) error
}

// Cache of travel results from one origin, kept apart per set of route options.
type DistanceCache interface {
	GetMany(ctx context.Context, origin string, destinations []string, opts RouteOptions) (map[string]DistanceResult, error)
	PutMany(ctx context.Context, origin string, results map[string]DistanceResult, opts RouteOptions) error
}
