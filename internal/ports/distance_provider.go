package ports

import "context"

// Distance and travel duration between two locations.
type DistanceResult struct {
	DistanceMeters  int
	DurationSeconds int
}

// Travel restrictions a route asks the maps provider to honour.
type RouteOptions struct {
	AvoidHighways bool
	AvoidTolls    bool
}

// Tag returns a short stable form of the options, used in cache keys.
func (o RouteOptions) Tag() string {
	switch {
	case o.AvoidHighways && o.AvoidTolls:
		return "nohwy,notoll"
	case o.AvoidHighways:
		return "nohwy"
	case o.AvoidTolls:
		return "notoll"
	}
	return "default"
}

// Contract for retrieving travel distance and duration between locations.
type DistanceProvider interface {
	// Return travel distance and estimated duration between two locations.
	GetDistance(ctx context.Context, origin, destination string, opts RouteOptions) (DistanceResult, error)
}
