package maps

import (
	"context"
	"net/http"
	"strings"
	"time"

	"venue-pickup-service/internal/domain"
	"venue-pickup-service/internal/platform/obs"
	"venue-pickup-service/internal/ports"

	"github.com/go-faster/errors"
)

const defaultBaseURL = "https://maps.googleapis.com"

// Metrics receives maps API and cache counters.
type Metrics interface {
	MapsCall(api string, err error)
	CacheLookup(kind string, hits, misses int)
}

// GoogleMapsProvider implements DistanceMatrixProvider with the Google Geocoding and
// Distance Matrix APIs.
//
// It coordinates:
//   - Address normalization
//   - Persistent geocode caching
//   - Persistent distance caching per set of route options
//   - External API calls with retry/backoff
//
// The provider is safe for concurrent use.
type GoogleMapsProvider struct {
	session       *http.Client
	apiKey        string
	baseURL       string
	region        string
	language      string
	backoff       time.Duration
	distanceCache ports.DistanceCache
	geocodeCache  ports.GeocodeCache
	metrics       Metrics
}

type Option func(*GoogleMapsProvider)

// WithBaseURL points the provider at another host, e.g. a test server.
func WithBaseURL(u string) Option {
	return func(g *GoogleMapsProvider) { g.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(c *http.Client) Option {
	return func(g *GoogleMapsProvider) { g.session = c }
}

func WithLocale(region, language string) Option {
	return func(g *GoogleMapsProvider) {
		g.region = region
		g.language = language
	}
}

func WithCaches(distanceCache ports.DistanceCache, geocodeCache ports.GeocodeCache) Option {
	return func(g *GoogleMapsProvider) {
		g.distanceCache = distanceCache
		g.geocodeCache = geocodeCache
	}
}

func WithMetrics(m Metrics) Option {
	return func(g *GoogleMapsProvider) { g.metrics = m }
}

// WithRetryBackoff sets the first retry delay; it doubles on every attempt.
func WithRetryBackoff(d time.Duration) Option {
	return func(g *GoogleMapsProvider) { g.backoff = d }
}

func NewGoogleMapsProvider(apiKey string, opts ...Option) (*GoogleMapsProvider, error) {
	if apiKey == "" {
		return nil, errors.New("google maps api key is empty")
	}

	provider := &GoogleMapsProvider{
		session: &http.Client{Timeout: 10 * time.Second},
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		backoff: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(provider)
	}

	return provider, nil
}

// normalize ensures consistent cache keys by collapsing whitespace.
func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func (g *GoogleMapsProvider) observeCall(api string, err error) {
	if g.metrics != nil {
		g.metrics.MapsCall(api, err)
	}
}

func (g *GoogleMapsProvider) observeCache(kind string, hits, misses int) {
	if g.metrics != nil {
		g.metrics.CacheLookup(kind, hits, misses)
	}
}

// Delegate to batched path to reuse caching and matrix logic.
func (g *GoogleMapsProvider) GetDistance(
	ctx context.Context,
	origin string,
	destination string,
	opts ports.RouteOptions,
) (ports.DistanceResult, error) {
	normOrigin := normalize(origin)
	normDestination := normalize(destination)
	if normOrigin == "" || normDestination == "" {
		return ports.DistanceResult{}, errors.New("get distance: origin and destination must be non-empty")
	}

	if normOrigin == normDestination {
		return ports.DistanceResult{}, nil
	}

	results, err := g.GetDistances(ctx, normOrigin, []string{normDestination}, opts)
	if err != nil {
		return ports.DistanceResult{}, errors.Wrapf(err, "get distances %q -> %q", normOrigin, normDestination)
	}

	result, ok := results[normDestination]
	if !ok {
		return ports.DistanceResult{}, errors.Errorf("no distance result for %q -> %q", origin, destination)
	}

	return result, nil
}

// Compute distances from a single origin to many destinations. Result keys are the
// normalized destinations; a destination equal to the origin is omitted.
func (g *GoogleMapsProvider) GetDistances(
	ctx context.Context,
	origin string,
	destinations []string,
	opts ports.RouteOptions,
) (_ map[string]ports.DistanceResult, err error) {
	defer obs.Time(ctx, "maps.GetDistances")(&err)

	normOrigin := normalize(origin)
	if normOrigin == "" {
		return nil, errors.New("origin must be non-empty")
	}

	seen := make(map[string]struct{}, len(destinations))
	destList := make([]string, 0, len(destinations))
	for _, d := range destinations {
		nd := normalize(d)
		if nd == "" || nd == normOrigin {
			continue
		}
		if _, ok := seen[nd]; ok {
			continue
		}
		seen[nd] = struct{}{}
		destList = append(destList, nd)
	}

	if len(destList) == 0 {
		return map[string]ports.DistanceResult{}, nil
	}

	destinationHits := make(map[string]ports.DistanceResult)
	// Check persistent distance cache before issuing external API calls.
	if g.distanceCache != nil {
		destinationHits, err = g.distanceCache.GetMany(ctx, normOrigin, destList, opts)
		if err != nil {
			return nil, errors.Wrap(err, "get distance cache")
		}
	}

	destinationMisses := make([]string, 0, len(destList))
	for _, d := range destList {
		if _, ok := destinationHits[d]; !ok {
			destinationMisses = append(destinationMisses, d)
		}
	}
	g.observeCache("distance", len(destList)-len(destinationMisses), len(destinationMisses))

	if len(destinationMisses) == 0 {
		return destinationHits, nil
	}

	needed := make([]string, 0, 1+len(destinationMisses))
	needed = append(needed, normOrigin)
	needed = append(needed, destinationMisses...)

	coords, err := g.coordinates(ctx, needed)
	if err != nil {
		return nil, err
	}

	originCoord, ok := coords[normOrigin]
	if !ok {
		return nil, errors.Errorf("missing coordinate for origin %q", normOrigin)
	}

	destinationCoords := make([]domain.Coordinates, 0, len(destinationMisses))
	for _, d := range destinationMisses {
		coord, ok := coords[d]
		if !ok {
			return nil, errors.Errorf("missing coordinate for destination %q", d)
		}
		destinationCoords = append(destinationCoords, coord)
	}

	fetched, err := g.fetchMatrixRow(ctx, originCoord, destinationMisses, destinationCoords, opts)
	if err != nil {
		return nil, errors.Wrap(err, "fetching matrix row")
	}

	if g.distanceCache != nil {
		if err := g.distanceCache.PutMany(ctx, normOrigin, fetched, opts); err != nil {
			obs.Logger(ctx).WithError(err).Warn("distance cache write failed")
		}
	}

	out := make(map[string]ports.DistanceResult, len(destinationHits)+len(fetched))
	for k, v := range destinationHits {
		out[k] = v
	}
	for k, v := range fetched {
		out[k] = v
	}

	return out, nil
}

// coordinates resolves addresses through the geocode cache, falling back to the API.
func (g *GoogleMapsProvider) coordinates(ctx context.Context, addresses []string) (map[string]domain.Coordinates, error) {
	hits := make(map[string]domain.Coordinates)
	if g.geocodeCache != nil {
		var err error
		hits, err = g.geocodeCache.GetMany(ctx, addresses)
		if err != nil {
			return nil, errors.Wrap(err, "get geocode cache")
		}
	}

	misses := make([]string, 0, len(addresses))
	for _, a := range addresses {
		if _, ok := hits[a]; !ok {
			misses = append(misses, a)
		}
	}
	g.observeCache("geocode", len(addresses)-len(misses), len(misses))

	if len(misses) == 0 {
		return hits, nil
	}

	fresh, err := g.geocodeMany(ctx, misses)
	if err != nil {
		return nil, errors.Wrap(err, "retrieving coordinates")
	}

	if g.geocodeCache != nil && len(fresh) > 0 {
		if err := g.geocodeCache.PutMany(ctx, fresh); err != nil {
			obs.Logger(ctx).WithError(err).Warn("geocode cache write failed")
		}
	}

	out := make(map[string]domain.Coordinates, len(hits)+len(fresh))
	for k, v := range hits {
		out[k] = v
	}
	for k, v := range fresh {
		out[k] = v
	}
	return out, nil
}
