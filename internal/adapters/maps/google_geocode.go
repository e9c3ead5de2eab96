package maps

import (
	"context"
	"encoding/json"
	"io"
	"net/url"

	"venue-pickup-service/internal/domain"
	"venue-pickup-service/internal/platform/obs"

	"github.com/go-faster/errors"
)

type geocodeResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// geocodeMany resolves addresses one by one with the Geocoding API.
func (g *GoogleMapsProvider) geocodeMany(
	ctx context.Context,
	addresses []string,
) (_ map[string]domain.Coordinates, err error) {
	defer obs.Time(ctx, "maps.geocodeMany")(&err)

	out := make(map[string]domain.Coordinates, len(addresses))
	for _, a := range addresses {
		if _, ok := out[a]; ok {
			continue
		}

		var decoded geocodeResponse
		err := g.getJSON(ctx, "/maps/api/geocode/json", url.Values{"address": {a}}, func(r io.Reader) error {
			decoded = geocodeResponse{}
			if err := json.NewDecoder(r).Decode(&decoded); err != nil {
				return errors.Wrap(err, "decode geocode response")
			}
			switch decoded.Status {
			case "OK", "ZERO_RESULTS":
				return nil
			}
			return &apiStatusError{Status: decoded.Status, Message: decoded.ErrorMessage}
		})
		g.observeCall("geocode", err)
		if err != nil {
			return nil, errors.Wrapf(err, "geocode %q", a)
		}

		if len(decoded.Results) == 0 {
			return nil, errors.Errorf("no geocode results for %q", a)
		}

		loc := decoded.Results[0].Geometry.Location
		out[a] = domain.Coordinates{Lon: loc.Lng, Lat: loc.Lat}
	}

	return out, nil
}
