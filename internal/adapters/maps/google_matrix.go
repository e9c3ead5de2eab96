package maps

import (
	"context"
	"encoding/json"
	"io"
	"net/url"
	"strings"

	"venue-pickup-service/internal/domain"
	"venue-pickup-service/internal/ports"

	"github.com/go-faster/errors"
)

// The Distance Matrix API accepts at most 25 destinations per request.
const maxMatrixDestinations = 25

type matrixResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Rows         []struct {
		Elements []struct {
			Status   string `json:"status"`
			Distance struct {
				Value int `json:"value"`
			} `json:"distance"`
			Duration struct {
				Value int `json:"value"`
			} `json:"duration"`
		} `json:"elements"`
	} `json:"rows"`
}

func avoidParam(opts ports.RouteOptions) string {
	var parts []string
	if opts.AvoidHighways {
		parts = append(parts, "highways")
	}
	if opts.AvoidTolls {
		parts = append(parts, "tolls")
	}
	return strings.Join(parts, "|")
}

// fetchMatrixRow retrieves distance and duration from one origin to many
// destinations, in chunks the API accepts.
func (g *GoogleMapsProvider) fetchMatrixRow(
	ctx context.Context,
	originCoord domain.Coordinates,
	destinations []string,
	destinationCoords []domain.Coordinates,
	opts ports.RouteOptions,
) (map[string]ports.DistanceResult, error) {
	if len(destinations) != len(destinationCoords) {
		return nil, errors.New("destinations and destinationCoords are expected to have the same length")
	}

	out := make(map[string]ports.DistanceResult, len(destinations))
	for start := 0; start < len(destinations); start += maxMatrixDestinations {
		end := min(start+maxMatrixDestinations, len(destinations))

		latLngs := make([]string, 0, end-start)
		for _, c := range destinationCoords[start:end] {
			latLngs = append(latLngs, c.LatLng())
		}

		params := url.Values{
			"origins":      {originCoord.LatLng()},
			"destinations": {strings.Join(latLngs, "|")},
			"mode":         {"driving"},
		}
		if avoid := avoidParam(opts); avoid != "" {
			params.Set("avoid", avoid)
		}

		var mr matrixResponse
		err := g.getJSON(ctx, "/maps/api/distancematrix/json", params, func(r io.Reader) error {
			mr = matrixResponse{}
			if err := json.NewDecoder(r).Decode(&mr); err != nil {
				return errors.Wrap(err, "decode matrix response")
			}
			if mr.Status != "OK" {
				return &apiStatusError{Status: mr.Status, Message: mr.ErrorMessage}
			}
			return nil
		})
		g.observeCall("distancematrix", err)
		if err != nil {
			return nil, errors.Wrap(err, "matrix request failed")
		}

		if len(mr.Rows) != 1 {
			return nil, errors.Errorf("expected 1 origin row; got %d", len(mr.Rows))
		}
		elements := mr.Rows[0].Elements
		if len(elements) != end-start {
			return nil, errors.Errorf(
				"row length does not match destinations: elements=%d destinations=%d",
				len(elements), end-start,
			)
		}

		for i, dest := range destinations[start:end] {
			el := elements[i]
			if el.Status != "OK" {
				return nil, errors.Errorf("matrix element status %s for %q", el.Status, dest)
			}
			out[dest] = ports.DistanceResult{
				DistanceMeters:  el.Distance.Value,
				DurationSeconds: el.Duration.Value,
			}
		}
	}

	return out, nil
}
