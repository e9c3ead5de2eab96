package services

import (
	"context"
	"sync"

	"venue-pickup-service/internal/ports"

	"github.com/go-faster/errors"
)

// DistanceTable holds travel results keyed by "origin|destination".
type DistanceTable map[string]ports.DistanceResult

func (t DistanceTable) lookup(from, to string) (ports.DistanceResult, bool) {
	if from == to {
		return ports.DistanceResult{}, true
	}
	r, ok := t[from+"|"+to]
	return r, ok
}

type pairwiseResult struct {
	origin  string
	results map[string]ports.DistanceResult
	err     error
}

// DistancesFrom returns travel results from one origin to every destination.
func DistancesFrom(
	ctx context.Context,
	provider ports.DistanceProvider,
	origin string,
	destinations []string,
	opts ports.RouteOptions,
) (map[string]ports.DistanceResult, error) {
	// Prefer a single origin->many lookup when supported to reduce external API calls.
	if mp, ok := provider.(ports.DistanceMatrixProvider); ok {
		results, err := mp.GetDistances(ctx, origin, destinations, opts)
		if err != nil {
			return nil, errors.Wrapf(err, "get matrix distances from %q", origin)
		}
		for _, d := range destinations {
			if _, ok := results[d]; !ok {
				return nil, errors.Errorf("missing distance from %q to %q", origin, d)
			}
		}
		return results, nil
	}

	results := make(map[string]ports.DistanceResult, len(destinations))
	for _, d := range destinations {
		r, err := provider.GetDistance(ctx, origin, d, opts)
		if err != nil {
			return nil, errors.Wrapf(err, "get distance %q -> %q", origin, d)
		}
		results[d] = r
	}
	return results, nil
}

// FetchDistanceTable looks up the origin to every destination and every destination
// to every other one. Lookups per origin run concurrently, at most five at a time.
// Legs end at their last drop-off, so nothing is fetched back to the origin.
func FetchDistanceTable(
	ctx context.Context,
	provider ports.DistanceProvider,
	origin string,
	destinations []string,
	opts ports.RouteOptions,
) (DistanceTable, error) {
	table := make(DistanceTable)
	if len(destinations) == 0 {
		return table, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	origins := append([]string{origin}, destinations...)

	sem := make(chan struct{}, 5)
	resultsCh := make(chan pairwiseResult, len(origins))
	var wg sync.WaitGroup

	for _, from := range origins {
		targets := make([]string, 0, len(destinations))
		for _, d := range destinations {
			if d != from {
				targets = append(targets, d)
			}
		}
		if len(targets) == 0 {
			continue
		}

		wg.Add(1)
		go func(from string, targets []string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			res, err := DistancesFrom(ctx, provider, from, targets, opts)
			if err != nil {
				resultsCh <- pairwiseResult{origin: from, err: err}
				cancel()
				return
			}
			resultsCh <- pairwiseResult{origin: from, results: res}
		}(from, targets)
	}

	wg.Wait()
	close(resultsCh)

	var firstErr error
	for res := range resultsCh {
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
			}
			continue
		}
		for to, r := range res.results {
			table[res.origin+"|"+to] = r
		}
	}
	if firstErr != nil {
		return nil, errors.Wrap(firstErr, "fetch distance table")
	}

	return table, nil
}
