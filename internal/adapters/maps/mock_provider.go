package maps

import (
	"context"
	"sync"

	"venue-pickup-service/internal/ports"

	"github.com/go-faster/errors"
)

type MockPair struct {
	From, To string
	Meters   int
	Seconds  int
}

// MockDistanceProvider serves fixed travel results. Route options are recorded but
// do not change the answer. Safe for concurrent use.
type MockDistanceProvider struct {
	m map[string]ports.DistanceResult

	mu    sync.Mutex
	opts  []ports.RouteOptions
	calls int
}

func NewMockDistanceProvider(pairs []MockPair) *MockDistanceProvider {
	m := make(map[string]ports.DistanceResult, len(pairs))
	for _, p := range pairs {
		m[p.From+"|"+p.To] = ports.DistanceResult{DistanceMeters: p.Meters, DurationSeconds: p.Seconds}
	}
	return &MockDistanceProvider{m: m}
}

func (p *MockDistanceProvider) GetDistance(
	_ context.Context,
	origin, destination string,
	opts ports.RouteOptions,
) (ports.DistanceResult, error) {
	p.mu.Lock()
	p.opts = append(p.opts, opts)
	p.calls++
	p.mu.Unlock()

	if origin == destination {
		return ports.DistanceResult{}, nil
	}

	r, ok := p.m[origin+"|"+destination]
	if !ok {
		return ports.DistanceResult{}, errors.Errorf("missing pair %q -> %q", origin, destination)
	}

	return r, nil
}

// Calls returns how many lookups were served.
func (p *MockDistanceProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Options returns the route options of every lookup so far.
func (p *MockDistanceProvider) Options() []ports.RouteOptions {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ports.RouteOptions(nil), p.opts...)
}
