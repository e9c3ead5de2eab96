package api

import (
	"context"
	"net/http"

	"venue-pickup-service/internal/api/handlers"
	"venue-pickup-service/internal/services"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Options carries what the router needs from the composition root.
type Options struct {
	Service         *services.PickupService
	Logger          *logrus.Logger
	Metrics         HTTPObserver
	RequestIDHeader string
	Ping            func(ctx context.Context) error
}

// NewRouter wires HTTP handlers with their dependencies and returns an http.Handler.
// Handlers stay unaware of concrete adapters.
func NewRouter(opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.RequestIDHeader == "" {
		opts.RequestIDHeader = "X-Request-ID"
	}

	r := mux.NewRouter()
	r.Use(requestIDMiddleware(opts.RequestIDHeader), loggingMiddleware(opts.Logger))
	if opts.Metrics != nil {
		r.Use(metricsMiddleware(opts.Metrics))
	}

	health := &handlers.HealthHandler{Ping: opts.Ping}
	r.HandleFunc("/health", health.Health)

	handlers.NewPickupHandler(opts.Service).Routes(r)

	return r
}
