package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"
	_ "time/tzdata"

	"venue-pickup-service/internal/adapters/cache"
	"venue-pickup-service/internal/adapters/events"
	"venue-pickup-service/internal/adapters/maps"
	"venue-pickup-service/internal/adapters/memory"
	"venue-pickup-service/internal/adapters/repositories"
	"venue-pickup-service/internal/adapters/suggest"
	"venue-pickup-service/internal/api"
	"venue-pickup-service/internal/config"
	"venue-pickup-service/internal/platform/db"
	"venue-pickup-service/internal/platform/metrics"
	"venue-pickup-service/internal/platform/obs"
	"venue-pickup-service/internal/ports"
	"venue-pickup-service/internal/services"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
)

// main is the application composition root.
// It wires concrete adapters behind ports and starts the HTTP server.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}

	logger, err := obs.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	if err != nil {
		logrus.WithError(err).Fatal("build logger")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = obs.WithLogger(ctx, logrus.NewEntry(logger))

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("server stopped")
	}
}

type storage struct {
	venues     ports.VenueRepository
	ledgers    ports.LedgerRepository
	attendance ports.AttendanceSource
	ping       func(ctx context.Context) error
	// pg is set for Postgres storage; the maps caches live there too.
	pg *sql.DB
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	log := obs.Logger(ctx)
	collector := metrics.NewCollector()

	store, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	if store.pg != nil {
		defer store.pg.Close()
	}

	deps := services.Deps{
		Venues:     store.venues,
		Ledgers:    store.ledgers,
		Attendance: store.attendance,
		Metrics:    collector,
	}

	distances, closeMaps, err := openMaps(ctx, cfg, store.pg, collector)
	if err != nil {
		return err
	}
	defer closeMaps()
	deps.Distances = distances

	if cfg.OpenAI.APIKey != "" {
		sugCfg := suggest.Config{
			APIKey:      cfg.OpenAI.APIKey,
			BaseURL:     cfg.OpenAI.BaseURL,
			Model:       cfg.OpenAI.Model,
			Temperature: cfg.OpenAI.Temperature,
			CacheTTL:    cfg.SuggestionTTL,
		}
		if cfg.RedisURL != "" {
			rdb, err := cache.NewRedisClient(cfg.RedisURL)
			if err != nil {
				return err
			}
			defer rdb.Close()
			if err := rdb.Ping(ctx).Err(); err != nil {
				log.WithError(err).Warn("redis unreachable, suggestions will not be cached")
			} else {
				sugCfg.Cache = cache.NewRedisSuggestionCache(rdb)
			}
		}
		suggester, err := suggest.NewOpenAISuggester(sugCfg)
		if err != nil {
			return err
		}
		deps.Suggester = suggester
		log.WithField("model", cfg.OpenAI.Model).Info("llm suggestions enabled")
	}

	if cfg.NATS.URL != "" {
		pub, err := events.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.SubjectPrefix, collector)
		if err != nil {
			// Change events are best effort; the board still works without them.
			log.WithError(err).Warn("nats unavailable, ledger changes will not be published")
		} else {
			defer pub.Close()
			deps.Publisher = pub
		}
	}

	svc, err := services.NewPickupService(deps)
	if err != nil {
		return err
	}

	router := api.NewRouter(api.Options{
		Service:         svc,
		Logger:          logger,
		Metrics:         collector,
		RequestIDHeader: cfg.RequestIDHeader,
		Ping:            store.ping,
	})

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = collector.Serve(ctx, cfg.MetricsAddr)
	}

	// Timeouts are tuned for cold-cache leg planning (external API latency).
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{"addr": srv.Addr, "storage": cfg.Storage}).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "listen")
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	return nil
}

func openStorage(ctx context.Context, cfg *config.Config) (*storage, error) {
	log := obs.Logger(ctx)

	if cfg.Storage == config.StorageMemory {
		store := memory.NewStore()
		if cfg.SeedPath != "" {
			seed, err := repositories.ReadSeed(cfg.SeedPath)
			if err != nil {
				return nil, err
			}
			venues, err := seed.DomainVenues()
			if err != nil {
				return nil, err
			}
			for _, v := range venues {
				store.PutVenue(v)
			}
			store.AddAttendance(seed.DomainAttendance()...)
			log.WithField("venues", len(venues)).Info("memory store seeded")
		}
		return &storage{venues: store, ledgers: store, attendance: store}, nil
	}

	pg, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := repositories.InitSchema(ctx, pg); err != nil {
			_ = pg.Close()
			return nil, err
		}
		if cfg.SeedPath != "" {
			if err := repositories.SeedFromJSON(ctx, pg, cfg.SeedPath); err != nil {
				_ = pg.Close()
				return nil, err
			}
		}
		log.Info("schema ready")
	}

	venues := repositories.NewPostgresVenueRepository(pg)
	return &storage{
		venues:     venues,
		ledgers:    repositories.NewPostgresLedgerRepository(pg),
		attendance: venues,
		ping:       func(ctx context.Context) error { return db.Ping(ctx, pg) },
		pg:         pg,
	}, nil
}

// openMaps builds the Google provider when a key is configured. Caches go to
// Postgres when it is the store, otherwise to a local SQLite file.
func openMaps(ctx context.Context, cfg *config.Config, pg *sql.DB, m maps.Metrics) (ports.DistanceProvider, func(), error) {
	noop := func() {}
	if cfg.GoogleMaps.APIKey == "" {
		obs.Logger(ctx).Info("GOOGLE_MAPS_API_KEY not set, leg planning disabled")
		return nil, noop, nil
	}

	opts := []maps.Option{
		maps.WithLocale(cfg.GoogleMaps.Region, cfg.GoogleMaps.Language),
		maps.WithMetrics(m),
	}
	closeFn := noop

	if pg != nil {
		opts = append(opts, maps.WithCaches(cache.NewSQLDistanceCache(pg), cache.NewSQLGeocodeCache(pg)))
	} else {
		lite, err := cache.OpenSqlite(ctx, cfg.GoogleMaps.CachePath)
		if err != nil {
			return nil, noop, err
		}
		opts = append(opts, maps.WithCaches(cache.NewSqliteDistanceCache(lite), cache.NewSqliteGeocodeCache(lite)))
		closeFn = func() { _ = lite.Close() }
	}

	provider, err := maps.NewGoogleMapsProvider(cfg.GoogleMaps.APIKey, opts...)
	if err != nil {
		closeFn()
		return nil, noop, err
	}
	return provider, closeFn, nil
}
