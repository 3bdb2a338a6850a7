package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/example/accessiride/internal/booking"
	"github.com/example/accessiride/internal/cabservice"
	"github.com/example/accessiride/internal/config"
	"github.com/example/accessiride/internal/directions"
	"github.com/example/accessiride/internal/dispatch"
	httpapi "github.com/example/accessiride/internal/http"
	"github.com/example/accessiride/internal/ingest"
	"github.com/example/accessiride/internal/logging"
	"github.com/example/accessiride/internal/models"
	"github.com/example/accessiride/internal/payments"
	"github.com/example/accessiride/internal/storage"
	"github.com/example/accessiride/internal/trip"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	flags := pflag.NewFlagSet("accessiride", pflag.ContinueOnError)
	addr := flags.String("addr", cfg.HTTPAddr, "address to listen on")
	providersFile := flags.String("providers", "", "YAML file listing cab providers")
	logLevel := flags.String("log-level", cfg.LogLevel, "debug, info, warn or error")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}
	if *providersFile != "" {
		providers, err := config.LoadProviders(*providersFile)
		if err != nil {
			return err
		}
		cfg.Providers = providers
	}

	logger := logging.NewLogger(*logLevel, cfg.LogFormat).With("instance", cfg.InstanceID)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := storage.Connect(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	kv := storage.NewRetryingKV(backend.KV, cfg.StoreWriteAttempts, cfg.StoreRetryDelay, logger)
	defer kv.Close()

	store := storage.Open(ctx, kv, storage.Options{
		Namespace: cfg.Store.Namespace,
		Logger:    logger,
		Index:     backend.Index,
		Origin:    cfg.InstanceID,
	})

	hub := dispatch.NewHub(logger)
	bcfg := booking.Config{
		Providers:    cfg.Providers,
		PollInterval: cfg.CabPollInterval,
		RunTimeout:   cfg.CabRunTimeout,
		MaxLifetime:  cfg.CabMaxLifetime,
		Currency:     cfg.FareCurrency,
		Requester:    booking.Requester{Name: cfg.RequesterName, Phone: cfg.RequesterPhone},
		Logger:       logger,
	}
	if h := payments.NewStripeHolder(cfg.StripeAPIKey); h != nil {
		bcfg.Holder = h
	} else {
		logger.Info("fare holds disabled, STRIPE_API_KEY not set")
	}
	bookings := booking.NewManager(cabservice.NewClient(cfg.CabServiceURL, cfg.CabHTTPTimeout), bcfg)
	bookings.Subscribe(hub.Publish)

	var publisher *ingest.Publisher
	mirrorDone := make(chan struct{})
	if len(cfg.KafkaBrokers) > 0 {
		publisher = ingest.NewPublisher(ingest.NewKafkaWriter(cfg.KafkaBrokers), cfg.KafkaReportsTopic, cfg.KafkaOutcomesTopic, logger)
		store.Subscribe(publisher.PublishReport)
		bookings.OnOutcome(publisher.PublishOutcome)
		logger.Info("kafka publishing enabled", "brokers", cfg.KafkaBrokers)
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.MirrorReports {
		reader := ingest.NewKafkaReader(cfg.KafkaBrokers, cfg.KafkaReportsTopic, cfg.KafkaGroup)
		go func() {
			defer close(mirrorDone)
			defer reader.Close()
			logger.Info("mirroring report events", "topic", cfg.KafkaReportsTopic, "group", cfg.KafkaGroup)
			ingest.Consume(ctx, reader, store, cfg.InstanceID, logger)
		}()
	} else {
		close(mirrorDone)
	}

	dir := directions.NewClient(cfg.DirectionsEndpoint, cfg.MapsAPIKey, cfg.DirectionsTimeout, cfg.DirectionsCacheTTL, logger)
	if dir.State() != models.StateReady {
		logger.Warn("directions unavailable, GOOGLE_MAPS_API_KEY not set")
	}
	trips := trip.NewCoordinator(dir, store, trip.Config{HazardRadius: cfg.HazardRadiusM, Logger: logger})

	api := httpapi.NewServer(httpapi.Deps{
		Store:          store,
		Bookings:       bookings,
		Trips:          trips,
		Geocoder:       dir,
		Hub:            hub,
		HazardRadius:   cfg.HazardRadiusM,
		Ready:          backend.Ping,
		AllowedOrigins: cfg.CORSOrigins,
		Logger:         logger,
	})
	srv := &http.Server{
		Addr:         *addr,
		Handler:      api,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("accessiride listening", "addr", *addr, "providers", len(cfg.Providers), "backend", backend.Name)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	bookings.CloseAll()
	hub.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	select {
	case <-mirrorDone:
	case <-shutdownCtx.Done():
		logger.Warn("report mirror did not stop before shutdown timeout")
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("kafka writer close", "error", err)
		}
	}
	return nil
}
