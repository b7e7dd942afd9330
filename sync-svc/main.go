package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"overcooked-staffsync/config"
	httpapi "overcooked-staffsync/sync-svc/internal/api/http"
	"overcooked-staffsync/sync-svc/internal/feed"
	"overcooked-staffsync/sync-svc/internal/metrics"
	"overcooked-staffsync/sync-svc/internal/service"
	"overcooked-staffsync/sync-svc/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"
)

func main() {
	settings := config.LoadSettings()
	if settings.LocationID == "" {
		log.Fatal("LOCATION_ID is required")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "sync-svc")
	slog.SetDefault(logger)

	db := config.MustInitPostgres(settings)
	defer db.Close()

	rdb := config.MustInitRedis(settings)
	defer rdb.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	transport := storage.NewKafkaTransport(settings.KafkaBrokers, settings.FeedTopic, settings.StaleAfter,
		func(partition int) *kafka.Reader { return config.NewKafkaReader(settings, partition) }, logger)
	transport.IdleHeartbeat = settings.HeartbeatInterval

	session := service.NewSession(
		storage.NewPostgresBackend(db),
		transport,
		storage.NewRedisPresence(rdb, settings.PresenceTTL),
		service.Config{
			StaffID:       settings.StaffID,
			ActionTimeout: settings.ActionTimeout,
			HistoryWindow: settings.HistoryWindow,
			Feed: feed.Options{
				Backoff: feed.Backoff{
					Base:   settings.BackoffBase,
					Max:    settings.BackoffMax,
					Factor: 2,
					Jitter: 0.2,
				},
				HeartbeatInterval: settings.HeartbeatInterval,
				StaleAfter:        settings.StaleAfter,
			},
		},
		logger, m)

	handler := httpapi.NewHandler(session, session.Gateway(),
		service.DefaultQRGenerator{BaseURL: settings.PublicBaseURL})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	// request contexts end with the process so event streams let Shutdown finish
	server := &http.Server{
		Addr:              settings.HTTPAddr,
		Handler:           httpapi.NewRouter(handler, reg),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g.Go(func() error {
		return session.Run(ctx, settings.LocationID)
	})
	g.Go(func() error {
		log.Printf("Sync Service starting on %s", settings.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal("Sync Service stopped:", err)
	}
}
