package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"overcooked-staffsync/config"
	"overcooked-staffsync/relay-svc/internal/relay"

	"github.com/lib/pq"
	"golang.org/x/sync/errgroup"
)

func main() {
	settings := config.LoadSettings()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "relay-svc")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db := config.MustInitPostgres(settings)
	if err := relay.EnsureSchema(ctx, db, settings.NotifyChannel); err != nil {
		log.Fatal("Failed to prepare schema:", err)
	}
	db.Close()

	listener := pq.NewListener(settings.PostgresDSN(), 10*time.Second, time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				logger.Warn("listener event", "event", ev, "error", err)
			}
		})
	defer listener.Close()
	if err := listener.Listen(settings.NotifyChannel); err != nil {
		log.Fatal("Failed to listen on notify channel:", err)
	}

	writer := config.NewKafkaWriter(settings)
	defer writer.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("Relay Service forwarding %q to topic %s", settings.NotifyChannel, settings.FeedTopic)
		return relay.New(listener, writer, logger).Run(ctx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal("Relay Service stopped:", err)
	}
}
