package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/evermart/eventflow/event"
	"github.com/evermart/eventflow/eventbus"
	"github.com/evermart/eventflow/infra/nats"
	"github.com/evermart/eventflow/infra/postgres"
	"github.com/evermart/eventflow/notify"
	"github.com/evermart/eventflow/publisher"
	"github.com/evermart/eventflow/sample/notifications"
	"github.com/evermart/eventflow/sample/ordering"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Create a context that we can cancel on shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dsn := os.Getenv("APP_DSN")
	if dsn == "" {
		slog.Error("APP_DSN environment variable not set")
		os.Exit(1)
	}
	natsURL := os.Getenv("APP_NATS_URL")
	if natsURL == "" {
		slog.Error("APP_NATS_URL environment variable not set")
		os.Exit(1)
	}

	// Infrastructure
	db, err := postgres.NewDB(ctx, dsn)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("Database connection established")

	if err := db.EnsureSchema(ctx); err != nil {
		slog.Error("Failed to ensure schema", "error", err)
		os.Exit(1)
	}

	transport, err := nats.NewTransport(natsURL)
	if err != nil {
		slog.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer transport.Close()
	slog.Info("NATS connection established")

	// Event type registry is closed at start-up.
	registry := event.NewRegistry()
	ordering.RegisterEvents(registry)

	bus := eventbus.New(transport, registry, "eventflowd")

	// Core services
	eventLog := postgres.NewEventLogStore(db)
	guard := postgres.NewClientRequestStore(db)
	transactor := postgres.NewResilientTransactor(db)
	pub := publisher.New(eventLog, bus)

	orders := ordering.NewStore(db)
	service := ordering.NewService(orders, pub, transactor, guard)

	hub := notify.NewHub()
	notifier := notifications.New(hub)

	// Static subscription registry, built before the bus starts.
	if err := bus.Subscribe(ordering.OrderStarted{}.EventType(), ordering.PaymentHandler(service)); err != nil {
		slog.Error("Failed to register handler", "error", err)
		os.Exit(1)
	}
	if err := bus.Subscribe(ordering.OrderStatusChangedToPaid{}.EventType(), notifier.OrderPaidHandler()); err != nil {
		slog.Error("Failed to register handler", "error", err)
		os.Exit(1)
	}
	if err := bus.Start(ctx); err != nil {
		slog.Error("Failed to start event bus", "error", err)
		os.Exit(1)
	}

	// Background sweep of failed and orphaned event-log entries.
	sweeper := publisher.NewSweeper(pub, db, 50, 10*time.Second, time.Minute)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	// Demo flow: place one order and watch it travel the whole substrate.
	sub := notifier.Subscribe("buyer-42", func(ctx context.Context) error {
		slog.InfoContext(ctx, "Buyer notified of order status change", "buyerID", "buyer-42")
		return nil
	})
	defer sub.Close()

	if _, err := service.PlaceOrder(ctx, "buyer-42", []ordering.OrderLine{
		{ProductID: uuid.New(), Units: 2, UnitPrice: decimal.NewFromFloat(19.90)},
	}); err != nil {
		slog.Error("Failed to place order", "error", err)
	}

	slog.Info("eventflowd running")
	<-ctx.Done()
	slog.Info("Shutting down")
}
