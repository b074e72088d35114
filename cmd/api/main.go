package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/mealhub/api/internal/di"
	"github.com/mealhub/api/internal/handlers"
	"github.com/mealhub/api/internal/payments"
	"github.com/mealhub/api/internal/platform/auth"
	"github.com/mealhub/api/internal/platform/config"
	pfirestore "github.com/mealhub/api/internal/platform/firestore"
	"github.com/mealhub/api/internal/platform/jobs"
	"github.com/mealhub/api/internal/platform/observability"
	"github.com/mealhub/api/internal/services"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	if _, err := firestoreProvider.Client(ctx); err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		if err := firestoreProvider.Close(); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	processor, err := newPaymentProcessor(cfg.Payments, logger)
	if err != nil {
		logger.Fatal("failed to initialise payment processor", zap.Error(err))
	}

	publisher, closePublisher, err := newEventPublisher(ctx, cfg.PubSub, logger)
	if err != nil {
		logger.Fatal("failed to initialise event publisher", zap.Error(err))
	}
	defer closePublisher()

	container, err := di.NewContainer(ctx, cfg, di.Deps{
		Provider: firestoreProvider,
		Payments: processor,
		Events:   publisher,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("failed to build dependency container", zap.Error(err))
	}

	authenticator, err := newAuthenticator(ctx, cfg.Firebase, logger)
	if err != nil {
		logger.Fatal("failed to initialise authenticator", zap.Error(err))
	}

	orderHandlers, err := handlers.NewOrderHandlers(container.Services.Orders)
	if err != nil {
		logger.Fatal("failed to build order handlers", zap.Error(err))
	}
	shopHandlers, err := handlers.NewShopOrderHandlers(container.Services.Orders)
	if err != nil {
		logger.Fatal("failed to build shop handlers", zap.Error(err))
	}
	shipperHandlers, err := handlers.NewShipperOrderHandlers(container.Services.Orders)
	if err != nil {
		logger.Fatal("failed to build shipper handlers", zap.Error(err))
	}
	maintenanceHandlers, err := handlers.NewMaintenanceHandlers(container.Services.Maintenance)
	if err != nil {
		logger.Fatal("failed to build maintenance handlers", zap.Error(err))
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthVersion(buildVersion()),
		handlers.WithReadinessCheck("firestore", func(ctx context.Context) error {
			_, err := firestoreProvider.Client(ctx)
			return err
		}),
	)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger.Named("http")),
			observability.RecoveryMiddleware(logger.Named("http")),
			observability.RequestLoggerMiddleware(),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithOrderRoutes(orderHandlers.Routes()),
		handlers.WithShopRoutes(shopHandlers.Routes()),
		handlers.WithShipperRoutes(shipperHandlers.Routes()),
		handlers.WithInternalRoutes(maintenanceHandlers.Routes()),
		handlers.WithAuthMiddlewares(authenticator.RequireAuth()),
		handlers.WithInternalMiddlewares(auth.RequireInternalToken(cfg.Server.InternalToken)),
	)

	if cfg.Backfill.RunOnStartup {
		go runStartupBackfill(ctx, container.Services.Maintenance, logger)
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("mealhub api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newPaymentProcessor(cfg config.PaymentsConfig, logger *zap.Logger) (payments.Processor, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "noop":
		return payments.NewNoopProcessor(logger.Named("payments")), nil
	case "stripe":
		return payments.NewStripeProcessor(payments.StripeConfig{
			APIKey: cfg.StripeAPIKey,
			Logger: logger.Named("payments"),
		})
	default:
		return nil, fmt.Errorf("unsupported payments provider %q", cfg.Provider)
	}
}

// newEventPublisher builds the Pub/Sub order event publisher. When Pub/Sub is
// disabled the service runs without event publishing at all.
func newEventPublisher(ctx context.Context, cfg config.PubSubConfig, logger *zap.Logger) (services.OrderEventPublisher, func(), error) {
	if cfg.Disabled {
		logger.Info("pubsub disabled; order events will not be published")
		return nil, func() {}, nil
	}
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, nil, errors.New("pubsub project id is required")
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("initialise pubsub client: %w", err)
	}
	topic := client.Topic(cfg.OrderTopic)

	publisher, err := jobs.NewPubSubOrderEventPublisher(topic)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	cleanup := func() {
		topic.Stop()
		if err := client.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}
	return publisher, cleanup, nil
}

func newAuthenticator(ctx context.Context, cfg config.FirebaseConfig, logger *zap.Logger) (*auth.Authenticator, error) {
	if cfg.Disabled {
		logger.Warn("token verification disabled; trusting debug identity header")
		return auth.NewAuthenticator(nil, auth.WithVerificationDisabled()), nil
	}

	verifier, err := auth.NewFirebaseVerifier(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return auth.NewAuthenticator(verifier), nil
}

// runStartupBackfill repairs orders missing the assignment field once at
// boot. The repair is idempotent, so racing a concurrently deployed replica
// is harmless.
func runStartupBackfill(ctx context.Context, maintenance services.MaintenanceService, logger *zap.Logger) {
	report, err := maintenance.RunShipperBackfill(ctx)
	if err != nil {
		logger.Error("startup shipper backfill failed", zap.Error(err))
		return
	}
	logger.Info("startup shipper backfill complete",
		zap.Int("scanned", report.Scanned),
		zap.Int("updated", report.Updated),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration),
	)
}

func buildVersion() string {
	if version := strings.TrimSpace(os.Getenv("API_BUILD_VERSION")); version != "" {
		return version
	}
	return "dev"
}
