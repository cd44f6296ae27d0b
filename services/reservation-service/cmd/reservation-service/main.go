package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/smkwon/courtbook/libs/config"
	"github.com/smkwon/courtbook/libs/httpx"
	"github.com/smkwon/courtbook/libs/kafkax"
	otelx "github.com/smkwon/courtbook/libs/otel"
	"github.com/smkwon/courtbook/libs/runtime"
	"github.com/smkwon/courtbook/services/reservation-service/internal/booking"
	"github.com/smkwon/courtbook/services/reservation-service/internal/handlers"
	"github.com/smkwon/courtbook/services/reservation-service/internal/outbox"
	"github.com/smkwon/courtbook/services/reservation-service/internal/sheetstore"
)

func main() {
	service := config.String("SERVICE_NAME", "reservation-service")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	backend, sheetsReady, err := openBackend(ctx, logger)
	if err != nil {
		logger.Error("sheets backend init failed", "err", err)
		panic(err)
	}

	store, err := sheetstore.Open(ctx, backend, sheetstore.Config{
		LockTTL:      config.Duration("LOCK_TTL", 30*time.Second),
		LockAttempts: config.Int("LOCK_ATTEMPTS", 5),
		LockBackoff:  config.Duration("LOCK_BACKOFF", 500*time.Millisecond),
	})
	if err != nil {
		logger.Error("store init failed", "err", err)
		panic(err)
	}

	events, err := outbox.OpenRepository(ctx, backend)
	if err != nil {
		logger.Error("events worksheet init failed", "err", err)
		panic(err)
	}

	kafkaBrokers := config.String("KAFKA_BROKERS", "")
	publisher := outbox.NewPublisher(events, logger, outbox.PublisherConfig{
		Brokers:   kafkaBrokers,
		PollEvery: config.Duration("EVENT_POLL_EVERY", 2*time.Second),
		BatchSize: config.Int("EVENT_BATCH_SIZE", 50),
	})
	go publisher.Run(ctx)

	svc := booking.NewService(store, events, logger)
	reservationHandler := handlers.NewReservationHandler(svc, logger)
	adminHandler := handlers.NewAdminHandler(logger, store, events)

	checks := []runtime.ReadyCheck{}
	if sheetsReady != nil {
		checks = append(checks, runtime.ReadyCheck{Name: "sheets", Check: sheetsReady})
	}
	if kafkaBrokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(kafkaBrokers)})
	}

	var limiter *httpx.RedisRateLimiter
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		limiter = httpx.NewRedisRateLimiter(rdb,
			config.Int("RATE_LIMIT", 30),
			config.Duration("RATE_LIMIT_WINDOW", time.Minute),
			"courtbook",
		)
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	mux := runtime.NewBaseMuxWithReady(checks...)

	authed := handlers.RequireUser(config.String("JWT_SECRET", ""))
	api := func(h http.HandlerFunc) http.Handler { return authed(h) }
	mutating := func(h http.HandlerFunc) http.Handler {
		if limiter == nil {
			return authed(h)
		}
		return limiter.Middleware(logger, true)(authed(h))
	}

	mux.Handle("/api/v1/schedule", api(reservationHandler.Schedule))
	mux.Handle("/api/v1/reservations", mutating(reservationHandler.Book))
	mux.Handle("/api/v1/reservations/cancel", mutating(reservationHandler.Cancel))
	mux.Handle("/api/v1/reservations/mine", api(reservationHandler.Mine))
	mux.Handle("/api/v1/export", api(reservationHandler.Export))
	mux.Handle("/api/v1/admin/reset", api(adminHandler.Reset))

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "reservation")

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

// openBackend selects the worksheet backend. The memory backend exists so the
// service can run locally without a spreadsheet or credentials.
func openBackend(ctx context.Context, logger *slog.Logger) (sheetstore.Backend, func(context.Context) error, error) {
	if config.String("SHEETS_BACKEND", "google") == "memory" {
		logger.Warn("using in-memory sheets backend; data is lost on restart")
		return sheetstore.NewMemoryBackend(), nil, nil
	}
	spreadsheetID, err := config.RequiredString("SHEETS_SPREADSHEET_ID")
	if err != nil {
		return nil, nil, err
	}
	backend, err := sheetstore.OpenGoogleBackend(ctx, spreadsheetID,
		config.String("SHEETS_CREDENTIALS_FILE", ""),
		config.String("SHEETS_CREDENTIALS_JSON", ""))
	if err != nil {
		return nil, nil, err
	}
	return backend, backend.ReadyCheck(), nil
}
