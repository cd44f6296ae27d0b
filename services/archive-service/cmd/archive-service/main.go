package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/smkwon/courtbook/libs/config"
	"github.com/smkwon/courtbook/libs/db"
	"github.com/smkwon/courtbook/libs/kafkax"
	otelx "github.com/smkwon/courtbook/libs/otel"
	"github.com/smkwon/courtbook/libs/runtime"
	"github.com/smkwon/courtbook/services/archive-service/internal/consumer"
	"github.com/smkwon/courtbook/services/archive-service/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "archive-service")
	port, err := config.Port("PORT", "8081")
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

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	repo := storage.NewRepository(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		logger.Error("schema init failed", "err", err)
		panic(err)
	}

	brokers := config.String("KAFKA_BROKERS", "")
	groupID := config.String("KAFKA_GROUP_ID", "archive-service")
	for _, topic := range []string{"reservation.booked.v1", "reservation.cancelled.v1"} {
		c := consumer.New(logger, repo, consumer.Config{
			Brokers: brokers,
			GroupID: groupID,
			Topic:   topic,
		}, archiveEvent(repo, logger))
		go c.Run(ctx)
	}

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
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

func archiveEvent(repo *storage.Repository, logger *slog.Logger) consumer.Handler {
	return func(ctx context.Context, meta kafkax.EventMeta, msg kafka.Message) error {
		var payload struct {
			Date        string `json:"date"`
			Court       string `json:"court"`
			BlockID     string `json:"block_id"`
			User        string `json:"user"`
			Note        string `json:"note"`
			CancelledBy string `json:"cancelled_by"`
			CreatedAt   string `json:"created_at"`
			CancelledAt string `json:"cancelled_at"`
		}
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			// Malformed payloads are logged and dropped, not retried forever.
			logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
			return nil
		}
		if payload.Date == "" || payload.Court == "" || payload.BlockID == "" {
			logger.Error("missing required event fields", "topic", msg.Topic)
			return nil
		}

		occurredRaw := payload.CreatedAt
		actedBy := payload.User
		if meta.EventType == "reservation.cancelled.v1" {
			occurredRaw = payload.CancelledAt
			actedBy = payload.CancelledBy
		}
		occurredAt, err := time.Parse(time.RFC3339, occurredRaw)
		if err != nil {
			occurredAt = time.Now().UTC()
		}

		return repo.InsertHistory(ctx, storage.HistoryEntry{
			EventID:    meta.EventID,
			EventType:  meta.EventType,
			Date:       payload.Date,
			Court:      payload.Court,
			BlockID:    payload.BlockID,
			User:       payload.User,
			Note:       payload.Note,
			ActedBy:    actedBy,
			OccurredAt: occurredAt,
		})
	}
}
