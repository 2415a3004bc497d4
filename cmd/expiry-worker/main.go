package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/savebox/box-orders/internal/adapters/postgres"
	"github.com/savebox/box-orders/internal/adapters/rabbit"
	redisadapter "github.com/savebox/box-orders/internal/adapters/redis"
	"github.com/savebox/box-orders/internal/config"
	"github.com/savebox/box-orders/internal/observability"
	"golang.org/x/sync/errgroup"
)

const sweepBatchSize = 100

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()
	repo := postgres.NewRepository(pool)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	cache := redisadapter.NewCache(redisClient)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()
	rabbitPub, err := rabbit.NewPublisher(conn)
	if err != nil {
		log.Fatalf("failed to create publisher: %v", err)
	}

	worker := NewSweeper(repo, cache, rabbitPub, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go worker.Run(ctx, cfg.SweepInterval)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown expiry sweeper")
}

// Sweeper periodically returns boxes with lapsed reservations to active.
// The reserve path reclaims lapsed holds inline too; the sweep exists so a
// lapsed box does not look reserved to listers until someone touches it.
type Sweeper struct {
	repo      *postgres.Repository
	cache     *redisadapter.Cache
	rabbitPub *rabbit.Publisher
	logger    observability.Logger
}

func NewSweeper(repo *postgres.Repository, cache *redisadapter.Cache, rabbitPub *rabbit.Publisher, logger observability.Logger) *Sweeper {
	return &Sweeper{repo: repo, cache: cache, rabbitPub: rabbitPub, logger: logger}
}

func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			boxIDs, err := s.repo.GetExpiredBoxIDs(ctx, now, sweepBatchSize)
			if err != nil {
				s.logger.Error("failed to list expired reservations", err)
				continue
			}

			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(8)
			for _, boxID := range boxIDs {
				boxID := boxID
				g.Go(func() error {
					if err := s.releaseWithRetry(gctx, boxID); err != nil {
						s.logger.WithField("box_id", boxID).Error("failed to release expired reservation", err)
					}
					return nil
				})
			}
			g.Wait()
		}
	}
}

func (s *Sweeper) releaseWithRetry(ctx context.Context, boxID int64) error {
	maxRetries := 3
	for i := 0; i < maxRetries; i++ {
		released, err := s.repo.Release(ctx, boxID, time.Now())
		if err != nil {
			backoff := time.Duration(1<<i) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				continue
			}
		}
		if !released {
			// Someone beat us to it: sold or already reclaimed.
			return nil
		}
		observability.ExpiredReservationsReleased.Inc()

		if err := s.cache.ReleaseBoxLock(ctx, boxID); err != nil {
			s.logger.WithField("box_id", boxID).Warn("failed to release box lock", err)
		}

		payload, _ := json.Marshal(map[string]interface{}{"box_id": boxID})
		msg := amqp.Publishing{
			MessageId:   uuid.New().String(),
			ContentType: "application/json",
			Body:        payload,
		}
		return s.rabbitPub.Publish(ctx, "box.released", msg)
	}
	return fmt.Errorf("failed after %d retries", maxRetries)
}
