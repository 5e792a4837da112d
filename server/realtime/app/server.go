package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"social_server/server/common/infra/cache"
	"social_server/server/common/infra/db"
	"social_server/server/common/infra/mq"
	"social_server/server/realtime/api"
	"social_server/server/realtime/repository"
	"social_server/server/realtime/service"
)

type Server struct {
	HTTPServer *http.Server
	Pool       *pgxpool.Pool
	Redis      *redis.Client
	MQConn     *amqp.Connection
	Publisher  *service.AMQPPublisher
	Hub        *service.Hub

	stopSweep func()
}

func NewServer(cfg Config) (*Server, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("initialize postgres: %w", err)
	}
	if err := repository.EnsureSchema(ctx, pool); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	var redisClient *redis.Client
	if cfg.UseRedis {
		redisClient = cache.NewClient(cfg.RedisAddr)
		if err := cache.Ping(ctx, redisClient); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
	}

	var (
		mqConn    *amqp.Connection
		publisher *service.AMQPPublisher
	)
	if cfg.UseMQ {
		mqConn, err = mq.NewConnection(cfg.AMQPURL)
		if err != nil {
			return nil, fmt.Errorf("initialize amqp: %w", err)
		}
		publisher, err = service.NewAMQPPublisher(mqConn)
		if err != nil {
			return nil, fmt.Errorf("initialize amqp publisher: %w", err)
		}
	}

	rooms := repository.NewRoomRepository(pool)
	messages := repository.NewMessageRepository(pool)
	reactions := repository.NewReactionRepository(pool)
	receipts := repository.NewReceiptRepository(pool)
	notifications := repository.NewNotificationRepository(pool)
	preferences := repository.NewPreferenceRepository(pool)
	posts := repository.NewPostRepository(pool)
	activities := repository.NewActivityRepository(pool)

	hub := service.NewHub(redisClient)
	if redisClient != nil {
		if err := hub.StartSubscriber(context.Background()); err != nil {
			return nil, fmt.Errorf("start hub subscriber: %w", err)
		}
	}

	notificationSvc := service.NewNotificationService(notifications, preferences, hub)
	scanner := service.NewKeywordScanner(cfg.BlockedKeywords)

	// *AMQPPublisher is a typed nil when MQ is off; pass the interface as
	// nil explicitly so the services' nil checks hold.
	var events service.EventSink
	if publisher != nil {
		events = publisher
	}

	deliverySvc := service.NewDeliveryService(
		messages, reactions, receipts, rooms, activities,
		notificationSvc, scanner, hub, events,
	)
	schedulerSvc := service.NewSchedulerService(posts, activities, notifications, notificationSvc, events)
	stopSweep := schedulerSvc.StartSweep(context.Background(), cfg.SweepInterval)

	gateway := service.NewGateway(hub, deliverySvc)

	h := api.NewHandler(deliverySvc, notificationSvc, schedulerSvc, gateway, rooms, cfg.JWTSecret, cfg.JWTTTLMinutes)
	r := gin.Default()
	h.RegisterRoutes(r)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		HTTPServer: httpServer,
		Pool:       pool,
		Redis:      redisClient,
		MQConn:     mqConn,
		Publisher:  publisher,
		Hub:        hub,
		stopSweep:  stopSweep,
	}, nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.stopSweep != nil {
		s.stopSweep()
	}
	if s.Hub != nil {
		s.Hub.StopSubscriber()
	}
	if s.Publisher != nil {
		s.Publisher.Close()
	}
	if s.MQConn != nil {
		_ = s.MQConn.Close()
	}
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	if s.Pool != nil {
		s.Pool.Close()
	}
	return s.HTTPServer.Shutdown(ctx)
}
