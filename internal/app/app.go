package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"counters-back/internal/api/http/handler"
	"counters-back/internal/api/http/route"
	"counters-back/internal/apperrors"
	"counters-back/internal/config"
	"counters-back/internal/model"
	"counters-back/internal/msg/consumer"
	"counters-back/internal/msg/relay"
	"counters-back/internal/msg/transport"
	"counters-back/internal/reconciler"
	"counters-back/internal/repository"
	"counters-back/internal/service"
	"counters-back/pkg/kafka"
	"counters-back/pkg/postgres"
	"counters-back/pkg/redis"
	"counters-back/pkg/server"
)

const consumerBufferSize = 1000

type HealthRepository interface {
	Ping(ctx context.Context) error
}

type OutboxRepository interface {
	InsertEvent(ctx context.Context, ext repository.RepoExtension, event model.OutboxEvent) error
	SelectPendingBatch(ctx context.Context, ext repository.RepoExtension, batchSize int) ([]model.OutboxEvent, error)
	MarkDone(ctx context.Context, ext repository.RepoExtension, eventID uuid.UUID) error
	MarkError(ctx context.Context, ext repository.RepoExtension, eventID uuid.UUID, lastError string) error
	MarkRejected(ctx context.Context, ext repository.RepoExtension, eventID uuid.UUID, lastError string) error
	RequeueErrors(ctx context.Context, ext repository.RepoExtension, olderThan time.Duration) (int64, error)
}

type MessageRepository interface {
	Pool() *pgxpool.Pool
	InsertMessage(ctx context.Context, ext repository.RepoExtension, message *model.Message) error
	CountUnreadSince(ctx context.Context, ext repository.RepoExtension, conversationKey string, toUser uuid.UUID, since time.Time) (int64, error)
}

type CounterRepository interface {
	MarkEventSeen(ctx context.Context, eventID uuid.UUID) (bool, error)
	ClearEventSeen(ctx context.Context, eventID uuid.UUID) error
	IncrementUnread(ctx context.Context, userID, peerID uuid.UUID) error
	DecrementUnread(ctx context.Context, userID, peerID uuid.UUID, peerDelta, totalDelta int64, lastRead time.Time) error
	TotalUnread(ctx context.Context, userID uuid.UUID) (int64, error)
	PeerUnread(ctx context.Context, userID, peerID uuid.UUID) (int64, error)
	LastRead(ctx context.Context, userID, peerID uuid.UUID) (time.Time, error)
	Counters(ctx context.Context, userID uuid.UUID) (*model.CounterState, error)
	UsersWithPeers(ctx context.Context) ([]uuid.UUID, error)
	Peers(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	SetPeerUnread(ctx context.Context, userID, peerID uuid.UUID, count int64) error
	SetTotalUnread(ctx context.Context, userID uuid.UUID, total int64) error
}

type HealthService interface {
	IsOK(ctx context.Context) error
}

type CounterService interface {
	GetCounters(ctx context.Context, userID uuid.UUID) (*model.CounterState, error)
	GetPeerCounter(ctx context.Context, userID, peerID uuid.UUID) (*model.PeerCounter, error)
	MarkRead(ctx context.Context, req model.MarkReadRequest) (*model.MarkReadResponse, error)
}

type MessageService interface {
	Send(ctx context.Context, req model.SendMessageRequest) (*model.Message, error)
}

type ApplyService interface {
	ApplyMessageSent(ctx context.Context, event model.MessageSentEvent) (bool, error)
	ApplyMessagesRead(ctx context.Context, event model.MessagesReadEvent) (bool, error)
}

type HealthHandler interface {
	Ping(c *gin.Context)
	Health(c *gin.Context)
}

type CounterHandler interface {
	GetCounters(c *gin.Context)
	GetPeerCounter(c *gin.Context)
	MarkRead(c *gin.Context)
	StreamCounters(c *gin.Context)
}

type EventHandler interface {
	MessageSent(c *gin.Context)
	MessagesRead(c *gin.Context)
}

type MessageHandler interface {
	SendMessage(c *gin.Context)
}

type Runner interface {
	Run(ctx context.Context)
}

type Subscriber interface {
	Run(ctx context.Context)
	Stop() error
}

type App struct {
	Cfg        *config.Config
	Log        *zap.Logger
	Handler    *Handler
	Service    *Service
	DB         postgres.Postgres
	RDB        redis.Redis
	HTTPServer server.HTTPServer
	EBus       *EBus

	loops     sync.WaitGroup
	stopLoops context.CancelFunc
}

type Repository struct {
	HealthRepository  HealthRepository
	OutboxRepository  OutboxRepository
	MessageRepository MessageRepository
	CounterRepository CounterRepository
}

type Service struct {
	HealthService  HealthService
	CounterService CounterService
	MessageService MessageService
	ApplyService   ApplyService
}

type Handler struct {
	HealthHandler  HealthHandler
	CounterHandler CounterHandler
	EventHandler   EventHandler
	MessageHandler MessageHandler
}

// EBus holds the background side of the pipeline: the outbox relay, the
// broker subscriber (kafka mode only) and the reconciler.
type EBus struct {
	Relay      Runner
	Subscriber Subscriber
	Reconciler Runner
	Producer   kafka.Producer
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	db, err := initDB(&cfg.Database)
	if err != nil {
		log.Error("Failed to initialize database", zap.Error(err))
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	rdb, err := initRedis(&cfg.Redis)
	if err != nil {
		log.Error("Failed to initialize redis", zap.Error(err))
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	repo := initRepository(log, cfg, db, rdb)

	svc := initService(log, repo)

	hdl := initHandler(log, svc)

	httpServer := initHTTPServer(log, cfg, hdl)

	eBus, err := initEBus(log, cfg, repo, svc)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ebus: %w", err)
	}

	return &App{
		Cfg:        cfg,
		Log:        log,
		Handler:    hdl,
		Service:    svc,
		DB:         db,
		RDB:        rdb,
		HTTPServer: httpServer,
		EBus:       eBus,
	}, nil
}

func MustNew(cfg *config.Config, log *zap.Logger) *App {
	app, err := New(cfg, log)
	if err != nil {
		panic(err)
	}
	return app
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	a.stopLoops = cancel

	errs := make(chan error, 1)
	defer close(errs)

	go func() {
		if err := a.HTTPServer.Run(); err != nil {
			errs <- err
		}
	}()

	a.loops.Add(1)

	go func() {
		defer a.loops.Done()
		a.EBus.Relay.Run(ctx)
	}()

	if a.EBus.Subscriber != nil {
		a.loops.Add(1)

		go func() {
			defer a.loops.Done()
			a.EBus.Subscriber.Run(ctx)
		}()
	}

	a.loops.Add(1)

	go func() {
		defer a.loops.Done()
		a.EBus.Reconciler.Run(ctx)
	}()

	if err := <-errs; err != nil {
		return err
	}

	return nil
}

// Shutdown stops the HTTP server and the background loops, waits for the
// loops to finish their current iteration, and only then closes the stores
// they write to.
func (a *App) Shutdown() error {
	err := apperrors.ErrShutdown

	if srvErr := a.HTTPServer.Shutdown(); srvErr != nil {
		err = fmt.Errorf("%w, failed to shutdown http server: %w", err, srvErr)
	}

	a.Log.Debug("Http server shutdown")

	if a.stopLoops != nil {
		a.stopLoops()
	}

	if a.EBus.Subscriber != nil {
		if subErr := a.EBus.Subscriber.Stop(); subErr != nil {
			err = fmt.Errorf("%w, failed to stop subscriber: %w", err, subErr)
		}

		a.Log.Debug("Subscriber stopped")
	}

	a.loops.Wait()
	a.Log.Debug("Background loops drained")

	if a.EBus.Producer != nil {
		if prodErr := a.EBus.Producer.Close(); prodErr != nil {
			err = fmt.Errorf("%w, failed to close producer: %w", err, prodErr)
		}

		a.Log.Debug("Producer closed")
	}

	a.DB.Close()
	a.Log.Debug("Database closed")

	if rdbErr := a.RDB.Close(); rdbErr != nil {
		err = fmt.Errorf("%w, failed to close RDB: %w", err, rdbErr)
	}

	a.Log.Debug("Redis closed")

	if !errors.Is(err, apperrors.ErrShutdown) {
		return err
	}

	return nil
}

func initDB(cfg *config.Database) (postgres.Postgres, error) {
	postgresCfg := &postgres.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		Name:     cfg.Name,
		SSLMode:  cfg.SSLMode,
		MaxConns: cfg.MaxConns,
		MinConns: cfg.MinConns,
		Migration: postgres.Migration{
			Path:      cfg.Migration.Path,
			AutoApply: cfg.Migration.AutoApply,
		},
	}

	db, err := postgres.New(postgresCfg)
	if err != nil {
		return nil, err
	}

	return db, nil
}

func initRedis(cfg *config.Redis) (redis.Redis, error) {
	redisCfg := &redis.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	rdb, err := redis.New(redisCfg)
	if err != nil {
		return nil, err
	}

	return rdb, nil
}

func initRepository(log *zap.Logger, cfg *config.Config, db postgres.Postgres, rdb redis.Redis) *Repository {
	healthRepo := repository.NewHealthRepository(db.Pool())
	log.Debug("Health repository initialized")

	outboxRepo := repository.NewOutboxRepository(db.Pool())
	log.Debug("Outbox repository initialized")

	messageRepo := repository.NewMessageRepository(db.Pool())
	log.Debug("Message repository initialized")

	counterRepo := repository.NewCounterRepository(rdb, cfg.Consumer.DedupTTL)
	log.Debug("Counter repository initialized")

	return &Repository{
		HealthRepository:  healthRepo,
		OutboxRepository:  outboxRepo,
		MessageRepository: messageRepo,
		CounterRepository: counterRepo,
	}
}

func initService(log *zap.Logger, repo *Repository) *Service {
	healthSvc := service.NewHealthService(repo.HealthRepository)
	log.Debug("Health service initialized")

	counterSvc := service.NewCounterService(log, repo.CounterRepository, repo.OutboxRepository)
	log.Debug("Counter service initialized")

	messageSvc := service.NewMessageService(log, repo.MessageRepository, repo.OutboxRepository)
	log.Debug("Message service initialized")

	applySvc := service.NewApplyService(log, repo.CounterRepository)
	log.Debug("Apply service initialized")

	return &Service{
		HealthService:  healthSvc,
		CounterService: counterSvc,
		MessageService: messageSvc,
		ApplyService:   applySvc,
	}
}

func initHandler(log *zap.Logger, svc *Service) *Handler {
	healthHandler := handler.NewHealthHandler(log, svc.HealthService)
	log.Debug("Health handler initialized")

	counterHandler := handler.NewCounterHandler(log, svc.CounterService)
	log.Debug("Counter handler initialized")

	eventHandler := handler.NewEventHandler(log, svc.ApplyService)
	log.Debug("Event handler initialized")

	messageHandler := handler.NewMessageHandler(log, svc.MessageService)
	log.Debug("Message handler initialized")

	return &Handler{
		HealthHandler:  healthHandler,
		CounterHandler: counterHandler,
		EventHandler:   eventHandler,
		MessageHandler: messageHandler,
	}
}

func initHTTPServer(log *zap.Logger, cfg *config.Config, hdl *Handler) server.HTTPServer {
	router := route.SetupRouter(
		log,
		cfg,
		hdl.HealthHandler,
		hdl.CounterHandler,
		hdl.EventHandler,
		hdl.MessageHandler,
	)

	httpServer := server.NewHTTPServer(
		server.WithAddr(cfg.HTTPServer.Host, cfg.HTTPServer.Port),
		server.WithTimeout(cfg.HTTPServer.Timeout.Read, cfg.HTTPServer.Timeout.Write, cfg.HTTPServer.Timeout.Idle),
		server.WithHandler(router),
	)

	return httpServer
}

func initEBus(log *zap.Logger, cfg *config.Config, repo *Repository, svc *Service) (*EBus, error) {
	eBus := &EBus{}

	var publisher transport.Publisher

	switch cfg.Transport.Mode {
	case config.TransportModeKafka:
		producer, err := kafka.NewProducer(
			cfg.Kafka.Brokers,
			kafka.WithBalancer(kafka.Hash),
			kafka.WithRequiredAcks(kafka.RequireAll),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to init kafka producer: %w", err)
		}

		log.Debug("Kafka producer initialized")

		eBus.Producer = producer
		publisher = transport.NewKafkaPublisher(producer, cfg.Kafka.Topic)

		consumerGroup, err := kafka.NewConsumerGroupRunner(
			cfg.Kafka.Brokers,
			cfg.Kafka.GroupID,
			[]string{cfg.Kafka.Topic},
			consumerBufferSize,
			kafka.WithBalancerConsumer(kafka.RoundrobinBalanceStrategy),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create consumer group: %w", err)
		}

		eBus.Subscriber = consumer.NewSubscriber(
			log,
			cfg.Consumer.Name,
			cfg.Consumer.WorkerCount,
			consumerGroup,
			svc.ApplyService,
		)

		log.Debug("Subscriber initialized")
	case config.TransportModeDirect:
		publisher = transport.NewDirectPublisher(cfg.Transport.DirectEndpoint, cfg.Transport.DirectTimeout)
		log.Debug("Direct publisher initialized")
	default:
		return nil, fmt.Errorf("unknown transport mode: %s", cfg.Transport.Mode)
	}

	relayCfg := relay.Config{
		Name:         cfg.Relay.Name,
		PollInterval: cfg.Relay.PollInterval,
		BatchSize:    cfg.Relay.BatchSize,
		ErrorBackoff: cfg.Relay.ErrorBackoff,
		RequeueAfter: cfg.Relay.RequeueAfter,
	}

	eBus.Relay = relay.New(log, relayCfg, repo.OutboxRepository, publisher)
	log.Debug("Relay initialized")

	reconcilerCfg := reconciler.Config{
		Enable:   cfg.Reconciler.Enable,
		Interval: cfg.Reconciler.Interval,
	}

	eBus.Reconciler = reconciler.New(log, reconcilerCfg, repo.CounterRepository, repo.MessageRepository)
	log.Debug("Reconciler initialized")

	return eBus, nil
}
