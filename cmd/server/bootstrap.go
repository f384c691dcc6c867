package main

import (
	"context"
	"time"

	"github.com/ideahub/backend/internal/config"
	"github.com/ideahub/backend/internal/handlers"
	"github.com/ideahub/backend/internal/middleware"
	"github.com/ideahub/backend/internal/models"
	"github.com/ideahub/backend/internal/services"
	"github.com/ideahub/backend/internal/utils"
	"github.com/ideahub/backend/pkg/logger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// appServices holds everything the router needs plus what shutdown must stop.
type appServices struct {
	db          *gorm.DB
	hub         *services.LiveHub
	taskQueue   services.TaskQueue
	worker      *services.Worker
	scheduler   *services.ScoreScheduler
	redisClient *redis.Client
	stopRelay   context.CancelFunc
	voteLimiter *middleware.RateLimiter

	userHandler     *handlers.UserHandler
	projectHandler  *handlers.ProjectHandler
	categoryHandler *handlers.CategoryHandler
	ideaHandler     *handlers.IdeaHandler
	voteHandler     *handlers.VoteHandler
	liveHandler     *handlers.LiveHandler
	healthHandler   *handlers.HealthHandler
}

// bootstrap initializes all application dependencies: database, services, schedulers.
func bootstrap(cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.JWT.Secret)

	// Initialize database
	if err := models.InitDB(&cfg.Database, cfg.Server.Mode == "debug"); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	db := models.GetDB()

	// Auto migrate database
	if err := models.AutoMigrate(db); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	// Seed default data
	if err := models.SeedDefaultData(db); err != nil {
		logger.Warn().Err(err).Msg("Failed to seed default data")
	}

	svc := &appServices{
		db:          db,
		hub:         services.NewLiveHub(),
		voteLimiter: middleware.NewRateLimiter(cfg.RateLimit.VoteRPS, cfg.RateLimit.VoteBurst),
	}

	// Vote fan-out goes through Redis when enabled so every instance's
	// subscribers see every vote.
	publisher := svc.votePublisher(&cfg.Redis)

	// Initialize task queue (uses Redis if enabled, otherwise sync mode)
	scores := services.NewScoreService(db)
	svc.taskQueue = services.NewTaskQueue(cfg)
	if syncQueue, ok := svc.taskQueue.(*services.SyncQueue); ok {
		syncQueue.SetProcessor(scores.ProcessTask)
	}

	// Start async worker if Redis is enabled
	if svc.taskQueue.IsAsync() {
		svc.worker = services.NewWorker(&cfg.Redis)
		if svc.worker != nil {
			svc.worker.SetProcessor(scores.ProcessTask)
			if err := svc.worker.Start(); err != nil {
				logger.Error().Err(err).Msg("Failed to start worker")
			}
		}
	}

	svc.scheduler = services.NewScoreScheduler(db, scores, cfg.Scheduler)
	if err := svc.scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("Failed to start score scheduler")
	}

	aggregator := services.NewVoteAggregator(db)
	searcher := services.NewIdeaSearcher(db, aggregator, cfg.Search)
	voteService := services.NewVoteService(db, aggregator, publisher, svc.taskQueue)

	svc.userHandler = handlers.NewUserHandler(services.NewUserService(db))
	svc.projectHandler = handlers.NewProjectHandler(services.NewProjectService(db))
	svc.categoryHandler = handlers.NewCategoryHandler(services.NewCategoryService(db))
	svc.ideaHandler = handlers.NewIdeaHandler(services.NewIdeaService(db, searcher), services.NewCommentService(db))
	svc.voteHandler = handlers.NewVoteHandler(voteService)
	svc.liveHandler = handlers.NewLiveHandler(svc.hub, voteService, cfg.Live)
	svc.healthHandler = handlers.NewHealthHandler(db, svc.taskQueue, svc.hub)

	return svc
}

// votePublisher returns a Redis relay when Redis is enabled and reachable,
// otherwise a publisher that writes straight to the local hub.
func (s *appServices) votePublisher(cfg *config.RedisConfig) services.VotePublisher {
	if !cfg.Enabled {
		return services.NewLocalVotePublisher(s.hub)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warnf("[VoteRelay] Redis unavailable, broadcasting locally: %v", err)
		client.Close()
		return services.NewLocalVotePublisher(s.hub)
	}

	relay := services.NewRedisVoteRelay(client, s.hub)
	relayCtx, stop := context.WithCancel(context.Background())
	go func() {
		if err := relay.Run(relayCtx); err != nil {
			logger.Errorf("[VoteRelay] Stopped: %v", err)
		}
	}()

	s.redisClient = client
	s.stopRelay = stop
	return relay
}

// shutdown gracefully stops all services.
func (s *appServices) shutdown() {
	s.scheduler.Stop()
	logger.Info().Msg("Score scheduler stopped")

	if s.worker != nil {
		s.worker.Stop()
	}
	if s.taskQueue != nil {
		s.taskQueue.Close()
	}
	if s.stopRelay != nil {
		s.stopRelay()
	}
	if s.redisClient != nil {
		s.redisClient.Close()
	}

	s.hub.Close()

	if sqlDB, err := s.db.DB(); err == nil {
		sqlDB.Close()
	}
}
