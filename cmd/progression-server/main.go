// Command progression-server runs the XP and progression engine behind its
// REST API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/degentalk/progression/internal/api/progression"
	"github.com/degentalk/progression/internal/cache"
	"github.com/degentalk/progression/internal/catalog"
	"github.com/degentalk/progression/internal/config"
	"github.com/degentalk/progression/internal/events"
	"github.com/degentalk/progression/internal/mattermost"
	"github.com/degentalk/progression/internal/notify"
	"github.com/degentalk/progression/internal/repository"
	"github.com/degentalk/progression/internal/service/actions"
	"github.com/degentalk/progression/internal/service/audit"
	"github.com/degentalk/progression/internal/service/badges"
	"github.com/degentalk/progression/internal/service/leaderboard"
	"github.com/degentalk/progression/internal/service/levels"
	"github.com/degentalk/progression/internal/service/missions"
	"github.com/degentalk/progression/internal/service/multiplier"
	"github.com/degentalk/progression/internal/service/ratelimit"
	"github.com/degentalk/progression/internal/service/rewards"
	"github.com/degentalk/progression/internal/service/scheduler"
	"github.com/degentalk/progression/internal/service/xp"
	"github.com/degentalk/progression/internal/wallet"
	"github.com/degentalk/progression/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("Server exited with error")
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repository.NewDB(&cfg.Database.Postgres, log)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if cfg.Database.Postgres.RunMigrations {
		if err := db.Migrate(log); err != nil {
			return err
		}
	}

	var redisCache *cache.RedisCache
	if cfg.Database.Redis.RedisEnabled() {
		redisCache, err = cache.NewRedisCache(&cfg.Database.Redis, log)
		if err != nil {
			return err
		}
		defer func() { _ = redisCache.Close() }()
	} else {
		log.Warn().Msg("Redis not configured, cache invalidation stays process-local")
	}

	dayLocation, err := cfg.Engine.Location()
	if err != nil {
		return err
	}

	// Repositories
	userRepo := repository.NewUserRepository(db)
	progressionRepo := repository.NewProgressionRepository(db)
	awardLogRepo := repository.NewAwardLogRepository(db)
	badgeRepo := repository.NewBadgeRepository(db)

	// Services
	bus := events.NewBus(log)
	walletService := wallet.NewService(repository.NewWalletRepository(db))
	notifier := notify.NewService(
		repository.NewNotificationRepository(db),
		mattermost.NewClient(&cfg.Notifications, log.Component("mattermost")),
		userRepo,
		log,
	)

	var publisher actions.Publisher
	var leaderboardCache leaderboard.Cache
	if redisCache != nil {
		publisher = redisCache
		leaderboardCache = redisCache
	}
	registry := actions.NewRegistry(repository.NewActionRepository(db), publisher, log)
	levelResolver := levels.NewResolver(repository.NewLevelRepository(db), log)

	distributor := rewards.NewDistributor(db, repository.NewRewardGrantRepository(db),
		repository.NewTitleRepository(db), badgeRepo, walletService, log)
	auditLog := audit.NewLogger(awardLogRepo, repository.NewAdjustmentLogRepository(db), log)
	multipliers := multiplier.NewResolver(userRepo, repository.NewContextMultiplierRepository(db), cfg.Engine.MaxMultiplier, log)

	engine := xp.NewEngine(xp.Deps{
		DB:           db,
		Progressions: progressionRepo,
		Users:        userRepo,
		Actions:      registry,
		Limiter:      ratelimit.NewLimiter(awardLogRepo, dayLocation),
		Multipliers:  multipliers,
		Levels:       levelResolver,
		Rewards:      distributor,
		Audit:        auditLog,
		Notifier:     notifier,
		Events:       bus,
	}, cfg.Engine, log)

	tracker := missions.NewTracker(db, repository.NewMissionRepository(db),
		repository.NewMissionProgressRepository(db), progressionRepo, notifier, log)
	tracker.Register(bus)
	claimer := missions.NewClaimer(tracker, engine, walletService, badgeRepo, log)

	leaderboardService := leaderboard.NewService(progressionRepo, userRepo, badgeRepo, levelResolver, leaderboardCache, log)
	leaderboardService.Register(bus)
	badgeService := badges.NewService(badgeRepo, log)

	if redisCache != nil {
		err := redisCache.Subscribe(ctx, func(topic string) {
			registry.OnInvalidation(topic)
			levelResolver.OnInvalidation(topic)
		})
		if err != nil {
			return err
		}
	}

	if cfg.Catalog.Path != "" && cfg.Catalog.ApplyOnBoot {
		seed, err := catalog.Load(cfg.Catalog.Path)
		if err != nil {
			return err
		}
		applier := catalog.NewApplier(db, catalog.RepositoryStores(db), log,
			registry.Invalidate,
			func(ctx context.Context) {
				levelResolver.Invalidate()
				if redisCache != nil {
					if err := redisCache.Publish(ctx, cache.TopicLevels); err != nil {
						log.Warn().Err(err).Msg("Failed to publish level invalidation")
					}
				}
			},
		)
		if err := applier.Apply(ctx, seed); err != nil {
			return err
		}
	}

	sched := scheduler.NewService(&cfg.Scheduler, tracker, log.Component("scheduler"))
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	// HTTP
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), progression.RequestLogger(log))

	health := []progression.HealthCheck{
		{Name: "database", Check: func(context.Context) error { return db.Health() }},
	}
	if redisCache != nil {
		health = append(health, progression.HealthCheck{Name: "redis", Check: redisCache.Health})
	}

	handler := progression.NewHandler(engine, tracker, claimer, leaderboardService, badgeService, registry, auditLog, log, health...)
	handler.RegisterRoutes(router)

	if cfg.Metrics.Prometheus.Enabled {
		router.GET(cfg.Metrics.Prometheus.Path, gin.WrapH(promhttp.Handler()))
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().
			Int("port", cfg.Server.Port).
			Str("environment", cfg.Server.Environment).
			Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down server...")
	case err := <-serverErr:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	bus.Wait()
	notifier.Wait()

	log.Info().Msg("Server stopped")
	return nil
}
