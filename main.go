// Package main provides the entry point of the click-to-order attribution service
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amirphl/orochi-attribution/app/handlers"
	"github.com/amirphl/orochi-attribution/app/middleware"
	"github.com/amirphl/orochi-attribution/app/router"
	"github.com/amirphl/orochi-attribution/app/scheduler"
	"github.com/amirphl/orochi-attribution/app/services"
	businessflow "github.com/amirphl/orochi-attribution/business_flow"
	"github.com/amirphl/orochi-attribution/config"
	"github.com/amirphl/orochi-attribution/correlation"
	"github.com/amirphl/orochi-attribution/migrations"
	"github.com/amirphl/orochi-attribution/repository"
	"github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Application represents the main application structure
type Application struct {
	router    router.Router
	config    *config.ProductionConfig
	publisher services.ConversionPublisher
	redis     *redis.Client
	stopFuncs []func()
}

func main() {
	log.Println("Starting attribution service...")

	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logSink := initializeLogging(cfg.Logging)
	if logSink != nil {
		defer logSink.Close()
	}

	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	app.router.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := app.router.Start(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-sigChan
	log.Println("Shutting down gracefully...")

	// Stop background workers
	for _, fn := range app.stopFuncs {
		fn()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.router.GetApp().ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
	if err := app.publisher.Close(); err != nil {
		log.Printf("Error closing conversion publisher: %v", err)
	}
	if app.redis != nil {
		_ = app.redis.Close()
	}

	log.Println("Server stopped")
}

// initializeLogging points the standard logger at stdout, a rotated file, or both
func initializeLogging(cfg config.LoggingConfig) io.Closer {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.LUTC)
	if cfg.Output != "file" && cfg.Output != "both" {
		return nil
	}

	sink := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
	if cfg.Output == "both" {
		log.SetOutput(io.MultiWriter(os.Stdout, sink))
	} else {
		log.SetOutput(sink)
	}
	return sink
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	if cfg.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		applied, err := migrations.RunDSN(ctx, cfg.DSN())
		cancel()
		if err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Printf("Database migrations up to date (%d applied)", applied)
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		TranslateError: true,
		Logger: gormlogger.New(log.Default(), gormlogger.Config{
			SlowThreshold:             cfg.SlowQueryTime,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	return db, nil
}

// initializeCache initializes the Redis client and verifies connectivity
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled || cfg.Provider != "redis" {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established (db=%d)", cfg.RedisDB)
	return rc, nil
}

// startCacheHealthMonitor periodically pings Redis. The returned function stops the monitor.
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					log.Printf("Redis healthcheck failed: %v", err)
				}
				c()
			}
		}
	}()
	return cancel
}

func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}

	// Repositories
	clickRepo := repository.NewClickRecordRepository(db)
	runRepo := repository.NewCorrelationRunRepository(db)
	botRepo := repository.NewBotRepository(db)

	// Services
	tokenService, err := services.NewTokenService(
		cfg.JWT.AccessTokenTTL,
		cfg.JWT.RefreshTokenTTL,
		cfg.JWT.Issuer,
		cfg.JWT.Audience,
		cfg.JWT.UseRSAKeys,
		cfg.JWT.PrivateKey,
		cfg.JWT.PublicKey,
		cfg.JWT.SecretKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}

	clickIDs, err := services.NewClickIDGenerator(cfg.Attribution.ClickIDNode)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize click id generator: %w", err)
	}

	orderFeed, err := services.NewOrderFeedClient(cfg.OrderFeed)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize order feed: %w", err)
	}

	var locker services.RunLocker
	if rc != nil {
		locker = services.NewRedisRunLocker(rc, cfg.Cache.RedisPrefix)
	} else {
		log.Println("Cache disabled, correlation runs are serialized in-process only")
		locker = services.NewLocalRunLocker()
	}

	publisher := services.NewConversionPublisher(cfg.Events)

	// Business flows
	clickRecordFlow, err := businessflow.NewClickRecordFlow(clickRepo, clickIDs, cfg.Attribution)
	if err != nil {
		return nil, err
	}
	redirectFlow := businessflow.NewClickRedirectFlow(clickRepo, rc, cfg.Cache, cfg.Attribution)
	correlationFlow := businessflow.NewCorrelationFlow(
		clickRepo,
		runRepo,
		orderFeed,
		correlation.NewEngine(cfg.Attribution.Window),
		locker,
		publisher,
		cfg.Attribution,
	)
	reportFlow := businessflow.NewConversionReportFlow(clickRepo)
	botAuthFlow := businessflow.NewBotAuthFlow(botRepo, tokenService)

	seedCtx, seedCancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = botAuthFlow.EnsureBot(seedCtx, cfg.Bot.Username, cfg.Bot.Password, cfg.Security.BcryptCost)
	seedCancel()
	if err != nil {
		return nil, fmt.Errorf("failed to seed bot account: %w", err)
	}

	h := router.Handlers{
		Redirect:    handlers.NewRedirectHandler(redirectFlow),
		Click:       handlers.NewClickHandler(clickRecordFlow),
		Correlation: handlers.NewCorrelationHandler(correlationFlow, cfg.Attribution.RunTimeout),
		Report:      handlers.NewReportHandler(reportFlow),
		BotAuth:     handlers.NewAuthBotHandler(botAuthFlow),
	}
	r := router.NewFiberRouter(h, middleware.NewAuthMiddleware(tokenService), cfg)

	app := &Application{
		router:    r,
		config:    cfg,
		publisher: publisher,
		redis:     rc,
	}

	if rc != nil {
		app.stopFuncs = append(app.stopFuncs, startCacheHealthMonitor(context.Background(), rc, cfg.Cache.CleanupInterval))
	}

	if cfg.Scheduler.CorrelationEnabled {
		s := scheduler.NewCorrelationScheduler(correlationFlow, cfg.Scheduler, cfg.Attribution.RunTimeout, cfg.Logging.SchedulerLogPath)
		app.stopFuncs = append(app.stopFuncs, s.Start(context.Background()))
		log.Printf("Correlation scheduler started for %d sellers every %s", len(cfg.Scheduler.SellerIDs), cfg.Scheduler.CorrelationInterval)
	}

	return app, nil
}
