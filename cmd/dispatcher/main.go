package main

import (
	"context"
	"database/sql"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-dispatch/internal/config"
	"github.com/ignite/campaign-dispatch/internal/dispatch"
	"github.com/ignite/campaign-dispatch/internal/gateway"
	"github.com/ignite/campaign-dispatch/internal/ops"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
	"github.com/ignite/campaign-dispatch/internal/repository/postgres"
	"github.com/ignite/campaign-dispatch/internal/template"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		logger.Error("load config", "path", *configPath, "error", err.Error())
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err.Error())
		os.Exit(1)
	}

	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	if cfg.Log.RedactPII != nil {
		logger.SetRedactPII(*cfg.Log.RedactPII)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logger.Error("open database", "error", err.Error())
		os.Exit(1)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Minute)

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		cancelPing()
		logger.Error("ping database", "error", err.Error())
		os.Exit(1)
	}
	cancelPing()
	logger.Info("connected to database")

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis unreachable, falling back to advisory locks", "error", err.Error())
			redisClient = nil
		} else {
			logger.Info("connected to redis", "addr", cfg.Redis.Addr)
		}
	}

	client := gateway.New(cfg.Gateway.BaseURL, cfg.Gateway.APIKey,
		time.Duration(cfg.Gateway.TimeoutSeconds)*time.Second, cfg.Gateway.MaxRetries)
	renderer := template.NewService()
	clock := dispatch.SystemClock{}

	tenants := postgres.NewTenantRepo(db)
	campaigns := postgres.NewCampaignRepo(db)
	channels := postgres.NewChannelRepo(db)
	variants := postgres.NewVariantRepo(db)
	deliveries := postgres.NewDeliveryRepo(db)
	suppressions := postgres.NewSuppressionRepo(db)

	filters := dispatch.NewFilterChain(deliveries, suppressions, client, clock)
	executor := dispatch.NewExecutor(deliveries, suppressions, channels, client, renderer, clock,
		cfg.Dispatch.CombinedBlockDelay())
	pacer := dispatch.NewPacer(clock, cfg.Dispatch.PacingSlice())
	health := dispatch.NewHealthMonitor(channels, client, clock, cfg.Dispatch.HealthInterval())
	runner := dispatch.NewRunner(campaigns, channels, variants, deliveries,
		filters, executor, pacer, health, clock, cfg.Dispatch.BatchSize)

	scheduler := dispatch.NewScheduler(tenants, campaigns, runner, db)
	scheduler.SetTickInterval(cfg.Dispatch.TickInterval())
	scheduler.SetTenantLockTTL(cfg.Dispatch.TenantLockTTL())
	if redisClient != nil {
		scheduler.SetRedisClient(redisClient)
	}

	if err := scheduler.Start(); err != nil {
		logger.Error("start scheduler", "error", err.Error())
		os.Exit(1)
	}

	var opsServer *ops.Server
	if cfg.Ops.Enabled {
		opsServer = ops.New(cfg.Ops.Addr, db, scheduler)
		go func() {
			if err := opsServer.Start(); err != nil && err != http.ErrServerClosed {
				logger.Error("ops server", "error", err.Error())
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	scheduler.Stop()

	if opsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := opsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("ops server shutdown", "error", err.Error())
		}
		cancel()
	}
	if redisClient != nil {
		redisClient.Close()
	}

	logger.Info("dispatcher stopped")
}
