// Package main provides the arena server binary: the REST and websocket
// gateway, the encounter service on PostgreSQL, and the gRPC health service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/cory-johannsen/classquest/internal/config"
	"github.com/cory-johannsen/classquest/internal/game/arena"
	"github.com/cory-johannsen/classquest/internal/game/bestiary"
	"github.com/cory-johannsen/classquest/internal/game/character"
	"github.com/cory-johannsen/classquest/internal/game/dice"
	"github.com/cory-johannsen/classquest/internal/game/progression"
	"github.com/cory-johannsen/classquest/internal/game/quiz"
	"github.com/cory-johannsen/classquest/internal/gateway"
	"github.com/cory-johannsen/classquest/internal/observability"
	"github.com/cory-johannsen/classquest/internal/scripting"
	"github.com/cory-johannsen/classquest/internal/server"
	"github.com/cory-johannsen/classquest/internal/storage/postgres"
	"github.com/cory-johannsen/classquest/internal/storage/redis"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "", "path to configuration file; empty uses defaults and environment")
	envFile := flag.String("env-file", ".env", "optional dotenv file loaded before the configuration")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("loading %s: %v", *envFile, err)
	}

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging, cfg.Server.InstanceID)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting arena server",
		zap.String("mode", cfg.Server.Mode),
		zap.String("http_addr", cfg.HTTP.Addr()),
		zap.String("grpc_addr", cfg.GRPC.Addr()),
	)

	catalog, roster, err := loadContent(cfg.Arena)
	if err != nil {
		logger.Fatal("loading content", zap.Error(err))
	}
	logger.Info("content loaded", zap.Int("classes", len(catalog.IDs())))

	dbStart := time.Now()
	pool, err := postgres.NewPool(ctx, cfg.Database, cfg.Server.InstanceID)
	if err != nil {
		logger.Fatal("connecting to database", zap.Error(err))
	}
	logger.Info("database connected",
		zap.String("host", cfg.Database.Host),
		zap.Duration("elapsed", time.Since(dbStart)),
	)

	broker := gateway.NewLocalBroker(logger.Named("broker"))
	lifecycle := server.NewLifecycle(logger)

	var publisher arena.Publisher = broker
	if cfg.Server.Clustered() {
		client, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			logger.Fatal("connecting to redis", zap.Error(err))
		}
		publisher = redis.NewPublisher(client, cfg.Redis.ChannelPrefix)
		relay := redis.NewSubscriber(client, cfg.Redis.ChannelPrefix, broker, logger.Named("relay"))
		relayCtx, cancelRelay := context.WithCancel(ctx)
		lifecycle.Add("redis-relay", &server.FuncService{
			StartFn: func() error { return relay.Run(relayCtx) },
			StopFn: func() {
				cancelRelay()
				_ = client.Close()
			},
		})
		logger.Info("cluster fan-out enabled", zap.String("redis", cfg.Redis.Addr))
	}

	repos := pool.Repositories()
	profiles := progression.NewService(repos.Progression, catalog)
	svc, err := arena.NewService(arena.ServiceConfig{
		Config: arena.Config{
			ManaRegen: cfg.Arena.ManaRegen,
			Rewards: arena.RewardRules{
				XPPerRound:            cfg.Arena.XPPerRound,
				GoldPerRound:          cfg.Arena.GoldPerRound,
				ConsolationXPPerRound: cfg.Arena.ConsolationXPPerRound,
				MinConsolationXP:      cfg.Arena.MinConsolationXP,
			},
			MaxSaveAttempts: cfg.Arena.MaxSaveAttempts,
		},
		Repository: repos.Encounters,
		Bestiary:   roster,
		Questions:  repos.Questions,
		Oracle:     quiz.NewGrader(scripting.NewChecker(cfg.Arena.ScriptInstructionLimit, logger.Named("checker"))),
		Leveling:   profiles,
		Publisher:  publisher,
		Source:     dice.NewCryptoSource(),
		Logger:     logger.Named("arena"),
	})
	if err != nil {
		logger.Fatal("creating arena service", zap.Error(err))
	}

	gw := gateway.New(gateway.Config{
		Addr:            cfg.HTTP.Addr(),
		ReadTimeout:     cfg.HTTP.ReadTimeout,
		WriteTimeout:    cfg.HTTP.WriteTimeout,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
		AllowedOrigins:  cfg.HTTP.AllowedOrigins,
		Deadlines: gateway.Deadlines{
			Question: cfg.Arena.QuestionTimeout,
			Move:     cfg.Arena.MoveTimeout,
			Action:   cfg.Arena.ActionTimeout,
		},
	}, svc, profiles, broker, logger.Named("gateway"))
	lifecycle.Add("gateway", gw)

	health := server.NewHealthService(cfg.GRPC.Addr(), cfg.GRPC.HealthInterval, pool, logger.Named("health"))
	lifecycle.Add("health", health)

	lifecycle.Add("postgres", &server.FuncService{
		StartFn: func() error { return nil },
		StopFn:  pool.Close,
	})

	logger.Info("arena server initialized", zap.Duration("startup", time.Since(start)))

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

// loadContent returns the class catalog and bestiary, reading the override
// files when configured.
func loadContent(cfg config.ArenaConfig) (*character.Catalog, *bestiary.Bestiary, error) {
	var (
		catalog *character.Catalog
		roster  *bestiary.Bestiary
		err     error
	)
	if cfg.ClassesPath != "" {
		data, rerr := os.ReadFile(cfg.ClassesPath)
		if rerr != nil {
			return nil, nil, fmt.Errorf("reading classes: %w", rerr)
		}
		catalog, err = character.LoadCatalog(data)
	} else {
		catalog, err = character.DefaultCatalog()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("loading classes: %w", err)
	}

	if cfg.BestiaryPath != "" {
		data, rerr := os.ReadFile(cfg.BestiaryPath)
		if rerr != nil {
			return nil, nil, fmt.Errorf("reading bestiary: %w", rerr)
		}
		roster, err = bestiary.Load(data)
	} else {
		roster, err = bestiary.Default()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("loading bestiary: %w", err)
	}
	return catalog, roster, nil
}
