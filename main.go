package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"matrix/catalog"
	"matrix/config"
	"matrix/database"
	"matrix/jobs"
	"matrix/ledger"
	"matrix/levels"
	"matrix/logging"
	"matrix/placement"
	"matrix/rewards"
	"matrix/routes"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, using process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Production)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	db, err := database.Connect(cfg.DB, logger)
	if err != nil {
		logger.Fatal("connect database", zap.Error(err))
	}

	seed, err := catalog.Load(cfg.Rewards.CatalogPath)
	if err != nil {
		logger.Fatal("load reward catalog", zap.Error(err))
	}
	registry := catalog.NewRegistry(db, logger, seed)
	if err := registry.Sync(context.Background()); err != nil {
		logger.Fatal("sync reward catalog", zap.Error(err))
	}

	wallets := ledger.New(db, logger)
	rewardEngine := rewards.NewEngine(db, logger, registry, wallets)
	levelEngine := levels.NewEngine(db, logger, rewardEngine)
	placements := placement.NewManager(db, logger, levelEngine, cfg.Placement.ReservationTTL)

	app := fiber.New(fiber.Config{DisableStartupMessage: cfg.Logging.Production})
	app.Use(recover.New())
	routes.Setup(app, cfg, routes.Services{
		Placement: placements,
		Levels:    levelEngine,
		Rewards:   rewardEngine,
		Ledger:    wallets,
		Catalog:   registry,
	})

	scheduler, err := jobs.Start(cfg.Jobs, logger, placements, wallets)
	if err != nil {
		logger.Fatal("start scheduler", zap.Error(err))
	}

	addr := cfg.HTTP.Addr()
	logger.Info("server running", zap.String("addr", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			logger.Panic("failed to start server", zap.Error(err))
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	logger.Info("gracefully shutting down")
	<-scheduler.Stop().Done()
	if err := app.ShutdownWithTimeout(cfg.HTTP.ShutdownTimeout); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	if err := database.Close(db); err != nil {
		logger.Error("close database", zap.Error(err))
	}
	logger.Info("server exited cleanly")
}
