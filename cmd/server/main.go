package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"receipto/cmd/config"
	migration "receipto/cmd/database/migrate"
	"receipto/internal/utils"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	utils.LoadConfig()

	db, err := config.ConnectDB()
	if err != nil {
		logger.Fatal("failed to connect database", zap.Error(err))
	}

	if err := migration.Migrate(db); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}

	app, jobs, err := config.NewApp(db, logger)
	if err != nil {
		logger.Fatal("failed to build application", zap.Error(err))
	}

	port := utils.GetConfig("APP_PORT")
	if port == "" {
		port = "8080"
	}

	go func() {
		if err := app.Listen(":" + port); err != nil {
			logger.Fatal("server stopped", zap.Error(err))
		}
	}()
	logger.Info("server started", zap.String("port", port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error("http shutdown failed", zap.Error(err))
	}

	// Let in-flight analysis jobs finish before the process exits.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	jobs.Shutdown(ctx)

	logger.Info("bye")
}
