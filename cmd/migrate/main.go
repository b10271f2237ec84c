package main

import (
	"context"
	"flag"
	"log"
	"time"

	"escrow-service/config"
	"escrow-service/internal/store"
	"escrow-service/internal/util"

	"go.uber.org/zap"
)

func main() {
	cmd := flag.String("cmd", "up", "goose command: up|down|status|version|redo|reset")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall deadline")
	flag.Parse()

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()
	logger := util.GetLogger().With(zap.String("cmd", *cmd))

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := store.Migrate(ctx, db.GetDB().DB, *cmd, flag.Args()...); err != nil {
		logger.Fatal("Migration failed", zap.Error(err))
	}
	logger.Info("Migration finished")
}
