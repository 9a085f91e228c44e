package main

import (
	"context"
	"fmt"
	"os"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sngm3741/holiday-lights/api/internal/config"
	mongodoc "github.com/sngm3741/holiday-lights/api/internal/infrastructure/mongo"
	"github.com/sngm3741/holiday-lights/api/internal/logger"
	"github.com/sngm3741/holiday-lights/api/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "設定の読み込みに失敗しました: %v\n", err)
		os.Exit(1)
	}
	log := logger.SetupDefault(os.Stdout, cfg.LogLevel)

	if cfg.RunMigrations {
		if err := mongodoc.RunMigrations(cfg.MongoURI, cfg.MongoDatabase, log); err != nil {
			log.Error("migration failed", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.MongoTimeout)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(cfg.MongoURI).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1)).
		SetRetryWrites(true)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		log.Error("MongoDB 接続に失敗しました", "error", err)
		os.Exit(1)
	}

	app, err := server.New(cfg, client, log)
	if err != nil {
		log.Error("サーバーの初期化に失敗しました", "error", err)
		_ = client.Disconnect(context.Background())
		os.Exit(1)
	}
	if err := app.Run(); err != nil {
		log.Error("サーバーが異常終了しました", "error", err)
		os.Exit(1)
	}
}
