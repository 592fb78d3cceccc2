// 助成金サービスのエントリポイント。
// Helsinki-lisäの申請を受け付け、企業情報の取得とAhjoへの案件送信を行う。
package main

import (
	"context"
	"os"

	"github.com/nao1215/yjdh/internal/ahjo"
	"github.com/nao1215/yjdh/internal/benefit"
	"github.com/nao1215/yjdh/internal/company"
	"github.com/nao1215/yjdh/migrations"
	"github.com/nao1215/yjdh/pkg/config"
	"github.com/nao1215/yjdh/pkg/logger"
	"github.com/nao1215/yjdh/pkg/migration"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		panic(err)
	}
	log := logger.Must(cfg.Server.Env)
	defer log.Sync() //nolint:errcheck

	if cfg.Auth.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRETが設定されていません")
	}

	if _, err := cfg.Ahjo.AllowedPrefixes(); err != nil {
		log.Fatal("Ahjoの送信元IP設定が不正です", zap.Error(err))
	}

	db, err := migration.Open(cfg.Database.Path)
	if err != nil {
		log.Fatal("データベースのオープンに失敗", zap.Error(err))
	}
	defer db.Close()

	if err := migration.Run(context.Background(), db, migrations.FS, migrations.Dir, log); err != nil {
		log.Fatal("マイグレーションの実行に失敗", zap.Error(err))
	}

	serviceBus, err := company.NewServiceBusClient(cfg.ServiceBus, log)
	if err != nil {
		log.Fatal("Palveluväyläクライアントの初期化に失敗", zap.Error(err))
	}
	yrtti, err := company.NewYRTTIClient(cfg.YRTTI, log)
	if err != nil {
		log.Fatal("YRTTIクライアントの初期化に失敗", zap.Error(err))
	}
	sender, err := ahjo.NewSender(cfg.Ahjo, log)
	if err != nil {
		log.Fatal("Ahjoクライアントの初期化に失敗", zap.Error(err))
	}

	lookup := company.NewLookup(serviceBus, yrtti, company.NewStore(db), log)
	server := benefit.NewServer(cfg, benefit.NewStore(db), lookup, sender, log)

	log.Info("助成金サービスを起動します",
		zap.String("port", cfg.Server.Port),
		zap.String("env", cfg.Server.Env),
		zap.String("database", cfg.Database.Path),
	)
	if err := server.Run(); err != nil {
		log.Fatal("助成金サービスの起動に失敗", zap.Error(err))
	}
}
