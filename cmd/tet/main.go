// TETサービスのエントリポイント。
// 職業体験（TET）の掲載をLinkedEventsのイベントとして作成・更新・削除するAPIを提供する。
package main

import (
	"os"

	"github.com/nao1215/yjdh/internal/linkedevents"
	"github.com/nao1215/yjdh/internal/tet"
	"github.com/nao1215/yjdh/pkg/config"
	"github.com/nao1215/yjdh/pkg/logger"
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

	events, err := linkedevents.NewClient(cfg.LinkedEvents, log)
	if err != nil {
		log.Fatal("LinkedEventsクライアントの初期化に失敗", zap.Error(err))
	}

	server := tet.NewServer(cfg, events, log)
	log.Info("TETサービスを起動します", zap.String("port", cfg.Server.Port), zap.String("env", cfg.Server.Env))
	if err := server.Run(); err != nil {
		log.Fatal("TETサービスの起動に失敗", zap.Error(err))
	}
}
