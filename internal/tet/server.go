package tet

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nao1215/yjdh/internal/linkedevents"
	"github.com/nao1215/yjdh/pkg/apierror"
	"github.com/nao1215/yjdh/pkg/config"
	"github.com/nao1215/yjdh/pkg/httpclient"
	"github.com/nao1215/yjdh/pkg/middleware"
	"go.uber.org/zap"
)

// maxImageSize はアップロードを受け付ける画像の最大サイズ。
const maxImageSize = 10 << 20

// Server はTETサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// events はLinkedEventsクライアント。
	events *linkedevents.Client
	// logger はログ出力先。
	logger *zap.Logger
	// cfg はサーバー設定。
	cfg config.Config
}

// NewServer は新しいTETサーバーを生成する。
func NewServer(cfg config.Config, events *linkedevents.Client, logger *zap.Logger) *Server {
	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.CORS(cfg.CORS.AllowedOrigins))

	s := &Server{
		router: router,
		port:   cfg.Server.Port,
		events: events,
		logger: logger,
		cfg:    cfg,
	}
	s.setupRoutes()
	return s
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// Handler はルーティング済みのhttp.Handlerを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	// 開発環境のみトークンを発行する
	if s.cfg.Server.Env == "development" {
		s.router.POST("/auth/dev-token", s.handleDevToken())
	}

	api := s.router.Group("/v1")
	api.Use(middleware.JWTAuth(s.cfg.Auth.JWTSecret))
	{
		api.GET("/events", s.handleListEvents())
		api.POST("/events", s.handleCreateEvent())
		api.GET("/events/:id", s.handleGetEvent())
		api.PUT("/events/:id", s.handleUpdateEvent())
		api.DELETE("/events/:id", s.handleDeleteEvent())

		api.POST("/images", s.handleUploadImage())
		api.PUT("/images/:id", s.handleUpdateImage())
		api.DELETE("/images/:id", s.handleDeleteImage())
	}

	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "tet"})
	})
}

// handleDevToken は開発用JWTトークンを発行するハンドラを返す。
func (s *Server) handleDevToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := middleware.Identity{UserID: uuid.NewString(), Email: "dev@localhost"}
		token, err := middleware.GenerateJWT(s.cfg.Auth.JWTSecret, id, s.cfg.Auth.TokenTTL)
		if err != nil {
			apierror.Render(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token, "user_id": id.UserID})
	}
}

// handleListEvents は公開中を含むイベント一覧を返すハンドラを返す。
func (s *Server) handleListEvents() gin.HandlerFunc {
	return func(c *gin.Context) {
		events, err := s.events.ListOngoingEvents(c.Request.Context(), linkedevents.ListFilter{
			Publisher: c.Query("publisher"),
			Text:      c.Query("text"),
		})
		if err != nil {
			apierror.Render(c, err)
			return
		}
		if events == nil {
			events = []linkedevents.Event{}
		}
		c.JSON(http.StatusOK, events)
	}
}

// handleGetEvent はイベントを返すハンドラを返す。
func (s *Server) handleGetEvent() gin.HandlerFunc {
	return func(c *gin.Context) {
		ev, err := s.events.GetEvent(c.Request.Context(), c.Param("id"))
		if err != nil {
			apierror.Render(c, err)
			return
		}
		c.JSON(http.StatusOK, ev)
	}
}

// handleCreateEvent はイベントを作成するハンドラを返す。
func (s *Server) handleCreateEvent() gin.HandlerFunc {
	return func(c *gin.Context) {
		body, ok := bindRawJSON(c)
		if !ok {
			return
		}
		ev, err := s.events.CreateEvent(c.Request.Context(), body)
		if err != nil {
			apierror.Render(c, err)
			return
		}
		c.JSON(http.StatusCreated, ev)
	}
}

// handleUpdateEvent はイベントを置き換えるハンドラを返す。
func (s *Server) handleUpdateEvent() gin.HandlerFunc {
	return func(c *gin.Context) {
		body, ok := bindRawJSON(c)
		if !ok {
			return
		}
		ev, err := s.events.UpdateEvent(c.Request.Context(), c.Param("id"), body)
		if err != nil {
			apierror.Render(c, err)
			return
		}
		c.JSON(http.StatusOK, ev)
	}
}

// handleDeleteEvent はイベントを削除するハンドラを返す。
func (s *Server) handleDeleteEvent() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.events.DeleteEvent(c.Request.Context(), c.Param("id")); err != nil {
			apierror.Render(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// handleUploadImage は画像をアップロードするハンドラを返す。
// 上流が400を返した場合は "File not accepted"、それ以外の拒否は "Could not upload" とする。
func (s *Server) handleUploadImage() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImageSize)
		fh, err := c.FormFile("image")
		if err != nil {
			apierror.Render(c, apierror.NewValidationError("imageフィールドにファイルが必要です"))
			return
		}
		f, err := fh.Open()
		if err != nil {
			apierror.Render(c, fmt.Errorf("アップロードファイルのオープンに失敗: %w", err))
			return
		}
		defer f.Close()

		fields := map[string]string{}
		for _, key := range []string{"name", "alt_text", "photographer_name", "license", "publisher"} {
			if v := c.PostForm(key); v != "" {
				fields[key] = v
			}
		}

		img, err := s.events.UploadImage(c.Request.Context(), fields, fh.Filename, f)
		if err != nil {
			apierror.Render(c, uploadError(err))
			return
		}
		c.JSON(http.StatusCreated, img)
	}
}

// uploadError は画像アップロードの上流エラーを利用者向けのエラーに変換する。
func uploadError(err error) error {
	var ue *httpclient.UpstreamError
	if !errors.As(err, &ue) || ue.Kind == httpclient.KindUnavailable {
		return err
	}
	if ue.StatusCode == http.StatusBadRequest {
		return errors.Join(apierror.NewValidationError("File not accepted"), err)
	}
	return errors.Join(apierror.NewForbiddenError("Could not upload"), err)
}

// handleUpdateImage は画像のメタデータを更新するハンドラを返す。
func (s *Server) handleUpdateImage() gin.HandlerFunc {
	return func(c *gin.Context) {
		var meta linkedevents.ImageMetadata
		if err := c.ShouldBindJSON(&meta); err != nil {
			apierror.Render(c, apierror.NewValidationError("リクエストボディが不正です"))
			return
		}
		img, err := s.events.UpdateImage(c.Request.Context(), c.Param("id"), meta)
		if err != nil {
			apierror.Render(c, err)
			return
		}
		c.JSON(http.StatusOK, img)
	}
}

// handleDeleteImage は画像を削除するハンドラを返す。
func (s *Server) handleDeleteImage() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.events.DeleteImage(c.Request.Context(), c.Param("id")); err != nil {
			apierror.Render(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// bindRawJSON はリクエストボディをJSONとして読み込む。
// 不正な場合は400を返してfalseを返す。
func bindRawJSON(c *gin.Context) (json.RawMessage, bool) {
	var body json.RawMessage
	if err := c.ShouldBindJSON(&body); err != nil || len(body) == 0 {
		apierror.Render(c, apierror.NewValidationError("リクエストボディが不正です"))
		return nil, false
	}
	return body, true
}
