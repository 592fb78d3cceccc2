package benefit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nao1215/yjdh/internal/ahjo"
	"github.com/nao1215/yjdh/internal/company"
	"github.com/nao1215/yjdh/pkg/apierror"
	"github.com/nao1215/yjdh/pkg/config"
	"github.com/nao1215/yjdh/pkg/middleware"
	"go.uber.org/zap"
)

const (
	// maxAttachmentSize はアップロードを受け付ける添付ファイルの最大サイズ。
	maxAttachmentSize = 10 << 20
	// dataSourceHeader は企業情報の取得元を通知するレスポンスヘッダー。
	dataSourceHeader = "X-Data-Source"
	// requestTypeOpenCase は案件を開く要求のコールバック種別。
	requestTypeOpenCase = "open_case"
)

// CompanyLookup は企業情報を上流の優先順に取得する。
type CompanyLookup interface {
	Get(ctx context.Context, businessID string) (company.Company, company.Source, error)
}

// CaseSender はAhjoへ案件を送信する。
type CaseSender interface {
	OpenCase(ctx context.Context, c ahjo.Case) (string, error)
	Options() ahjo.Options
}

// Server は助成金サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// store は申請の保存先。
	store *Store
	// companies は企業情報の取得。
	companies CompanyLookup
	// sender はAhjoへの案件送信。
	sender CaseSender
	// logger はログ出力先。
	logger *zap.Logger
	// cfg はサーバー設定。
	cfg config.Config
}

// NewServer は新しい助成金サーバーを生成する。
func NewServer(cfg config.Config, store *Store, companies CompanyLookup, sender CaseSender, logger *zap.Logger) *Server {
	router := gin.New()
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		logger.Error("信頼するプロキシの設定が不正なため、X-Forwarded-Forを使用しません", zap.Error(err))
		_ = router.SetTrustedProxies(nil)
	}
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.CORS(cfg.CORS.AllowedOrigins))

	s := &Server{
		router:    router,
		port:      cfg.Server.Port,
		store:     store,
		companies: companies,
		sender:    sender,
		logger:    logger,
		cfg:       cfg,
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
	if s.cfg.Server.Env == "development" {
		s.router.POST("/auth/dev-token", s.handleDevToken())
	}

	api := s.router.Group("/v1")
	api.Use(middleware.JWTAuth(s.cfg.Auth.JWTSecret))
	{
		api.GET("/company", s.handleGetCompany())
		api.GET("/company/get/:business_id", s.handleGetCompany())

		api.POST("/applications", s.handleCreateApplication())
		api.GET("/applications/:id", s.handleGetApplication())
		api.POST("/applications/:id/submit", s.handleSubmitApplication())
		api.GET("/applications/:id/attachments", s.handleListAttachments())
		api.POST("/applications/:id/attachments", s.handleUploadAttachment())
		api.POST("/applications/:id/ahjo/open-case", s.handleOpenCase())
	}

	// Ahjoからの呼び出し
	allowed, err := s.cfg.Ahjo.AllowedPrefixes()
	if err != nil {
		s.logger.Error("ahjo.allowed_ipsが不正なため、Ahjoからの呼び出しをすべて拒否します", zap.Error(err))
	}
	integration := s.router.Group("/v1")
	integration.Use(middleware.TokenAuth(s.cfg.Ahjo.CallbackToken), middleware.IPAllowList(allowed))
	{
		integration.GET("/ahjo-attachments/:id/", s.handleAhjoAttachment())
		integration.POST("/ahjo-integration/callback/:request_type/:id", s.handleAhjoCallback())
	}

	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "benefit"})
	})
}

// devTokenRequest は開発用トークンの発行リクエスト。
type devTokenRequest struct {
	// BusinessID は申請者として代表する組織。空の場合は処理者のトークンを発行する。
	BusinessID string `json:"business_id"`
}

// handleDevToken は開発用JWTトークンを発行するハンドラを返す。
func (s *Server) handleDevToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req devTokenRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				apierror.Render(c, apierror.NewValidationError("リクエストボディが不正です"))
				return
			}
		}
		id := middleware.Identity{UserID: uuid.NewString(), Email: "dev@localhost", BusinessID: req.BusinessID}
		token, err := middleware.GenerateJWT(s.cfg.Auth.JWTSecret, id, s.cfg.Auth.TokenTTL)
		if err != nil {
			apierror.Render(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token, "user_id": id.UserID})
	}
}

// businessIDFor は操作対象の組織を決める。
// 申請者は自分の組織のみ、処理者はrequestedで指定した組織を扱える。
func businessIDFor(c *gin.Context, requested string) (string, error) {
	own := middleware.GetBusinessID(c)
	switch {
	case own != "" && requested != "" && requested != own:
		return "", apierror.NewForbiddenError("not allowed to access another organisation")
	case own != "":
		return own, nil
	case requested == "":
		return "", apierror.NewValidationError("business_id is required")
	}
	return requested, nil
}

// isHandler はトークンが処理者のものかを返す。
func isHandler(c *gin.Context) bool {
	return middleware.GetBusinessID(c) == ""
}

// handleGetCompany は企業情報を返すハンドラを返す。
// 保存済みのデータを返した場合は X-Data-Source: stale を付与する。
func (s *Server) handleGetCompany() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessID, err := businessIDFor(c, c.Param("business_id"))
		if err != nil {
			apierror.Render(c, err)
			return
		}
		org, source, err := s.companies.Get(c.Request.Context(), businessID)
		if err != nil {
			apierror.Render(c, err)
			return
		}
		if source == company.SourceStale {
			c.Header(dataSourceHeader, string(source))
		}
		c.JSON(http.StatusOK, org)
	}
}

// createApplicationRequest は申請の作成リクエスト。
type createApplicationRequest struct {
	BusinessID         string `json:"business_id"`
	ContactPerson      string `json:"contact_person" binding:"required"`
	ContactPersonEmail string `json:"contact_person_email" binding:"required,email"`
}

// handleCreateApplication は申請を作成するハンドラを返す。
// 申請する企業の情報は作成前に取得して保存する。
func (s *Server) handleCreateApplication() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createApplicationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apierror.Render(c, apierror.NewValidationError("リクエストボディが不正です"))
			return
		}
		businessID, err := businessIDFor(c, req.BusinessID)
		if err != nil {
			apierror.Render(c, err)
			return
		}
		if _, _, err := s.companies.Get(c.Request.Context(), businessID); err != nil {
			apierror.Render(c, err)
			return
		}

		app, err := s.store.CreateApplication(c.Request.Context(), Application{
			BusinessID:         businessID,
			ContactPerson:      req.ContactPerson,
			ContactPersonEmail: req.ContactPersonEmail,
		})
		if err != nil {
			apierror.Render(c, err)
			return
		}
		s.logger.Info("申請を作成しました",
			zap.String("application_id", app.ID),
			zap.Int64("application_number", app.Number),
			zap.String("business_id", app.BusinessID),
		)
		c.JSON(http.StatusCreated, app)
	}
}

// loadApplication はパスのIDで申請を取得する。
// 他の組織の申請は存在しないものとして扱う。
func (s *Server) loadApplication(c *gin.Context) (Application, bool) {
	app, err := s.store.GetApplication(c.Request.Context(), c.Param("id"))
	if err == nil && !isHandler(c) && app.BusinessID != middleware.GetBusinessID(c) {
		err = ErrApplicationNotFound
	}
	if err != nil {
		apierror.Render(c, err)
		return Application{}, false
	}
	return app, true
}

// handleGetApplication は申請を返すハンドラを返す。
func (s *Server) handleGetApplication() gin.HandlerFunc {
	return func(c *gin.Context) {
		app, ok := s.loadApplication(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, app)
	}
}

// handleSubmitApplication は申請を提出するハンドラを返す。
func (s *Server) handleSubmitApplication() gin.HandlerFunc {
	return func(c *gin.Context) {
		app, ok := s.loadApplication(c)
		if !ok {
			return
		}
		app, err := s.store.SubmitApplication(c.Request.Context(), app.ID)
		if err != nil {
			apierror.Render(c, err)
			return
		}
		c.JSON(http.StatusOK, app)
	}
}

// handleListAttachments は申請の添付ファイル一覧を返すハンドラを返す。
func (s *Server) handleListAttachments() gin.HandlerFunc {
	return func(c *gin.Context) {
		app, ok := s.loadApplication(c)
		if !ok {
			return
		}
		attachments, err := s.store.ListAttachments(c.Request.Context(), app.ID)
		if err != nil {
			apierror.Render(c, err)
			return
		}
		c.JSON(http.StatusOK, attachments)
	}
}

// handleUploadAttachment は添付ファイルをアップロードするハンドラを返す。
func (s *Server) handleUploadAttachment() gin.HandlerFunc {
	return func(c *gin.Context) {
		app, ok := s.loadApplication(c)
		if !ok {
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxAttachmentSize)
		fh, err := c.FormFile("attachment_file")
		if err != nil {
			apierror.Render(c, apierror.NewValidationError("attachment_fileフィールドにファイルが必要です"))
			return
		}
		attachmentType := AttachmentType(c.PostForm("attachment_type"))
		if !attachmentType.Valid() {
			apierror.Render(c, apierror.NewValidationError("attachment_typeが不正です"))
			return
		}
		if attachmentType == AttachmentPDFSummary && !isHandler(c) {
			apierror.Render(c, apierror.NewForbiddenError("only handlers can upload the application summary"))
			return
		}

		f, err := fh.Open()
		if err != nil {
			apierror.Render(c, fmt.Errorf("アップロードファイルのオープンに失敗: %w", err))
			return
		}
		defer f.Close()
		content, err := io.ReadAll(f)
		if err != nil {
			apierror.Render(c, fmt.Errorf("アップロードファイルの読み込みに失敗: %w", err))
			return
		}

		contentType := fh.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		a, err := s.store.AddAttachment(c.Request.Context(), Attachment{
			ApplicationID: app.ID,
			Type:          attachmentType,
			FileName:      fh.Filename,
			ContentType:   contentType,
			Content:       content,
		})
		if err != nil {
			apierror.Render(c, err)
			return
		}
		c.JSON(http.StatusCreated, a)
	}
}

// openCaseRequest は案件を開くリクエスト。処理者の情報を含む。
type openCaseRequest struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	ADUsername string `json:"ad_username"`
}

// handleOpenCase は提出済みの申請をAhjoの案件として開くハンドラを返す。
//
// 送信前に申請を送信中にするため、同じ申請への同時の要求はAhjoへ送らずに400を返す。
// 送信に成功した場合は添付ファイルのハッシュ値とAhjoのリクエストIDを保存し、
// 申請を処理中にする。案件番号は後からコールバックで通知される。
func (s *Server) handleOpenCase() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isHandler(c) {
			apierror.Render(c, apierror.NewForbiddenError("only handlers can open Ahjo cases"))
			return
		}
		var req openCaseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apierror.Render(c, apierror.NewValidationError("リクエストボディが不正です"))
			return
		}
		app, ok := s.loadApplication(c)
		if !ok {
			return
		}

		ctx := c.Request.Context()
		app, err := s.store.ClaimCaseRequest(ctx, app.ID)
		if err != nil {
			apierror.Render(c, err)
			return
		}
		// 送信に至らなかった場合は再度案件を開けるように戻す
		sent := false
		defer func() {
			if sent {
				return
			}
			if err := s.store.ReleaseCaseRequest(context.WithoutCancel(ctx), app.ID); err != nil {
				s.logger.Error("送信中状態の解除に失敗しました",
					zap.String("application_id", app.ID), zap.Error(err))
			}
		}()

		org, _, err := s.companies.Get(ctx, app.BusinessID)
		if err != nil {
			apierror.Render(c, err)
			return
		}
		attachments, err := s.store.ListAttachments(ctx, app.ID)
		if err != nil {
			apierror.Render(c, err)
			return
		}

		var summary *ahjo.Attachment
		records := make([]ahjo.Attachment, 0, len(attachments))
		for _, a := range attachments {
			if a.Type == AttachmentPDFSummary {
				pdf := a.toAhjo()
				summary = &pdf
				continue
			}
			records = append(records, a.toAhjo())
		}

		handler := &ahjo.Handler{FirstName: req.FirstName, LastName: req.LastName, ADUsername: req.ADUsername}
		payload, hashes, err := ahjo.BuildOpenCasePayload(ahjoApplication(app, org, handler), summary, records, s.sender.Options())
		if err != nil {
			apierror.Render(c, payloadError(err))
			return
		}

		requestID, err := s.sender.OpenCase(ctx, payload)
		if err != nil {
			s.logger.Error("Ahjoへの案件送信に失敗しました",
				zap.String("application_id", app.ID), zap.Error(err))
			apierror.Render(c, err)
			return
		}
		// 以降は失敗しても送信中のまま残す
		sent = true
		if err := s.store.MarkCaseRequested(ctx, app.ID, requestID, hashes); err != nil {
			s.logger.Error("Ahjoへの送信結果の保存に失敗しました",
				zap.String("application_id", app.ID),
				zap.String("request_id", requestID),
				zap.Error(err),
			)
			apierror.Render(c, err)
			return
		}
		s.logger.Info("Ahjoへ案件を開く要求を送信しました",
			zap.String("application_id", app.ID),
			zap.String("request_id", requestID),
			zap.Int("records", len(payload.Records)),
		)

		app, err = s.store.GetApplication(ctx, app.ID)
		if err != nil {
			apierror.Render(c, err)
			return
		}
		c.JSON(http.StatusOK, app)
	}
}

// payloadError はペイロード組み立てのエラーを利用者向けのエラーに変換する。
func payloadError(err error) error {
	switch {
	case errors.Is(err, ahjo.ErrMissingHandler):
		return errors.Join(apierror.NewValidationError("handler ad_username is required"), err)
	case errors.Is(err, ahjo.ErrMissingPDFSummary):
		return errors.Join(apierror.NewValidationError("application has no pdf summary"), err)
	case errors.Is(err, ahjo.ErrMissingAPIBaseURL):
		return errors.Join(apierror.New(http.StatusInternalServerError, "Ahjo integration is not configured"), err)
	}
	return err
}

// handleAhjoAttachment はAhjoへ添付ファイルの内容を返すハンドラを返す。
func (s *Server) handleAhjoAttachment() gin.HandlerFunc {
	return func(c *gin.Context) {
		a, err := s.store.GetAttachment(c.Request.Context(), c.Param("id"))
		if err != nil {
			apierror.Render(c, err)
			return
		}
		c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": a.FileName}))
		c.Header("Content-Length", strconv.Itoa(len(a.Content)))
		c.Data(http.StatusOK, a.ContentType, a.Content)
	}
}

// handleAhjoCallback はAhjoからの処理結果の通知を受け取るハンドラを返す。
// 失敗の通知も受信自体は成功として200を返す。
func (s *Server) handleAhjoCallback() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Param("request_type") != requestTypeOpenCase {
			apierror.Render(c, apierror.NewValidationError("unsupported request type"))
			return
		}
		var cb ahjo.Callback
		if err := c.ShouldBindJSON(&cb); err != nil {
			apierror.Render(c, apierror.NewValidationError("リクエストボディが不正です"))
			return
		}
		if cb.Message != ahjo.CallbackSuccess && cb.Message != ahjo.CallbackFailure {
			apierror.Render(c, apierror.NewValidationError("message must be Success or Failure"))
			return
		}

		applicationID := c.Param("id")
		if err := s.store.ApplyCallback(c.Request.Context(), applicationID, cb); err != nil {
			if errors.Is(err, ErrRequestIDMismatch) {
				s.logger.Warn("送信した要求と一致しないコールバックを拒否しました",
					zap.String("application_id", applicationID),
					zap.String("request_id", cb.RequestID),
				)
			}
			apierror.Render(c, err)
			return
		}

		if cb.Message == ahjo.CallbackFailure {
			s.logger.Warn("Ahjoが案件を開く要求を処理できませんでした",
				zap.String("application_id", applicationID),
				zap.String("request_id", cb.RequestID),
				zap.ByteString("failure_details", cb.FailureDetails),
			)
			c.JSON(http.StatusOK, gin.H{"message": "Callback received but request was unsuccessful at AHJO"})
			return
		}
		s.logger.Info("Ahjoが案件を開きました",
			zap.String("application_id", applicationID),
			zap.String("case_id", cb.CaseID),
		)
		c.JSON(http.StatusOK, gin.H{"message": "Callback received"})
	}
}
