package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultTimeout はConfig.Timeoutが未指定の場合のタイムアウト。
	DefaultTimeout = 30 * time.Second
	// DefaultAPIKeyHeader はAPIキーを送信するヘッダー名の既定値。
	DefaultAPIKeyHeader = "apikey"
)

// Config は上流サービスへの接続設定。
// グローバル設定を参照せず、生成時に明示的に渡す。
type Config struct {
	// Service はログやエラーメッセージに使う上流サービス名（例: "Linked Events"）。
	Service string
	// BaseURL は上流APIのベースURL。
	BaseURL string
	// APIKey はAPIキー。空の場合はAPIキーヘッダーを送らない。
	APIKey string
	// APIKeyHeader はAPIキーを送るヘッダー名。空の場合は "apikey"。
	APIKeyHeader string
	// BearerToken はAuthorizationヘッダーに付与するトークン。
	BearerToken string
	// Username と Password が設定されている場合はベーシック認証を行う。
	Username string
	// Password はベーシック認証のパスワード。
	Password string
	// Timeout は1回の呼び出しのタイムアウト。
	Timeout time.Duration
	// TrailingSlash はリソースURLの末尾に "/" を付けるかどうか。
	TrailingSlash bool
	// Logger はエラー記録用のロガー。nilの場合は出力しない。
	Logger *zap.Logger
}

// Client は1つの上流APIを呼び出すHTTPクライアント。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
	// baseURL は解析済みのベースURL。
	baseURL *url.URL
	// cfg は生成時に渡された設定。
	cfg Config
	// logger はエラー記録用のロガー。
	logger *zap.Logger
}

// Request は上流APIへの1回の呼び出しを表す。
type Request struct {
	// Method はHTTPメソッド。
	Method string
	// Resource はベースURLからの相対リソース名（例: "event"）。
	Resource string
	// ID はリソースの識別子。空の場合はコレクションを対象とする。
	ID string
	// Params はクエリパラメータ。
	Params url.Values
	// Body はJSONにシリアライズするリクエストボディ。
	Body any
}

// New は新しい上流サービス用HTTPクライアントを生成する。
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%sのベースURLが設定されていません", cfg.Service)
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%sのベースURLが不正です: %q", cfg.Service, cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.APIKeyHeader == "" {
		cfg.APIKeyHeader = DefaultAPIKeyHeader
	}
	if cfg.Service == "" {
		cfg.Service = u.Host
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    u,
		cfg:        cfg,
		logger:     logger.With(zap.String("upstream", cfg.Service)),
	}, nil
}

// Service は上流サービス名を返す。
func (c *Client) Service() string {
	return c.cfg.Service
}

// Call はリクエストを実行し、成功時のレスポンスボディをoutにデシリアライズする。
// 失敗時は *UpstreamError を返す。
func (c *Client) Call(ctx context.Context, r Request, out any) error {
	target := c.ResourceURL(r.Resource, r.ID)
	if len(r.Params) > 0 {
		target += "?" + r.Params.Encode()
	}
	return c.do(ctx, r.Method, target, r.Body, out)
}

// Get はリソースを取得する。
func (c *Client) Get(ctx context.Context, resource, id string, params url.Values, out any) error {
	return c.Call(ctx, Request{Method: http.MethodGet, Resource: resource, ID: id, Params: params}, out)
}

// Create はリソースを作成する。
func (c *Client) Create(ctx context.Context, resource string, body, out any) error {
	return c.Call(ctx, Request{Method: http.MethodPost, Resource: resource, Body: body}, out)
}

// Update はリソースを置き換える。
func (c *Client) Update(ctx context.Context, resource, id string, body, out any) error {
	return c.Call(ctx, Request{Method: http.MethodPut, Resource: resource, ID: id, Body: body}, out)
}

// Delete はリソースを削除する。
func (c *Client) Delete(ctx context.Context, resource, id string, params url.Values) error {
	return c.Call(ctx, Request{Method: http.MethodDelete, Resource: resource, ID: id, Params: params}, nil)
}

// File はmultipart/form-dataで送信するファイル。
type File struct {
	// Field はフォームのフィールド名。
	Field string
	// Name はファイル名。
	Name string
	// Content はファイルの内容。
	Content io.Reader
}

// Upload はフォーム値とファイルをmultipart/form-dataでresourceへPOSTする。
func (c *Client) Upload(ctx context.Context, resource string, fields map[string]string, file File, out any) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, key := range slices.Sorted(maps.Keys(fields)) {
		if err := w.WriteField(key, fields[key]); err != nil {
			return fmt.Errorf("フォーム値の書き込みに失敗: %w", err)
		}
	}
	part, err := w.CreateFormFile(file.Field, file.Name)
	if err != nil {
		return fmt.Errorf("ファイルパートの作成に失敗: %w", err)
	}
	if _, err := io.Copy(part, file.Content); err != nil {
		return fmt.Errorf("ファイルの書き込みに失敗: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("multipartボディの作成に失敗: %w", err)
	}
	return c.send(ctx, http.MethodPost, c.ResourceURL(resource, ""), &buf, w.FormDataContentType(), out)
}

// GetURL は上流サービスが返した絶対URL（次ページのカーソル等）を取得する。
// APIキーを第三者に送らないよう、ベースURLと異なるスキーム・ホストのURLは拒否する。
func (c *Client) GetURL(ctx context.Context, rawURL string, out any) error {
	target, err := c.resolve(rawURL)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodGet, target, nil, out)
}

// resolve は相対URLをベースURL基準で絶対URLに解決する。
func (c *Client) resolve(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("URLの解析に失敗: %w", err)
	}
	if !u.IsAbs() {
		u = c.baseURL.ResolveReference(u)
	}
	if u.Scheme != c.baseURL.Scheme || u.Host != c.baseURL.Host {
		return "", fmt.Errorf("%w: %s", ErrForeignURL, u.Redacted())
	}
	return u.String(), nil
}

// ResourceURL はリソースとIDから呼び出し先のURLを組み立てる。
func (c *Client) ResourceURL(resource, id string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSuffix(c.baseURL.String(), "/"))
	if resource = strings.Trim(resource, "/"); resource != "" {
		b.WriteString("/")
		b.WriteString(resource)
	}
	if id != "" {
		b.WriteString("/")
		b.WriteString(url.PathEscape(id))
	}
	if c.cfg.TrailingSlash {
		b.WriteString("/")
	}
	return b.String()
}

// do はJSON形式のHTTPリクエストを実行する共通処理。
func (c *Client) do(ctx context.Context, method, target string, body, out any) error {
	var bodyReader io.Reader
	contentType := ""
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("リクエストボディのシリアライズに失敗: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
		contentType = "application/json"
	}
	return c.send(ctx, method, target, bodyReader, contentType, out)
}

// send はリクエストを送信し、レスポンスを分類する。
func (c *Client) send(ctx context.Context, method, target string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	c.authorize(req)

	// コンテキストからリクエストIDを伝播する
	if requestID, ok := ctx.Value(contextKeyRequestID).(string); ok && requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.Canceled {
			return fmt.Errorf("%sへのリクエストがキャンセルされました: %w", c.cfg.Service, ctx.Err())
		}
		return c.fail(transportError(c.cfg.Service, err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.fail(transportError(c.cfg.Service, err))
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return c.fail(statusError(c.cfg.Service, resp.StatusCode, respBody))
	}

	if out != nil && len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("%sのレスポンスボディのデシリアライズに失敗: %w", c.cfg.Service, err)
		}
	}
	return nil
}

// authorize は設定に応じて認証ヘッダーを付与する。
func (c *Client) authorize(req *http.Request) {
	if c.cfg.APIKey != "" {
		req.Header.Set(c.cfg.APIKeyHeader, c.cfg.APIKey)
	}
	switch {
	case c.cfg.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.cfg.BearerToken)
	case c.cfg.Username != "":
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}
}

// fail はエラーの種類に応じたレベルでログを出力し、そのまま返す。
// 設定不備は運用者の対応が必要なためErrorで記録する。
func (c *Client) fail(e *UpstreamError) error {
	fields := []zap.Field{
		zap.String("kind", e.Kind.String()),
		zap.Int("status", e.StatusCode),
		zap.String("detail", e.Detail),
	}
	switch e.Kind {
	case KindMisconfigured:
		c.logger.Error("上流サービスの認証設定に問題があります", fields...)
	case KindRejected:
		c.logger.Debug("上流サービスがリクエストを拒否しました", fields...)
	default:
		c.logger.Warn("上流サービスの呼び出しに失敗しました", append(fields, zap.Error(e.Err))...)
	}
	return e
}

// transportError は接続エラー・タイムアウトをUnavailableに分類する。
func transportError(service string, err error) *UpstreamError {
	detail := fmt.Sprintf("Error connecting to %s (ConnectionError).", service)
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		detail = fmt.Sprintf("Timeout exceeded when connecting to %s.", service)
	}
	return &UpstreamError{
		Kind:    KindUnavailable,
		Service: service,
		Code:    http.StatusServiceUnavailable,
		Detail:  detail,
		Err:     err,
	}
}

// statusError はHTTPステータスコードを上流エラーに分類する。
func statusError(service string, status int, body []byte) *UpstreamError {
	switch {
	case status >= http.StatusInternalServerError:
		// 5xxのボディはHTMLであることが多いため保持しない
		return &UpstreamError{
			Kind:       KindServerError,
			Service:    service,
			Code:       http.StatusServiceUnavailable,
			StatusCode: status,
			Detail:     fmt.Sprintf("Server error from %s.", service),
		}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &UpstreamError{
			Kind:       KindMisconfigured,
			Service:    service,
			Code:       http.StatusInternalServerError,
			StatusCode: status,
			Detail:     fmt.Sprintf("%s API key misconfiguration in backend.", service),
		}
	default:
		return &UpstreamError{
			Kind:         KindRejected,
			Service:      service,
			Code:         status,
			StatusCode:   status,
			Detail:       fmt.Sprintf("Request rejected by %s.", service),
			ResponseData: preserveBody(body),
		}
	}
}

// preserveBody は上流のレスポンスボディをJSONとして保持する。
// JSONでない場合はJSON文字列に変換する。
func preserveBody(body []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil
	}
	if json.Valid(trimmed) {
		return json.RawMessage(append([]byte(nil), trimmed...))
	}
	quoted, _ := json.Marshal(string(body))
	return quoted
}

// contextKey はコンテキストキーの型。
type contextKey string

// contextKeyRequestID はコンテキストにリクエストIDを格納するためのキー。
const contextKeyRequestID contextKey = "request_id"

// WithRequestID はコンテキストにリクエストIDを設定する。
// 上流サービスへの呼び出しにX-Request-IDヘッダーとして伝播される。
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, requestID)
}
