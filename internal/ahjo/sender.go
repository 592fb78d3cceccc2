package ahjo

import (
	"context"
	"fmt"
	"net/http"

	"github.com/nao1215/yjdh/pkg/config"
	"github.com/nao1215/yjdh/pkg/httpclient"
	"go.uber.org/zap"
)

// Sender はAhjo REST APIへ案件を送信する。
type Sender struct {
	// api は上流呼び出しを行う汎用クライアント。
	api *httpclient.Client
	// opts はペイロードの組み立て設定。
	opts Options
}

// NewSender は設定からSenderを生成する。
func NewSender(cfg config.AhjoConfig, logger *zap.Logger) (*Sender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	api, err := httpclient.New(httpclient.Config{
		Service:     "Ahjo",
		BaseURL:     cfg.URL,
		BearerToken: cfg.Token,
		Timeout:     cfg.Timeout,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("Ahjoクライアントの生成に失敗: %w", err)
	}
	return &Sender{api: api, opts: Options{APIBaseURL: cfg.APIBaseURL}}, nil
}

// Options はこのSenderがペイロードの組み立てに使う設定を返す。
func (s *Sender) Options() Options {
	return s.opts
}

// openCaseResponse は案件作成リクエストの応答。
type openCaseResponse struct {
	RequestID string `json:"requestId"`
}

// OpenCase は案件を開くリクエストを送信し、Ahjoが採番したリクエストIDを返す。
// 処理結果は後からコールバックで通知される。
func (s *Sender) OpenCase(ctx context.Context, c Case) (string, error) {
	var resp openCaseResponse
	err := s.api.Call(ctx, httpclient.Request{
		Method:   http.MethodPost,
		Resource: "cases",
		Body:     c,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("Ahjoへの案件送信に失敗: %w", err)
	}
	return resp.RequestID, nil
}
