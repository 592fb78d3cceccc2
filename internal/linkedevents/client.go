package linkedevents

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/url"

	"github.com/nao1215/yjdh/pkg/config"
	"github.com/nao1215/yjdh/pkg/httpclient"
	"go.uber.org/zap"
)

// serviceName はエラーメッセージに使う上流サービス名。
const serviceName = "Linked Events"

const (
	// resourceEvent はイベントのリソース名。
	resourceEvent = "event"
	// resourceImage は画像のリソース名。
	resourceImage = "image"
)

// Client はLinkedEvents APIのクライアント。
type Client struct {
	// api は上流呼び出しを行う汎用クライアント。
	api *httpclient.Client
	// dataSource はイベントの登録元データソース（例: "tet"）。
	dataSource string
	// publisherAncestor は一覧取得時の既定の公開組織。
	publisherAncestor string
}

// NewClient は設定からLinkedEventsクライアントを生成する。
// URLまたはAPIキーが無い場合は config.ErrNotConfigured を返す。
func NewClient(cfg config.LinkedEventsConfig, logger *zap.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	api, err := httpclient.New(httpclient.Config{
		Service:       serviceName,
		BaseURL:       cfg.URL,
		APIKey:        cfg.APIKey,
		Timeout:       cfg.Timeout,
		TrailingSlash: true,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("LinkedEventsクライアントの生成に失敗: %w", err)
	}

	dataSource := cfg.DataSource
	if dataSource == "" {
		dataSource = "tet"
	}
	return &Client{api: api, dataSource: dataSource, publisherAncestor: cfg.PublisherAncestor}, nil
}

// baseParams はキャッシュを使わずにデータソースを指定するクエリを返す。
func (c *Client) baseParams() url.Values {
	return url.Values{
		"data_source": {c.dataSource},
		"nocache":     {"true"},
	}
}

// ListFilter はイベント一覧の絞り込み条件。
type ListFilter struct {
	// Publisher は公開組織。空の場合はクライアントの既定値を使う。
	Publisher string
	// Text は全文検索の文字列。
	Text string
}

// eventListParams はイベント一覧取得のクエリを組み立てる。
func (c *Client) eventListParams(f ListFilter) url.Values {
	params := c.baseParams()
	params.Set("show_all", "true")
	publisher := f.Publisher
	if publisher == "" {
		publisher = c.publisherAncestor
	}
	if publisher != "" {
		params.Set("publisher_ancestor", publisher)
	}
	if f.Text != "" {
		params.Set("text", f.Text)
	}
	return params
}

// Events は公開中を含む全イベントを要素単位で返す遅延シーケンスを返す。
func (c *Client) Events(ctx context.Context, f ListFilter) iter.Seq2[Event, error] {
	return httpclient.All[Event](ctx, c.api, resourceEvent, c.eventListParams(f))
}

// ListOngoingEvents は条件に合う全イベントを全ページ分取得する。
func (c *Client) ListOngoingEvents(ctx context.Context, f ListFilter) ([]Event, error) {
	events, err := httpclient.Collect[Event](ctx, c.api, resourceEvent, c.eventListParams(f))
	if err != nil {
		return nil, fmt.Errorf("イベント一覧の取得に失敗: %w", err)
	}
	return events, nil
}

// GetEvent は場所とキーワードを含めてイベントを取得する。
func (c *Client) GetEvent(ctx context.Context, id string) (Event, error) {
	params := c.baseParams()
	params.Set("include", "location,keywords")

	var ev Event
	if err := c.api.Get(ctx, resourceEvent, id, params, &ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// CreateEvent はイベントを作成する。bodyはLinkedEventsのイベント形式のJSON。
func (c *Client) CreateEvent(ctx context.Context, body json.RawMessage) (Event, error) {
	var ev Event
	if err := c.api.Create(ctx, resourceEvent, body, &ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// UpdateEvent はイベントを置き換える。
func (c *Client) UpdateEvent(ctx context.Context, id string, body json.RawMessage) (Event, error) {
	var ev Event
	if err := c.api.Update(ctx, resourceEvent, id, body, &ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// DeleteEvent はイベントを削除する。
func (c *Client) DeleteEvent(ctx context.Context, id string) error {
	return c.api.Delete(ctx, resourceEvent, id, c.baseParams())
}

// Images は画像を1ページずつ返す遅延シーケンスを返す。
func (c *Client) Images(ctx context.Context) iter.Seq2[[]Image, error] {
	return httpclient.Pages[Image](ctx, c.api, resourceImage, c.baseParams())
}

// UploadImage は画像ファイルをアップロードする。
// fieldsは画像のメタデータ（name、publisher等）のフォーム値。
func (c *Client) UploadImage(ctx context.Context, fields map[string]string, fileName string, content io.Reader) (Image, error) {
	var img Image
	err := c.api.Upload(ctx, resourceImage, fields, httpclient.File{
		Field:   "image",
		Name:    fileName,
		Content: content,
	}, &img)
	if err != nil {
		return Image{}, err
	}
	return img, nil
}

// UpdateImage は画像のメタデータを更新する。
func (c *Client) UpdateImage(ctx context.Context, id string, meta ImageMetadata) (Image, error) {
	var img Image
	if err := c.api.Update(ctx, resourceImage, id, meta, &img); err != nil {
		return Image{}, err
	}
	return img, nil
}

// DeleteImage は画像を削除する。
func (c *Client) DeleteImage(ctx context.Context, id string) error {
	return c.api.Delete(ctx, resourceImage, id, c.baseParams())
}
