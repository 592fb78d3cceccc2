package company

import (
	"context"
	"fmt"
	"net/http"

	"github.com/nao1215/yjdh/pkg/config"
	"github.com/nao1215/yjdh/pkg/httpclient"
	"go.uber.org/zap"
)

// YRTTIClient はYRTTI（団体登録）から団体の基本情報を取得する。
type YRTTIClient struct {
	// api は上流呼び出しを行う汎用クライアント。
	api *httpclient.Client
}

// NewYRTTIClient は設定からYRTTIクライアントを生成する。
func NewYRTTIClient(cfg config.UpstreamConfig, logger *zap.Logger) (*YRTTIClient, error) {
	if err := cfg.Validate("YRTTI"); err != nil {
		return nil, err
	}
	api, err := httpclient.New(httpclient.Config{
		Service:  "YRTTI",
		BaseURL:  cfg.BaseURL,
		Username: cfg.Username,
		Password: cfg.Password,
		Timeout:  cfg.Timeout,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("YRTTIクライアントの生成に失敗: %w", err)
	}
	return &YRTTIClient{api: api}, nil
}

// yrttiRequest はBasicInfoのリクエストボディ。
type yrttiRequest struct {
	BusinessID string `json:"BusinessId"`
	Language   string `json:"Language"`
}

// yrttiResponse はBasicInfoのレスポンス。
type yrttiResponse struct {
	BasicInfoResponse *struct {
		BusinessID          string `json:"BusinessId"`
		AssociationNameInfo []struct {
			AssociationName string `json:"AssociationName"`
		} `json:"AssociationNameInfo"`
		Address []struct {
			StreetAddress string `json:"StreetAddress"`
			PostalCode    string `json:"PostalCode"`
			City          string `json:"City"`
		} `json:"Address"`
		Purpose string `json:"Purpose"`
	} `json:"BasicInfoResponse"`
}

// GetBasicInfo はY-tunnusで団体の基本情報を取得する。
// 会社形態は常に団体（Yhdistys）となる。
func (c *YRTTIClient) GetBasicInfo(ctx context.Context, businessID string) (Company, error) {
	var resp yrttiResponse
	err := c.api.Call(ctx, httpclient.Request{
		Method:   http.MethodPost,
		Resource: "BasicInfo",
		Body:     yrttiRequest{BusinessID: businessID, Language: "fi"},
	}, &resp)
	if err != nil {
		return Company{}, err
	}

	info := resp.BasicInfoResponse
	if info == nil || info.BusinessID == "" || len(info.AssociationNameInfo) == 0 {
		return Company{}, fmt.Errorf("YRTTI: %w", ErrInvalidPayload)
	}

	company := Company{
		BusinessID:      info.BusinessID,
		Name:            info.AssociationNameInfo[0].AssociationName,
		CompanyForm:     FormName(AssociationFormCodeDefault),
		CompanyFormCode: AssociationFormCodeDefault,
		Industry:        info.Purpose,
		Source:          SourceYRTTI,
	}
	if len(info.Address) > 0 {
		company.StreetAddress = info.Address[0].StreetAddress
		company.Postcode = info.Address[0].PostalCode
		company.City = info.Address[0].City
	}
	return company, nil
}

// FetchCompany はGetBasicInfoを呼び出す。
func (c *YRTTIClient) FetchCompany(ctx context.Context, businessID string) (Company, error) {
	return c.GetBasicInfo(ctx, businessID)
}
