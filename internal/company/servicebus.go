package company

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/nao1215/yjdh/pkg/config"
	"github.com/nao1215/yjdh/pkg/httpclient"
	"go.uber.org/zap"
)

// ErrInvalidPayload は上流の応答に必要な情報が含まれていないことを表す。
var ErrInvalidPayload = errors.New("上流の応答に企業情報が含まれていません")

// ServiceBusClient はPalveluväylä（Service Bus）経由でYTJの企業情報を取得する。
type ServiceBusClient struct {
	// api は上流呼び出しを行う汎用クライアント。
	api *httpclient.Client
}

// NewServiceBusClient は設定からService Busクライアントを生成する。
func NewServiceBusClient(cfg config.UpstreamConfig, logger *zap.Logger) (*ServiceBusClient, error) {
	if err := cfg.Validate("Palveluväylä"); err != nil {
		return nil, err
	}
	api, err := httpclient.New(httpclient.Config{
		Service:  "Palveluväylä",
		BaseURL:  cfg.BaseURL,
		Username: cfg.Username,
		Password: cfg.Password,
		Timeout:  cfg.Timeout,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("Service Busクライアントの生成に失敗: %w", err)
	}
	return &ServiceBusClient{api: api}, nil
}

// serviceBusRequest はGetCompanyのリクエストボディ。
type serviceBusRequest struct {
	BusinessID string `json:"BusinessId"`
}

// serviceBusResponse はGetCompanyのレスポンス。
type serviceBusResponse struct {
	GetCompanyResult struct {
		Company *serviceBusCompany `json:"Company"`
	} `json:"GetCompanyResult"`
}

// serviceBusCompany はGetCompanyが返す企業情報。
type serviceBusCompany struct {
	BusinessID string `json:"BusinessId"`
	TradeName  struct {
		Name string `json:"Name"`
	} `json:"TradeName"`
	CompanyForm *struct {
		Type string `json:"Type"`
		Name string `json:"Name"`
	} `json:"CompanyForm"`
	// BusinessLine は業種。登録が無い企業ではnull。
	BusinessLine *struct {
		Type string `json:"Type"`
		Name string `json:"Name"`
	} `json:"BusinessLine"`
	PostalAddress struct {
		DomesticAddress struct {
			StreetAddress string `json:"StreetAddress"`
			PostalCode    string `json:"PostalCode"`
			City          string `json:"City"`
		} `json:"DomesticAddress"`
	} `json:"PostalAddress"`
}

// GetCompany はY-tunnusで企業情報を取得する。
// 応答に企業情報が無い場合は ErrInvalidPayload を返す。
func (c *ServiceBusClient) GetCompany(ctx context.Context, businessID string) (Company, error) {
	var resp serviceBusResponse
	err := c.api.Call(ctx, httpclient.Request{
		Method:   http.MethodPost,
		Resource: "GetCompany",
		Body:     serviceBusRequest{BusinessID: businessID},
	}, &resp)
	if err != nil {
		return Company{}, err
	}

	sb := resp.GetCompanyResult.Company
	if sb == nil || sb.BusinessID == "" || sb.TradeName.Name == "" {
		return Company{}, fmt.Errorf("Palveluväylä: %w", ErrInvalidPayload)
	}

	company := Company{
		BusinessID:      sb.BusinessID,
		Name:            sb.TradeName.Name,
		CompanyFormCode: CompanyFormCodeDefault,
		StreetAddress:   sb.PostalAddress.DomesticAddress.StreetAddress,
		Postcode:        sb.PostalAddress.DomesticAddress.PostalCode,
		City:            sb.PostalAddress.DomesticAddress.City,
		Source:          SourceServiceBus,
	}
	if sb.CompanyForm != nil {
		if code, err := strconv.Atoi(sb.CompanyForm.Type); err == nil {
			company.CompanyFormCode = code
		}
	}
	company.CompanyForm = FormName(company.CompanyFormCode)
	if company.CompanyForm == "" && sb.CompanyForm != nil {
		company.CompanyForm = sb.CompanyForm.Name
	}
	if sb.BusinessLine != nil {
		company.Industry = sb.BusinessLine.Name
	}
	return company, nil
}

// FetchCompany はGetCompanyを呼び出す。
func (c *ServiceBusClient) FetchCompany(ctx context.Context, businessID string) (Company, error) {
	return c.GetCompany(ctx, businessID)
}
