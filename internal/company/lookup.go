package company

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nao1215/yjdh/pkg/apierror"
	"go.uber.org/zap"
)

// ErrLookupFailed はどの上流からも企業情報を取得できず、保存済みのレコードも無いことを表す。
var ErrLookupFailed = apierror.New(http.StatusInternalServerError,
	"Could not handle the response from Palveluväylä and YRTTI API")

// Fetcher は上流から企業情報を取得する。
type Fetcher interface {
	FetchCompany(ctx context.Context, businessID string) (Company, error)
}

// Repository は企業情報の保存先。
type Repository interface {
	Get(ctx context.Context, businessID string) (Company, error)
	Upsert(ctx context.Context, c Company) error
}

// Lookup は企業情報の取得を上流の優先順に試みる。
type Lookup struct {
	// primary は最初に問い合わせる上流（Palveluväylä）。
	primary Fetcher
	// secondary はprimaryが失敗した場合に問い合わせる上流（YRTTI）。
	secondary Fetcher
	// repo は取得結果の保存先。
	repo Repository
	// logger はログ出力先。
	logger *zap.Logger
	// now は現在時刻を返す。
	now func() time.Time
}

// NewLookup は新しいLookupを生成する。
func NewLookup(primary, secondary Fetcher, repo Repository, logger *zap.Logger) *Lookup {
	return &Lookup{
		primary:   primary,
		secondary: secondary,
		repo:      repo,
		logger:    logger,
		now:       time.Now,
	}
}

// Get はY-tunnusで企業情報を取得する。
//
// primaryで取得できなければsecondaryを試し、成功した結果は保存してから返す。
// 両方が失敗した場合は保存済みのレコードを SourceStale として返す。
// 保存済みのレコードも無い場合は ErrLookupFailed を両方の原因と合わせて返す。
func (l *Lookup) Get(ctx context.Context, businessID string) (Company, Source, error) {
	company, primaryErr := l.primary.FetchCompany(ctx, businessID)
	if primaryErr == nil {
		return l.save(ctx, company)
	}
	if err := ctx.Err(); err != nil {
		return Company{}, "", err
	}
	l.logger.Info("Palveluväyläから取得できないためYRTTIに問い合わせます",
		zap.String("business_id", businessID), zap.Error(primaryErr))

	company, secondaryErr := l.secondary.FetchCompany(ctx, businessID)
	if secondaryErr == nil {
		return l.save(ctx, company)
	}
	if err := ctx.Err(); err != nil {
		return Company{}, "", err
	}

	stale, err := l.repo.Get(ctx, businessID)
	switch {
	case err == nil:
		l.logger.Warn("上流から企業情報を取得できないため保存済みのデータを返します",
			zap.String("business_id", businessID),
			zap.Time("updated_at", stale.UpdatedAt),
			zap.NamedError("service_bus_error", primaryErr),
			zap.NamedError("yrtti_error", secondaryErr),
		)
		return stale, SourceStale, nil
	case errors.Is(err, ErrNotFound):
		l.logger.Error("企業情報を取得できませんでした",
			zap.String("business_id", businessID),
			zap.NamedError("service_bus_error", primaryErr),
			zap.NamedError("yrtti_error", secondaryErr),
		)
		return Company{}, "", errors.Join(ErrLookupFailed, primaryErr, secondaryErr)
	default:
		return Company{}, "", errors.Join(ErrLookupFailed, primaryErr, secondaryErr, err)
	}
}

// save は取得した企業情報を保存し、取得元とともに返す。
func (l *Lookup) save(ctx context.Context, c Company) (Company, Source, error) {
	c.UpdatedAt = l.now().UTC()
	if err := l.repo.Upsert(ctx, c); err != nil {
		return Company{}, "", fmt.Errorf("取得した企業情報の保存に失敗: %w", err)
	}
	return c, c.Source, nil
}
