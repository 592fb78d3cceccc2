package company

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// ErrNotFound は企業情報が保存されていないことを表す。
var ErrNotFound = errors.New("企業情報が見つかりません")

// Store は企業情報をsqliteに保存する。
type Store struct {
	// db はデータベース接続。
	db *sqlx.DB
}

// NewStore は新しいStoreを生成する。
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Get はY-tunnusで保存済みの企業情報を取得する。
func (s *Store) Get(ctx context.Context, businessID string) (Company, error) {
	var c Company
	err := s.db.GetContext(ctx, &c, `SELECT business_id, name, company_form, company_form_code, industry,
		street_address, postcode, city, source, updated_at
		FROM companies WHERE business_id = ?`, businessID)
	if errors.Is(err, sql.ErrNoRows) {
		return Company{}, ErrNotFound
	}
	if err != nil {
		return Company{}, fmt.Errorf("企業情報の取得に失敗: %w", err)
	}
	return c, nil
}

// Upsert は企業情報を保存する。既存のレコードは上書きする。
func (s *Store) Upsert(ctx context.Context, c Company) error {
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO companies (business_id, name, company_form,
		company_form_code, industry, street_address, postcode, city, source, updated_at)
		VALUES (:business_id, :name, :company_form, :company_form_code, :industry,
		:street_address, :postcode, :city, :source, :updated_at)
		ON CONFLICT (business_id) DO UPDATE SET
			name = excluded.name,
			company_form = excluded.company_form,
			company_form_code = excluded.company_form_code,
			industry = excluded.industry,
			street_address = excluded.street_address,
			postcode = excluded.postcode,
			city = excluded.city,
			source = excluded.source,
			updated_at = excluded.updated_at`, c)
	if err != nil {
		return fmt.Errorf("企業情報の保存に失敗: %w", err)
	}
	return nil
}
