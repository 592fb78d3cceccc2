package company

import "time"

// Source は企業情報の取得元。
type Source string

const (
	// SourceServiceBus はPalveluväylä（YTJ）から取得したことを表す。
	SourceServiceBus Source = "service_bus"
	// SourceYRTTI はYRTTI（団体登録）から取得したことを表す。
	SourceYRTTI Source = "yrtti"
	// SourceStale は上流に到達できず、保存済みのレコードを返したことを表す。
	SourceStale Source = "stale"
)

// 会社形態コード（YTJの組織形態コード）。
const (
	// CompanyFormCodeDefault は株式会社（Osakeyhtiö）。
	CompanyFormCodeDefault = 16
	// AssociationFormCodeDefault は団体（Yhdistys）。
	AssociationFormCodeDefault = 29
)

// companyForms は会社形態コードと名称の対応。
var companyForms = map[int]string{
	CompanyFormCodeDefault:     "Osakeyhtiö",
	AssociationFormCodeDefault: "Yhdistys",
}

// FormName は会社形態コードの名称を返す。
func FormName(code int) string {
	return companyForms[code]
}

// Company は企業・団体の登記情報。
type Company struct {
	// BusinessID はY-tunnus（例: "0877830-0"）。
	BusinessID string `db:"business_id" json:"business_id"`
	// Name は商号または団体名。
	Name string `db:"name" json:"name"`
	// CompanyForm は会社形態の名称。
	CompanyForm string `db:"company_form" json:"company_form"`
	// CompanyFormCode は会社形態コード。
	CompanyFormCode int `db:"company_form_code" json:"company_form_code"`
	// Industry は業種。
	Industry string `db:"industry" json:"industry"`
	// StreetAddress は住所。
	StreetAddress string `db:"street_address" json:"street_address"`
	// Postcode は郵便番号。
	Postcode string `db:"postcode" json:"postcode"`
	// City は市区町村。
	City string `db:"city" json:"city"`
	// Source は最後に取得した上流。
	Source Source `db:"source" json:"-"`
	// UpdatedAt は最後に上流から取得した日時。
	UpdatedAt time.Time `db:"updated_at" json:"-"`
}
