package benefit

import (
	"time"

	"github.com/nao1215/yjdh/internal/ahjo"
	"github.com/nao1215/yjdh/internal/company"
)

// Status は申請の状態。
type Status string

const (
	// StatusDraft は作成中の申請。
	StatusDraft Status = "draft"
	// StatusSubmitted は申請者が提出した申請。
	StatusSubmitted Status = "submitted"
	// StatusHandling はAhjoで処理中の申請。
	StatusHandling Status = "handling"
	// StatusAccepted は承認された申請。
	StatusAccepted Status = "accepted"
	// StatusRejected は却下された申請。
	StatusRejected Status = "rejected"
)

// AhjoStatus はAhjo連携の進行状況。
type AhjoStatus string

const (
	// AhjoRequestPending は案件を開く要求をAhjoへ送信中であることを表す。
	AhjoRequestPending AhjoStatus = "request_to_open_case_pending"
	// AhjoRequestSent は案件を開く要求を送信済みであることを表す。
	AhjoRequestSent AhjoStatus = "request_to_open_case_sent"
	// AhjoCaseOpened はAhjoが案件を開いたことを表す。
	AhjoCaseOpened AhjoStatus = "case_opened"
)

// AttachmentType は添付ファイルの種類。
type AttachmentType string

const (
	AttachmentPDFSummary             AttachmentType = "pdf_summary"
	AttachmentEmploymentContract     AttachmentType = "employment_contract"
	AttachmentPaySubsidyDecision     AttachmentType = "pay_subsidy_decision"
	AttachmentCommissionContract     AttachmentType = "commission_contract"
	AttachmentEducationContract      AttachmentType = "education_contract"
	AttachmentHelsinkiBenefitVoucher AttachmentType = "helsinki_benefit_voucher"
	AttachmentOther                  AttachmentType = "other"
)

// Valid は種類が既知の値かを返す。
func (t AttachmentType) Valid() bool {
	switch t {
	case AttachmentPDFSummary, AttachmentEmploymentContract, AttachmentPaySubsidyDecision,
		AttachmentCommissionContract, AttachmentEducationContract,
		AttachmentHelsinkiBenefitVoucher, AttachmentOther:
		return true
	}
	return false
}

// Application は助成金の申請。
type Application struct {
	// ID は申請ID（UUID）。
	ID string `db:"id" json:"id"`
	// Number は人が参照する申請番号。
	Number int64 `db:"application_number" json:"application_number"`
	// BusinessID は申請した企業のY-tunnus。
	BusinessID string `db:"business_id" json:"business_id"`
	// Status は申請の状態。
	Status Status `db:"status" json:"status"`
	// ContactPerson は申請者側の担当者名。
	ContactPerson string `db:"contact_person" json:"contact_person"`
	// ContactPersonEmail は担当者のメールアドレス。
	ContactPersonEmail string `db:"contact_person_email" json:"contact_person_email"`
	// AhjoCaseID はAhjoの案件番号。案件が開かれるまでは空。
	AhjoCaseID string `db:"ahjo_case_id" json:"ahjo_case_id"`
	// AhjoCaseGUID はAhjoの案件GUID。
	AhjoCaseGUID string `db:"ahjo_case_guid" json:"ahjo_case_guid"`
	// AhjoRequestID は案件を開く要求に対してAhjoが採番したID。
	AhjoRequestID string `db:"ahjo_request_id" json:"ahjo_request_id"`
	// AhjoStatus はAhjo連携の進行状況。
	AhjoStatus AhjoStatus `db:"ahjo_status" json:"ahjo_status"`
	// AhjoError はAhjoが返した失敗の詳細（JSON）。
	AhjoError string `db:"ahjo_error" json:"-"`
	// CreatedAt は作成日時。
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	// UpdatedAt は更新日時。
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Attachment は申請の添付ファイル。
type Attachment struct {
	// ID は添付ファイルID（UUID）。
	ID string `db:"id" json:"id"`
	// ApplicationID は所属する申請のID。
	ApplicationID string `db:"application_id" json:"application_id"`
	// Type は添付ファイルの種類。
	Type AttachmentType `db:"attachment_type" json:"attachment_type"`
	// FileName はファイル名。
	FileName string `db:"file_name" json:"file_name"`
	// ContentType はMIMEタイプ。
	ContentType string `db:"content_type" json:"content_type"`
	// Content はファイルの内容。
	Content []byte `db:"content" json:"-"`
	// AhjoHashValue はAhjoへ送信した際のSHA-256。
	AhjoHashValue string `db:"ahjo_hash_value" json:"-"`
	// AhjoVersionSeriesID はAhjoが採番した文書のバージョン系列ID。
	AhjoVersionSeriesID string `db:"ahjo_version_series_id" json:"-"`
	// CreatedAt はアップロード日時。
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// toAhjo はAhjoペイロード用の添付ファイルに変換する。
func (a Attachment) toAhjo() ahjo.Attachment {
	return ahjo.Attachment{
		ID:          a.ID,
		FileName:    a.FileName,
		ContentType: a.ContentType,
		Content:     a.Content,
		CreatedAt:   a.CreatedAt,
	}
}

// ahjoApplication はAhjoペイロード用の申請情報を組み立てる。
func ahjoApplication(app Application, c company.Company, handler *ahjo.Handler) ahjo.Application {
	return ahjo.Application{
		ID:                 app.ID,
		Number:             app.Number,
		CreatedAt:          app.CreatedAt,
		ContactPerson:      app.ContactPerson,
		ContactPersonEmail: app.ContactPersonEmail,
		Company: ahjo.Company{
			BusinessID:    c.BusinessID,
			Name:          c.Name,
			StreetAddress: c.StreetAddress,
			Postcode:      c.Postcode,
			City:          c.City,
		},
		Handler: handler,
	}
}
