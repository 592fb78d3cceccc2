package ahjo

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

const (
	// classificationCode は自治体が交付する助成金の分類コード。
	classificationCode = "02 05 01 00"
	// classificationTitle は分類コードの名称。
	classificationTitle = "Kunnan myöntämät avustukset"
	// language は案件と記録の言語。
	language = "fi"
	// personalData は個人情報の区分。
	personalData = "Sisältää erityisiä henkilötietoja"
	// mannerOfReceipt は申請の受付方法。
	mannerOfReceipt = "sähköinen asiointi"
	// recordPublicityClass は記録の公開区分。
	recordPublicityClass = "Salassa pidettävä"
	// hashAlgorithm はHashValueの算出方法。
	hashAlgorithm = "sha256"
	// attachmentPath はAhjoが添付ファイルを取得するパス。
	attachmentPath = "/v1/ahjo-attachments/"
)

var (
	// ErrMissingHandler は処理者またはそのADユーザー名が無いことを表す。
	ErrMissingHandler = errors.New("処理者のADユーザー名が設定されていません")
	// ErrMissingPDFSummary は申請のPDF要約が無いことを表す。
	ErrMissingPDFSummary = errors.New("申請のPDF要約がありません")
	// ErrMissingAPIBaseURL はFileURIを組み立てる公開URLが無いことを表す。
	ErrMissingAPIBaseURL = errors.New("APIの公開URLが設定されていません")
)

// Case はAhjoで開く案件。フィールドの順序がそのままJSONの順序になる。
type Case struct {
	Title               string    `json:"Title"`
	Acquired            string    `json:"Acquired"`
	ClassificationCode  string    `json:"ClassificationCode"`
	ClassificationTitle string    `json:"ClassificationTitle"`
	Language            string    `json:"Language"`
	PublicityClass      string    `json:"PublicityClass"`
	InternalTitle       string    `json:"InternalTitle"`
	Subjects            []Subject `json:"Subjects"`
	PersonalData        string    `json:"PersonalData"`
	Reference           string    `json:"Reference"`
	Records             []Record  `json:"Records"`
	Agents              []Agent   `json:"Agents"`
}

// Subject は案件の件名キーワード。
type Subject struct {
	Subject string `json:"Subject"`
	Scheme  string `json:"Scheme,omitempty"`
}

// Agent は案件または記録の関係者。Roleによって使うフィールドが異なる。
type Agent struct {
	Role              string `json:"Role"`
	Name              string `json:"Name,omitempty"`
	ID                string `json:"ID,omitempty"`
	CorporateName     string `json:"CorporateName,omitempty"`
	ContactPerson     string `json:"ContactPerson,omitempty"`
	Type              string `json:"Type,omitempty"`
	Email             string `json:"Email,omitempty"`
	AddressStreet     string `json:"AddressStreet,omitempty"`
	AddressPostalCode string `json:"AddressPostalCode,omitempty"`
	AddressCity       string `json:"AddressCity,omitempty"`
}

// Record は案件に含まれる記録（申請本体または添付）。
type Record struct {
	Title           string     `json:"Title"`
	Type            string     `json:"Type"`
	Acquired        string     `json:"Acquired"`
	PublicityClass  string     `json:"PublicityClass"`
	SecurityReasons []string   `json:"SecurityReasons"`
	Language        string     `json:"Language"`
	PersonalData    string     `json:"PersonalData"`
	MannerOfReceipt string     `json:"MannerOfReceipt,omitempty"`
	Documents       []Document `json:"Documents"`
	Agents          []Agent    `json:"Agents"`
}

// Document は記録に含まれるファイル。
type Document struct {
	FileName      string `json:"FileName"`
	FormatName    string `json:"FormatName"`
	HashAlgorithm string `json:"HashAlgorithm"`
	HashValue     string `json:"HashValue"`
	FileURI       string `json:"FileURI"`
}

// Application はペイロードの組み立てに必要な申請の情報。
type Application struct {
	// ID は申請ID。
	ID string
	// Number は申請番号。
	Number int64
	// CreatedAt は申請の作成日時。
	CreatedAt time.Time
	// ContactPerson は申請者側の担当者名。
	ContactPerson string
	// ContactPersonEmail は担当者のメールアドレス。
	ContactPersonEmail string
	// Company は申請した企業。
	Company Company
	// Handler は申請の処理者。
	Handler *Handler
}

// Company は申請した企業。
type Company struct {
	BusinessID    string
	Name          string
	StreetAddress string
	Postcode      string
	City          string
}

// Handler は申請の処理者。
type Handler struct {
	FirstName  string
	LastName   string
	ADUsername string
}

// Attachment はAhjoへ送る添付ファイル。
type Attachment struct {
	// ID は添付ファイルID。FileURIに使う。
	ID string
	// FileName はファイル名。
	FileName string
	// ContentType はMIMEタイプ。
	ContentType string
	// Content はファイルの内容。HashValueの算出に使う。
	Content []byte
	// CreatedAt はアップロード日時。
	CreatedAt time.Time
}

// Options はペイロードの組み立て設定。
type Options struct {
	// APIBaseURL はAhjoが添付ファイルを取得するこのサービスの公開URL。
	APIBaseURL string
}

// DocumentHash は添付ファイルごとに算出したハッシュ値。
// 送信後、Ahjoのコールバックとの照合のため添付ファイルに保存する。
type DocumentHash struct {
	AttachmentID string
	HashValue    string
}

// BuildOpenCasePayload は申請とその添付ファイルから案件を開くペイロードを組み立てる。
//
// 最初の記録は申請本体（PDF要約）で、続いて添付ファイルごとに1件の記録を
// 作成日時、IDの順に並べる。同じ入力に対しては常に同じ内容を返し、
// HashValueのみがファイルの内容に依存する。
func BuildOpenCasePayload(app Application, pdfSummary *Attachment, attachments []Attachment, opts Options) (Case, []DocumentHash, error) {
	if app.Handler == nil || app.Handler.ADUsername == "" {
		return Case{}, nil, ErrMissingHandler
	}
	if pdfSummary == nil {
		return Case{}, nil, ErrMissingPDFSummary
	}
	if opts.APIBaseURL == "" {
		return Case{}, nil, ErrMissingAPIBaseURL
	}

	ordered := slices.Clone(attachments)
	slices.SortStableFunc(ordered, func(a, b Attachment) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	handlerName := fmt.Sprintf("%s, %s", app.Handler.LastName, app.Handler.FirstName)
	baseURL := strings.TrimSuffix(opts.APIBaseURL, "/")
	hashes := make([]DocumentHash, 0, len(ordered)+1)

	newRecord := func(title, recordType string, a Attachment) Record {
		doc := document(a, baseURL)
		hashes = append(hashes, DocumentHash{AttachmentID: a.ID, HashValue: doc.HashValue})
		r := Record{
			Title:           title,
			Type:            recordType,
			Acquired:        isoformat(a.CreatedAt),
			PublicityClass:  recordPublicityClass,
			SecurityReasons: []string{"JulkL (621/1999) 24.1 § 25 k"},
			Language:        language,
			PersonalData:    personalData,
			Documents:       []Document{doc},
			Agents: []Agent{{
				Role: "mainCreator",
				Name: handlerName,
				ID:   app.Handler.ADUsername,
			}},
		}
		if title == "Hakemus" {
			r.MannerOfReceipt = mannerOfReceipt
		}
		return r
	}

	summary := *pdfSummary
	// 申請本体の取得日時は申請の作成日時とする
	summary.CreatedAt = app.CreatedAt
	records := []Record{newRecord("Hakemus", "hakemus", summary)}
	for _, a := range ordered {
		if a.ID == pdfSummary.ID {
			continue
		}
		records = append(records, newRecord("Hakemuksen Liite", "liite", a))
	}

	title := fmt.Sprintf("Avustukset työnantajille, Työllisyyspalvelut, Työnantajan Helsinki-lisä, Työnantaja %s %s,hakemusnumero %d",
		app.Company.Name, app.Company.BusinessID, app.Number)

	c := Case{
		Title:               title,
		Acquired:            isoformat(app.CreatedAt),
		ClassificationCode:  classificationCode,
		ClassificationTitle: classificationTitle,
		Language:            language,
		PublicityClass:      "Julkinen",
		InternalTitle:       title,
		Subjects: []Subject{
			{Subject: "Helsinki-lisät", Scheme: "hki-yhpa"},
			{Subject: "kunnan myöntämät avustukset", Scheme: "hki-yhpa"},
			{Subject: "työnantajat", Scheme: "hki-yhpa"},
			{Subject: "työllisyydenhoito"},
		},
		PersonalData: personalData,
		Reference:    fmt.Sprintf("%d", app.Number),
		Records:      records,
		Agents: []Agent{
			{
				Role:              "sender_initiator",
				CorporateName:     app.Company.Name,
				ContactPerson:     app.ContactPerson,
				Type:              "External",
				Email:             app.ContactPersonEmail,
				AddressStreet:     app.Company.StreetAddress,
				AddressPostalCode: app.Company.Postcode,
				AddressCity:       app.Company.City,
			},
			{
				Role: "draftsman",
				Name: handlerName,
				ID:   app.Handler.ADUsername,
			},
		},
	}
	return c, hashes, nil
}

// document は添付ファイルのDocumentを作成する。
func document(a Attachment, baseURL string) Document {
	return Document{
		FileName:      a.FileName,
		FormatName:    a.ContentType,
		HashAlgorithm: hashAlgorithm,
		HashValue:     HashFile(a.Content),
		FileURI:       baseURL + attachmentPath + a.ID + "/",
	}
}

// HashFile はファイル内容のSHA-256を16進文字列で返す。
func HashFile(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// isoformat は日時をUTCのISO 8601形式に変換する。
func isoformat(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
