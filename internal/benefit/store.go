package benefit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/nao1215/yjdh/internal/ahjo"
	"github.com/nao1215/yjdh/pkg/apierror"
)

// firstApplicationNumber は最初に採番する申請番号。
const firstApplicationNumber = 125000

var (
	// ErrApplicationNotFound は申請が存在しないことを表す。
	ErrApplicationNotFound = apierror.NewNotFoundError("application not found")
	// ErrAttachmentNotFound は添付ファイルが存在しないことを表す。
	ErrAttachmentNotFound = apierror.NewNotFoundError("attachment not found")
	// ErrDraftExists は企業に作成中の申請が既にあることを表す。
	ErrDraftExists = apierror.NewValidationError("company already has a draft application")
	// ErrNotDraft は作成中でない申請を提出しようとしたことを表す。
	ErrNotDraft = apierror.NewValidationError("only draft applications can be submitted")
	// ErrAttachmentsLocked は処理開始後に添付ファイルを変更しようとしたことを表す。
	ErrAttachmentsLocked = apierror.NewValidationError("attachments cannot be changed after handling has started")
	// ErrNotSubmitted は提出済みでない申請の案件を開こうとしたことを表す。
	ErrNotSubmitted = apierror.NewValidationError("application must be submitted before opening an Ahjo case")
	// ErrCaseAlreadyRequested は案件を開く要求が送信中または送信済みであることを表す。
	ErrCaseAlreadyRequested = apierror.NewValidationError("Ahjo case has already been requested for this application")
	// ErrCaseNotClaimed は送信中でない申請に送信結果を保存しようとしたことを表す。
	ErrCaseNotClaimed = apierror.NewValidationError("no Ahjo case request is pending for this application")
	// ErrRequestIDMismatch はコールバックのrequestIdが送信した要求と一致しないことを表す。
	ErrRequestIDMismatch = apierror.NewValidationError("requestId does not match the Ahjo request of this application")
)

// applicationColumns はapplicationsテーブルのSELECT列。
const applicationColumns = `id, application_number, business_id, status, contact_person,
	contact_person_email, ahjo_case_id, ahjo_case_guid, ahjo_request_id, ahjo_status, ahjo_error,
	created_at, updated_at`

// attachmentColumns はattachmentsテーブルのSELECT列。
const attachmentColumns = `id, application_id, attachment_type, file_name, content_type, content,
	ahjo_hash_value, ahjo_version_series_id, created_at`

// Store は申請と添付ファイルをsqliteに保存する。
type Store struct {
	// db はデータベース接続。
	db *sqlx.DB
	// now は現在時刻を返す。
	now func() time.Time
}

// NewStore は新しいStoreを生成する。
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// CreateApplication は作成中の申請を保存する。IDと申請番号はここで採番する。
// 同じ企業に作成中の申請がある場合は ErrDraftExists を返す。
func (s *Store) CreateApplication(ctx context.Context, app Application) (Application, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Application{}, fmt.Errorf("トランザクションの開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var drafts int
	if err := tx.GetContext(ctx, &drafts,
		`SELECT COUNT(*) FROM applications WHERE business_id = ? AND status = ?`,
		app.BusinessID, StatusDraft); err != nil {
		return Application{}, fmt.Errorf("作成中の申請の確認に失敗: %w", err)
	}
	if drafts > 0 {
		return Application{}, ErrDraftExists
	}

	if err := tx.GetContext(ctx, &app.Number,
		`SELECT COALESCE(MAX(application_number) + 1, ?) FROM applications`,
		firstApplicationNumber); err != nil {
		return Application{}, fmt.Errorf("申請番号の採番に失敗: %w", err)
	}

	now := s.now().UTC()
	app.ID = uuid.NewString()
	app.Status = StatusDraft
	app.CreatedAt = now
	app.UpdatedAt = now
	if _, err := tx.NamedExecContext(ctx, `INSERT INTO applications (id, application_number,
		business_id, status, contact_person, contact_person_email, created_at, updated_at)
		VALUES (:id, :application_number, :business_id, :status, :contact_person,
		:contact_person_email, :created_at, :updated_at)`, app); err != nil {
		return Application{}, fmt.Errorf("申請の保存に失敗: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Application{}, fmt.Errorf("申請の保存に失敗: %w", err)
	}
	return app, nil
}

// GetApplication はIDで申請を取得する。
func (s *Store) GetApplication(ctx context.Context, id string) (Application, error) {
	return getApplication(ctx, s.db, id)
}

// getApplication はqで申請を取得する。
func getApplication(ctx context.Context, q sqlx.QueryerContext, id string) (Application, error) {
	var app Application
	err := sqlx.GetContext(ctx, q, &app,
		`SELECT `+applicationColumns+` FROM applications WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Application{}, ErrApplicationNotFound
	}
	if err != nil {
		return Application{}, fmt.Errorf("申請の取得に失敗: %w", err)
	}
	return app, nil
}

// SubmitApplication は作成中の申請を提出済みにする。
func (s *Store) SubmitApplication(ctx context.Context, id string) (Application, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Application{}, fmt.Errorf("トランザクションの開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	app, err := getApplication(ctx, tx, id)
	if err != nil {
		return Application{}, err
	}
	if app.Status != StatusDraft {
		return Application{}, ErrNotDraft
	}

	app.Status = StatusSubmitted
	app.UpdatedAt = s.now().UTC()
	if _, err := tx.ExecContext(ctx, `UPDATE applications SET status = ?, updated_at = ? WHERE id = ?`,
		app.Status, app.UpdatedAt, app.ID); err != nil {
		return Application{}, fmt.Errorf("申請の更新に失敗: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Application{}, fmt.Errorf("申請の更新に失敗: %w", err)
	}
	return app, nil
}

// AddAttachment は添付ファイルを保存する。
// PDF要約は申請ごとに1件のみで、既存のものは置き換える。
func (s *Store) AddAttachment(ctx context.Context, a Attachment) (Attachment, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Attachment{}, fmt.Errorf("トランザクションの開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	app, err := getApplication(ctx, tx, a.ApplicationID)
	if err != nil {
		return Attachment{}, err
	}
	if (app.Status != StatusDraft && app.Status != StatusSubmitted) || app.AhjoStatus != "" {
		return Attachment{}, ErrAttachmentsLocked
	}

	if a.Type == AttachmentPDFSummary {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM attachments WHERE application_id = ? AND attachment_type = ?`,
			a.ApplicationID, AttachmentPDFSummary); err != nil {
			return Attachment{}, fmt.Errorf("既存のPDF要約の削除に失敗: %w", err)
		}
	}

	a.ID = uuid.NewString()
	a.CreatedAt = s.now().UTC()
	if _, err := tx.NamedExecContext(ctx, `INSERT INTO attachments (id, application_id,
		attachment_type, file_name, content_type, content, created_at)
		VALUES (:id, :application_id, :attachment_type, :file_name, :content_type, :content,
		:created_at)`, a); err != nil {
		return Attachment{}, fmt.Errorf("添付ファイルの保存に失敗: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Attachment{}, fmt.Errorf("添付ファイルの保存に失敗: %w", err)
	}
	return a, nil
}

// GetAttachment はIDで添付ファイルを取得する。
func (s *Store) GetAttachment(ctx context.Context, id string) (Attachment, error) {
	var a Attachment
	err := s.db.GetContext(ctx, &a, `SELECT `+attachmentColumns+` FROM attachments WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Attachment{}, ErrAttachmentNotFound
	}
	if err != nil {
		return Attachment{}, fmt.Errorf("添付ファイルの取得に失敗: %w", err)
	}
	return a, nil
}

// ListAttachments は申請の添付ファイルをアップロード順に返す。
func (s *Store) ListAttachments(ctx context.Context, applicationID string) ([]Attachment, error) {
	attachments := []Attachment{}
	if err := s.db.SelectContext(ctx, &attachments, `SELECT `+attachmentColumns+`
		FROM attachments WHERE application_id = ? ORDER BY created_at, id`, applicationID); err != nil {
		return nil, fmt.Errorf("添付ファイル一覧の取得に失敗: %w", err)
	}
	return attachments, nil
}

// ClaimCaseRequest は提出済みでAhjoへ未送信の申請を送信中にする。
//
// 条件付きの更新で状態を変えるため、同じ申請に対して同時に呼ばれても成功するのは1回だけとなる。
// 提出済みでない場合は ErrNotSubmitted、送信中または送信済みの場合は ErrCaseAlreadyRequested を返す。
// 送信中の申請には添付ファイルを追加できない。
func (s *Store) ClaimCaseRequest(ctx context.Context, applicationID string) (Application, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Application{}, fmt.Errorf("トランザクションの開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `UPDATE applications SET ahjo_status = ?, updated_at = ?
		WHERE id = ? AND status = ? AND ahjo_status = ''`,
		AhjoRequestPending, s.now().UTC(), applicationID, StatusSubmitted)
	if err != nil {
		return Application{}, fmt.Errorf("申請の更新に失敗: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Application{}, fmt.Errorf("申請の更新に失敗: %w", err)
	}

	app, err := getApplication(ctx, tx, applicationID)
	if err != nil {
		return Application{}, err
	}
	if n == 0 {
		if app.Status != StatusSubmitted {
			return Application{}, ErrNotSubmitted
		}
		return Application{}, ErrCaseAlreadyRequested
	}
	if err := tx.Commit(); err != nil {
		return Application{}, fmt.Errorf("申請の更新に失敗: %w", err)
	}
	return app, nil
}

// ReleaseCaseRequest は送信中の申請を未送信に戻す。
// Ahjoへの送信前後で失敗した場合に、再度案件を開けるようにするために使用する。
func (s *Store) ReleaseCaseRequest(ctx context.Context, applicationID string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE applications SET ahjo_status = '', updated_at = ?
		WHERE id = ? AND ahjo_status = ?`,
		s.now().UTC(), applicationID, AhjoRequestPending); err != nil {
		return fmt.Errorf("申請の更新に失敗: %w", err)
	}
	return nil
}

// MarkCaseRequested は案件を開く要求の送信結果を保存する。
// ClaimCaseRequestで送信中にした申請だけを処理中にし、送信した添付ファイルの
// ハッシュ値と同じトランザクションで更新する。送信中でない場合は ErrCaseNotClaimed を返す。
func (s *Store) MarkCaseRequested(ctx context.Context, applicationID, requestID string, hashes []ahjo.DocumentHash) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `UPDATE applications SET status = ?, ahjo_status = ?,
		ahjo_request_id = ?, ahjo_error = '', updated_at = ?
		WHERE id = ? AND status = ? AND ahjo_status = ?`,
		StatusHandling, AhjoRequestSent, requestID, s.now().UTC(),
		applicationID, StatusSubmitted, AhjoRequestPending)
	if err != nil {
		return fmt.Errorf("申請の更新に失敗: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("申請の更新に失敗: %w", err)
	}
	if n == 0 {
		if _, err := getApplication(ctx, tx, applicationID); err != nil {
			return err
		}
		return ErrCaseNotClaimed
	}

	for _, h := range hashes {
		if _, err := tx.ExecContext(ctx,
			`UPDATE attachments SET ahjo_hash_value = ? WHERE id = ? AND application_id = ?`,
			h.HashValue, h.AttachmentID, applicationID); err != nil {
			return fmt.Errorf("ハッシュ値の保存に失敗: %w", err)
		}
	}
	return tx.Commit()
}

// ApplyCallback はAhjoからのコールバックの内容を申請に反映する。
//
// requestIdが申請に保存した要求のIDと一致しない場合は ErrRequestIDMismatch を返し、何も変更しない。
// 成功時は案件番号を保存し、各記録のハッシュ値と一致する添付ファイルに
// バージョン系列IDを保存する。ハッシュ値が空の記録は無視する。
// 失敗時は連携の状態を変えずに失敗の詳細を保存する。
func (s *Store) ApplyCallback(ctx context.Context, applicationID string, cb ahjo.Callback) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	app, err := getApplication(ctx, tx, applicationID)
	if err != nil {
		return err
	}
	if app.AhjoRequestID == "" || cb.RequestID != app.AhjoRequestID {
		return ErrRequestIDMismatch
	}

	now := s.now().UTC()
	if cb.Message == ahjo.CallbackSuccess {
		if _, err := tx.ExecContext(ctx, `UPDATE applications SET ahjo_status = ?, ahjo_case_id = ?,
			ahjo_case_guid = ?, ahjo_error = '', updated_at = ? WHERE id = ?`,
			AhjoCaseOpened, cb.CaseID, cb.CaseGUID, now, applicationID); err != nil {
			return fmt.Errorf("申請の更新に失敗: %w", err)
		}
		for _, r := range cb.Records {
			if r.HashValue == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, `UPDATE attachments SET ahjo_version_series_id = ?
				WHERE application_id = ? AND ahjo_hash_value = ?`,
				r.VersionSeriesID, applicationID, r.HashValue); err != nil {
				return fmt.Errorf("バージョン系列IDの保存に失敗: %w", err)
			}
		}
	} else {
		if _, err := tx.ExecContext(ctx, `UPDATE applications SET ahjo_error = ?, updated_at = ?
			WHERE id = ?`, string(cb.FailureDetails), now, applicationID); err != nil {
			return fmt.Errorf("申請の更新に失敗: %w", err)
		}
	}
	return tx.Commit()
}
