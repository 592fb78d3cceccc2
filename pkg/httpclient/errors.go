package httpclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Kind は上流エラーの分類を表す。
type Kind int

const (
	// KindUnavailable は接続エラーまたはタイムアウト。呼び出し元でリトライ可能。
	KindUnavailable Kind = iota + 1
	// KindMisconfigured は上流が401/403を返したことを表す。
	// 呼び出し元の誤りではなくサーバー側の認証設定の問題として扱い、リトライしない。
	KindMisconfigured
	// KindServerError は上流の5xx。バックオフ付きでリトライ可能。
	KindServerError
	// KindRejected は上流の4xx（401/403以外）。リクエスト自体が不正でありリトライしない。
	KindRejected
)

// String はKindの名前を返す。
func (k Kind) String() string {
	switch k {
	case KindUnavailable:
		return "UpstreamUnavailable"
	case KindMisconfigured:
		return "UpstreamMisconfigured"
	case KindServerError:
		return "UpstreamServerError"
	case KindRejected:
		return "UpstreamRejected"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

var (
	// ErrUnavailable はerrors.IsでKindUnavailableを判定するための番兵エラー。
	ErrUnavailable = errors.New("upstream unavailable")
	// ErrMisconfigured はerrors.IsでKindMisconfiguredを判定するための番兵エラー。
	ErrMisconfigured = errors.New("upstream misconfigured")
	// ErrServerError はerrors.IsでKindServerErrorを判定するための番兵エラー。
	ErrServerError = errors.New("upstream server error")
	// ErrRejected はerrors.IsでKindRejectedを判定するための番兵エラー。
	ErrRejected = errors.New("upstream rejected request")

	// ErrCursorLoop は取得済みのページを再度指すカーソルを受け取ったことを表す。
	ErrCursorLoop = errors.New("ページネーションのカーソルが取得済みのページを指しています")
	// ErrForeignURL はベースURL外のURLへのアクセスを拒否したことを表す。
	ErrForeignURL = errors.New("上流サービス外のURLへのアクセスは許可されていません")
)

// sentinel はKindに対応する番兵エラーを返す。
func (k Kind) sentinel() error {
	switch k {
	case KindUnavailable:
		return ErrUnavailable
	case KindMisconfigured:
		return ErrMisconfigured
	case KindServerError:
		return ErrServerError
	case KindRejected:
		return ErrRejected
	}
	return nil
}

// UpstreamError は上流サービス呼び出しの失敗を表す。
type UpstreamError struct {
	// Kind はエラーの分類。
	Kind Kind
	// Service は上流サービス名。
	Service string
	// Code は内部の呼び出し元に返すHTTPステータスコード。
	Code int
	// StatusCode は上流が返したHTTPステータスコード。通信エラーの場合は0。
	StatusCode int
	// Detail は人が読むためのエラー詳細。
	Detail string
	// ResponseData はKindRejectedの場合に保持する上流のレスポンスボディ。
	ResponseData json.RawMessage
	// Err は原因となったエラー。
	Err error
}

// Error はエラーメッセージを返す。
func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("%s: %s (code=%d", e.Kind, e.Detail, e.Code)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(", upstream_status=%d", e.StatusCode)
	}
	msg += ")"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap は原因となったエラーを返す。
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Is はtargetがこのエラーの分類に対応する番兵エラーかを判定する。
func (e *UpstreamError) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// Retryable はこのエラーが呼び出し元でリトライ可能かを返す。
func (e *UpstreamError) Retryable() bool {
	return e.Kind == KindUnavailable || e.Kind == KindServerError
}

// APIError は内部の呼び出し元へ返すエラー形式。
type APIError struct {
	// Code はHTTPステータスコード。
	Code int `json:"code"`
	// Detail はエラー詳細。
	Detail string `json:"detail"`
	// ResponseData は上流のレスポンスボディ（存在する場合のみ）。
	ResponseData json.RawMessage `json:"response_data,omitempty"`
}

// APIError はUpstreamErrorを内部向けのエラー形式に変換する。
func (e *UpstreamError) APIError() APIError {
	return APIError{Code: e.Code, Detail: e.Detail, ResponseData: e.ResponseData}
}

// Retryable はerrが呼び出し元でリトライ可能な上流エラーかを返す。
func Retryable(err error) bool {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Retryable()
	}
	return false
}

// AsAPIError はerrに含まれる上流エラーをAPIError形式で返す。
// 上流エラーでない場合は500のAPIErrorとfalseを返す。
func AsAPIError(err error) (APIError, bool) {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.APIError(), true
	}
	return APIError{Code: http.StatusInternalServerError, Detail: "内部サーバーエラーが発生しました"}, false
}
