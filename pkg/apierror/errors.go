// Package apierror はサービス内部で発生するビジネスエラーと、
// それらおよび上流エラーを共通のJSON形式 {code, detail, response_data?} で返す処理を提供する。
package apierror

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/yjdh/pkg/httpclient"
)

// Error はステータスコードと詳細を明示したエラー。
// 上流エラーを原因として含む場合でも、このエラーの内容で応答する。
type Error struct {
	// Code はHTTPステータスコード。
	Code int
	// Detail はエラー詳細。
	Detail string
}

// Error はエラーメッセージを返す。
func (e *Error) Error() string {
	return e.Detail
}

// New は新しいErrorを生成する。
func New(code int, detail string) *Error {
	return &Error{Code: code, Detail: detail}
}

// ValidationError はリクエスト内容がビジネスルールに反することを表す。
// 上流サービスのエラーとは区別して400で返す。
type ValidationError struct {
	// Detail はエラー詳細。
	Detail string
}

// Error はエラーメッセージを返す。
func (e *ValidationError) Error() string {
	return e.Detail
}

// NewValidationError は新しいValidationErrorを生成する。
func NewValidationError(detail string) *ValidationError {
	return &ValidationError{Detail: detail}
}

// NotFoundError は対象のリソースが存在しないことを表す。
type NotFoundError struct {
	// Detail はエラー詳細。
	Detail string
}

// Error はエラーメッセージを返す。
func (e *NotFoundError) Error() string {
	return e.Detail
}

// NewNotFoundError は新しいNotFoundErrorを生成する。
func NewNotFoundError(detail string) *NotFoundError {
	return &NotFoundError{Detail: detail}
}

// ForbiddenError は操作が許可されないことを表す。
type ForbiddenError struct {
	// Detail はエラー詳細。
	Detail string
}

// Error はエラーメッセージを返す。
func (e *ForbiddenError) Error() string {
	return e.Detail
}

// NewForbiddenError は新しいForbiddenErrorを生成する。
func NewForbiddenError(detail string) *ForbiddenError {
	return &ForbiddenError{Detail: detail}
}

// From はerrを内部の呼び出し元へ返すエラー形式に変換する。
// 未知のエラーは詳細を隠して500とする。
func From(err error) httpclient.APIError {
	var (
		explicit   *Error
		validation *ValidationError
		notFound   *NotFoundError
		forbidden  *ForbiddenError
	)
	switch {
	case errors.As(err, &explicit):
		return httpclient.APIError{Code: explicit.Code, Detail: explicit.Detail}
	case errors.As(err, &validation):
		return httpclient.APIError{Code: http.StatusBadRequest, Detail: validation.Detail}
	case errors.As(err, &notFound):
		return httpclient.APIError{Code: http.StatusNotFound, Detail: notFound.Detail}
	case errors.As(err, &forbidden):
		return httpclient.APIError{Code: http.StatusForbidden, Detail: forbidden.Detail}
	}
	api, _ := httpclient.AsAPIError(err)
	return api
}

// Render はerrを共通のJSON形式でレスポンスに書き込み、後続のハンドラを中断する。
func Render(c *gin.Context, err error) {
	api := From(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(api.Code, api)
}
