package ahjo

import "encoding/json"

// CallbackStatus はコールバックで通知される処理結果。
type CallbackStatus string

const (
	// CallbackSuccess は要求が受理されたことを表す。
	CallbackSuccess CallbackStatus = "Success"
	// CallbackFailure は要求が失敗したことを表す。
	CallbackFailure CallbackStatus = "Failure"
)

// Callback はAhjoから送られるコールバックの内容。
type Callback struct {
	// Message は処理結果。
	Message CallbackStatus `json:"message"`
	// RequestID はAhjoが採番したリクエストID。
	RequestID string `json:"requestId"`
	// CaseID はAhjoの案件番号（例: "HEL 2023-999999"）。失敗時は空。
	CaseID string `json:"caseId,omitempty"`
	// CaseGUID は案件のGUID。
	CaseGUID string `json:"caseGuid,omitempty"`
	// Records は記録ごとの処理結果。
	Records []CallbackRecord `json:"records,omitempty"`
	// FailureDetails は失敗時の詳細。
	FailureDetails json.RawMessage `json:"failureDetails,omitempty"`
}

// CallbackRecord は記録ごとの処理結果。
type CallbackRecord struct {
	FileURI         string `json:"fileURI"`
	Status          string `json:"status"`
	HashValue       string `json:"hashValue"`
	VersionSeriesID string `json:"versionSeriesId"`
}
