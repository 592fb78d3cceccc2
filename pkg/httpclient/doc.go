// Package httpclient は外部の上流サービス（LinkedEvents、Palveluväylä、YRTTI、Ahjo）を
// 呼び出すための汎用HTTPクライアントを提供する。
//
// APIキーまたはBearerトークンによる認証、固定タイムアウト、
// カーソル方式のページネーション、上流エラーの分類（Unavailable / Misconfigured /
// ServerError / Rejected）を一か所にまとめ、各サービスのクライアントはこの上に構築する。
// キャッシュと自動リトライは行わない。リトライ可否の判定は Retryable で呼び出し元が行う。
package httpclient
