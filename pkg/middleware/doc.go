// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// JWT認証トークンと外部システム向けの固定トークンの検証、送信元IPの制限、リクエストIDの付与とアクセスログ、
// パニックリカバリ、CORS設定など、tet・benefitの両サービスで共通して使用するミドルウェアを含む。
package middleware
