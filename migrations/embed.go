// Package migrations はbenefitサービスのsqliteスキーマを埋め込む。
package migrations

import "embed"

// FS はマイグレーションファイル群。pkg/migration.Run に渡す。
//
//go:embed *.sql
var FS embed.FS

// Dir はFS内のマイグレーションファイルのディレクトリ。
const Dir = "."
