// Package company は企業・団体の登記情報を取得する。
//
// 取得はPalveluväylä（Service Bus）を優先し、失敗した場合や応答が不正な場合は
// YRTTI（団体登録）に問い合わせる。どちらかが成功した結果はローカルに保存し、
// 両方が失敗した場合は保存済みのレコードを古いデータとして返す。
package company
