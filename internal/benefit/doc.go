// Package benefit はHelsinki-lisä（雇用主向け助成金）の申請を扱うサービスを提供する。
//
// 申請者は企業情報の取得、申請の作成と添付ファイルのアップロードを行い、
// 処理者は受理した申請をAhjo（市の文書管理システム）の案件として開く。
// Ahjoは添付ファイルの取得と処理結果の通知のために、このサービスを固定トークンで呼び出す。
package benefit
