// Package ahjo はAhjo（ヘルシンキ市の文書管理システム）との連携を提供する。
//
// 申請と添付ファイルから案件（Case）を開くためのペイロードを組み立て、
// Ahjo REST APIへ送信する。Ahjoは処理結果をコールバックで通知し、
// 添付ファイルはペイロードに含めたFileURIから取得する。
package ahjo
