// Package linkedevents はLinkedEvents APIのクライアントを提供する。
//
// TETサービスはイベントと画像をLinkedEventsに保存する。このパッケージは
// pkg/httpclient の上にイベント・画像のCRUDと、カーソル方式の一覧取得を実装する。
// 上流のエラーは httpclient.UpstreamError として呼び出し元に返す。
package linkedevents
