// Package tet はTET（職業体験）イベントサービスの内部実装を提供する。
//
// イベントと画像はLinkedEventsに保存されており、このサービスは認証済みの
// 利用者からのリクエストをLinkedEventsへ中継する。上流のエラーは
// {code, detail, response_data?} 形式に変換して返す。
package tet
