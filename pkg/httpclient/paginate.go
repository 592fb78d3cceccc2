package httpclient

import (
	"context"
	"fmt"
	"iter"
	"net/url"
)

// Page はカーソル方式のページネーションにおける1ページ分のレスポンス。
// 形式: { "data": [...], "meta": { "next": <url-or-null> } }
type Page[T any] struct {
	// Data はこのページの要素。
	Data []T `json:"data"`
	// Meta はページネーション情報。
	Meta PageMeta `json:"meta"`
}

// PageMeta はページネーション情報。
type PageMeta struct {
	// Count は全件数。上流が返さない場合は0。
	Count int `json:"count,omitempty"`
	// Next は次ページのURL。最終ページではnil。
	Next *string `json:"next"`
	// Previous は前ページのURL。
	Previous *string `json:"previous,omitempty"`
}

// Pages はresourceの一覧を1ページずつ返す遅延シーケンスを返す。
//
// シーケンスは前方向のみで、rangeするたびに先頭から取得し直す。
// meta.nextがnullになった時点で終了する。取得済みのページを指すカーソルを受け取った場合は
// ErrCursorLoop を返して終了する。エラーが返された後は要素を返さない。
func Pages[T any](ctx context.Context, c *Client, resource string, params url.Values) iter.Seq2[[]T, error] {
	return func(yield func([]T, error) bool) {
		next := c.ResourceURL(resource, "")
		if len(params) > 0 {
			next += "?" + params.Encode()
		}

		fetched := make(map[string]struct{})
		for next != "" {
			target, err := c.resolve(next)
			if err != nil {
				yield(nil, err)
				return
			}
			if _, ok := fetched[target]; ok {
				yield(nil, fmt.Errorf("%w: %s", ErrCursorLoop, target))
				return
			}
			fetched[target] = struct{}{}

			var page Page[T]
			if err := c.GetURL(ctx, target, &page); err != nil {
				yield(nil, err)
				return
			}
			if !yield(page.Data, nil) {
				return
			}

			next = ""
			if page.Meta.Next != nil {
				next = *page.Meta.Next
			}
		}
	}
}

// All はPagesを要素単位に展開した遅延シーケンスを返す。
// メモリ上には同時に1ページ分の要素しか保持しない。
func All[T any](ctx context.Context, c *Client, resource string, params url.Values) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for items, err := range Pages[T](ctx, c, resource, params) {
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			for _, item := range items {
				if !yield(item, nil) {
					return
				}
			}
		}
	}
}

// Collect は全ページの要素をページ順に連結して返す。
// 途中でエラーが発生した場合は、それまでに取得した要素とエラーを返す。
func Collect[T any](ctx context.Context, c *Client, resource string, params url.Values) ([]T, error) {
	var items []T
	for page, err := range Pages[T](ctx, c, resource, params) {
		if err != nil {
			return items, err
		}
		items = append(items, page...)
	}
	return items, nil
}
