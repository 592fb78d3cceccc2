package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
)

// pagedServer はカーソル方式のページネーションを返すテスト用サーバー。
type pagedServer struct {
	// ts はHTTPテストサーバー。
	ts *httptest.Server
	// mu はrequestsへの並行アクセスを保護する。
	mu sync.Mutex
	// requests は受け取ったリクエストのクエリ文字列。
	requests []string
}

// newPagedServer はpagesの内容を順に返すテストサーバーを起動する。
// nextOf(i) が空文字列を返すページが最終ページとなる。
func newPagedServer(t *testing.T, pages [][]int, nextOf func(ts *httptest.Server, i int) string) *pagedServer {
	t.Helper()

	ps := &pagedServer{}
	ps.ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ps.mu.Lock()
		ps.requests = append(ps.requests, r.URL.RawQuery)
		ps.mu.Unlock()

		i := 0
		if p := r.URL.Query().Get("page"); p != "" {
			fmt.Sscanf(p, "%d", &i)
		}
		if i >= len(pages) {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		var next *string
		if n := nextOf(ps.ts, i); n != "" {
			next = &n
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Page[int]{Data: pages[i], Meta: PageMeta{Next: next}})
	}))
	t.Cleanup(ps.ts.Close)
	return ps
}

// requestCount は受け取ったリクエスト数を返す。
func (ps *pagedServer) requestCount() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return len(ps.requests)
}

// sequentialNext は i+1 ページ目を指すカーソルを返す。
func sequentialNext(total int) func(ts *httptest.Server, i int) string {
	return func(ts *httptest.Server, i int) string {
		if i+1 >= total {
			return ""
		}
		return fmt.Sprintf("%s/event/?data_source=tet&page=%d", ts.URL, i+1)
	}
}

// TestPages はカーソル方式のページ取得を検証する。
func TestPages(t *testing.T) {
	t.Parallel()

	t.Run("全ページの要素がページ順に連結されること", func(t *testing.T) {
		t.Parallel()

		pages := [][]int{{1, 2}, {3}, {}, {4, 5, 6}}
		ps := newPagedServer(t, pages, sequentialNext(len(pages)))
		client := newTestClient(t, ps.ts.URL)

		items, err := Collect[int](context.Background(), client, "event", url.Values{"data_source": {"tet"}})
		if err != nil {
			t.Fatalf("Collect()でエラーが発生: %v", err)
		}

		want := []int{1, 2, 3, 4, 5, 6}
		if fmt.Sprint(items) != fmt.Sprint(want) {
			t.Errorf("items = %v, want %v", items, want)
		}
		if ps.requestCount() != len(pages) {
			t.Errorf("リクエスト数 = %d, want %d", ps.requestCount(), len(pages))
		}
		if ps.requests[0] != "data_source=tet" {
			t.Errorf("最初のクエリ = %q, want %q", ps.requests[0], "data_source=tet")
		}
	})

	t.Run("1ページずつ返され途中で止めると以降のページを取得しないこと", func(t *testing.T) {
		t.Parallel()

		pages := [][]int{{1}, {2}, {3}}
		ps := newPagedServer(t, pages, sequentialNext(len(pages)))
		client := newTestClient(t, ps.ts.URL)

		var got [][]int
		for page, err := range Pages[int](context.Background(), client, "event", nil) {
			if err != nil {
				t.Fatalf("Pages()でエラーが発生: %v", err)
			}
			got = append(got, page)
			break
		}

		if len(got) != 1 || got[0][0] != 1 {
			t.Errorf("got = %v, want [[1]]", got)
		}
		if ps.requestCount() != 1 {
			t.Errorf("リクエスト数 = %d, want 1", ps.requestCount())
		}
	})

	t.Run("シーケンスを再度rangeすると先頭から取得し直すこと", func(t *testing.T) {
		t.Parallel()

		pages := [][]int{{1}, {2}}
		ps := newPagedServer(t, pages, sequentialNext(len(pages)))
		client := newTestClient(t, ps.ts.URL)

		seq := All[int](context.Background(), client, "event", nil)
		for range 2 {
			var items []int
			for item, err := range seq {
				if err != nil {
					t.Fatalf("All()でエラーが発生: %v", err)
				}
				items = append(items, item)
			}
			if fmt.Sprint(items) != "[1 2]" {
				t.Errorf("items = %v, want [1 2]", items)
			}
		}
		if ps.requestCount() != 4 {
			t.Errorf("リクエスト数 = %d, want 4", ps.requestCount())
		}
	})

	t.Run("取得済みページを指すカーソルでErrCursorLoopが返ること", func(t *testing.T) {
		t.Parallel()

		pages := [][]int{{1}, {2}}
		// 2ページ目のカーソルが自分自身を指し返す
		loop := func(ts *httptest.Server, _ int) string {
			return ts.URL + "/event/?page=1"
		}
		ps := newPagedServer(t, pages, loop)
		client := newTestClient(t, ps.ts.URL)

		items, err := Collect[int](context.Background(), client, "event", nil)
		if !errors.Is(err, ErrCursorLoop) {
			t.Fatalf("errors.Is(err, ErrCursorLoop) = false: %v", err)
		}
		if fmt.Sprint(items) != "[1 2]" {
			t.Errorf("items = %v, want [1 2]", items)
		}
		if ps.requestCount() != 2 {
			t.Errorf("リクエスト数 = %d, want 2", ps.requestCount())
		}
	})

	t.Run("相対カーソルと絶対カーソルが同じページを指す場合に二重取得しないこと", func(t *testing.T) {
		t.Parallel()

		pages := [][]int{{1}, {2}}
		// 1ページ目は相対URL、2ページ目は同じページを絶対URLで指し返す
		mixed := func(ts *httptest.Server, i int) string {
			if i == 0 {
				return "/event/?page=1"
			}
			return ts.URL + "/event/?page=1"
		}
		ps := newPagedServer(t, pages, mixed)
		client := newTestClient(t, ps.ts.URL)

		items, err := Collect[int](context.Background(), client, "event", nil)
		if !errors.Is(err, ErrCursorLoop) {
			t.Fatalf("errors.Is(err, ErrCursorLoop) = false: %v", err)
		}
		if fmt.Sprint(items) != "[1 2]" {
			t.Errorf("items = %v, want [1 2]", items)
		}
		if ps.requestCount() != 2 {
			t.Errorf("リクエスト数 = %d, want 2", ps.requestCount())
		}
	})

	t.Run("途中のページでエラーが発生した場合にエラーで終了すること", func(t *testing.T) {
		t.Parallel()

		pages := [][]int{{1}}
		broken := func(ts *httptest.Server, i int) string {
			return ts.URL + "/event/?page=5"
		}
		ps := newPagedServer(t, pages, broken)
		client := newTestClient(t, ps.ts.URL)

		var items []int
		var lastErr error
		for item, err := range All[int](context.Background(), client, "event", nil) {
			if err != nil {
				lastErr = err
				continue
			}
			items = append(items, item)
		}

		if !errors.Is(lastErr, ErrRejected) {
			t.Fatalf("errors.Is(err, ErrRejected) = false: %v", lastErr)
		}
		if fmt.Sprint(items) != "[1]" {
			t.Errorf("items = %v, want [1]", items)
		}
	})

	t.Run("別ホストを指すカーソルは取得しないこと", func(t *testing.T) {
		t.Parallel()

		pages := [][]int{{1}}
		foreign := func(_ *httptest.Server, _ int) string {
			return "https://attacker.example.com/event/?page=1"
		}
		ps := newPagedServer(t, pages, foreign)
		client := newTestClient(t, ps.ts.URL)

		_, err := Collect[int](context.Background(), client, "event", nil)
		if !errors.Is(err, ErrForeignURL) {
			t.Fatalf("errors.Is(err, ErrForeignURL) = false: %v", err)
		}
	})
}
