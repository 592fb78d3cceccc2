package tet

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/yjdh/internal/linkedevents"
	"github.com/nao1215/yjdh/pkg/config"
	"github.com/nao1215/yjdh/pkg/middleware"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testJWTSecret はテスト用のJWT署名秘密鍵。
const testJWTSecret = "test-secret-key"

// newTestServer はupstreamをLinkedEventsとして使うテスト用TETサーバーを生成する。
func newTestServer(t *testing.T, upstream http.Handler) *Server {
	t.Helper()

	ts := httptest.NewServer(upstream)
	t.Cleanup(ts.Close)

	events, err := linkedevents.NewClient(config.LinkedEventsConfig{
		URL:     ts.URL + "/v1",
		APIKey:  "test-key",
		Timeout: 5 * time.Second,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewClient()でエラーが発生: %v", err)
	}

	cfg := config.Config{
		Server: config.ServerConfig{Port: "0", Env: "test"},
		Auth:   config.AuthConfig{JWTSecret: testJWTSecret, TokenTTL: time.Hour},
	}
	return NewServer(cfg, events, zap.NewNop())
}

// authHeader はテスト用のAuthorizationヘッダー値を返す。
func authHeader(t *testing.T) string {
	t.Helper()

	token, err := middleware.GenerateJWT(testJWTSecret, middleware.Identity{UserID: "user-1", Email: "u@example.com"}, time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT()でエラーが発生: %v", err)
	}
	return "Bearer " + token
}

// do はテスト用サーバーにリクエストを送信する。
func do(t *testing.T, s *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()

	req.Header.Set("Authorization", authHeader(t))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

// decodeError はエラーレスポンスを読み込む。
func decodeError(t *testing.T, w *httptest.ResponseRecorder) (code int, detail string, responseData json.RawMessage) {
	t.Helper()

	var body struct {
		Code         int             `json:"code"`
		Detail       string          `json:"detail"`
		ResponseData json.RawMessage `json:"response_data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("レスポンスボディのパースに失敗: %v (%s)", err, w.Body.String())
	}
	return body.Code, body.Detail, body.ResponseData
}

// TestHealth はヘルスチェックを検証する。
func TestHealth(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, http.NotFoundHandler())
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
	}
}

// TestListEvents はイベント一覧の取得を検証する。
func TestListEvents(t *testing.T) {
	t.Parallel()

	t.Run("全ページのイベントが返ること", func(t *testing.T) {
		t.Parallel()

		var mu sync.Mutex
		var publisher string
		mux := http.NewServeMux()
		mux.HandleFunc("GET /v1/event/", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if r.URL.Query().Get("page") == "2" {
				_, _ = w.Write([]byte(`{"data": [{"id": "tet:2"}], "meta": {"next": null}}`))
				return
			}
			mu.Lock()
			publisher = r.URL.Query().Get("publisher_ancestor")
			mu.Unlock()
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]any{{"id": "tet:1"}},
				"meta": map[string]any{"next": "http://" + r.Host + "/v1/event/?page=2"},
			})
		})

		s := newTestServer(t, mux)
		w := do(t, s, httptest.NewRequest(http.MethodGet, "/v1/events?publisher=ahjo:00001", nil))

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d (%s)", w.Code, http.StatusOK, w.Body.String())
		}
		var events []map[string]any
		if err := json.Unmarshal(w.Body.Bytes(), &events); err != nil {
			t.Fatalf("レスポンスボディのパースに失敗: %v", err)
		}
		if len(events) != 2 {
			t.Errorf("len(events) = %d, want 2", len(events))
		}
		mu.Lock()
		defer mu.Unlock()
		if publisher != "ahjo:00001" {
			t.Errorf("publisher_ancestor = %q, want %q", publisher, "ahjo:00001")
		}
	})

	t.Run("上流が5xxの場合は503が返ること", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("<html>Bad Gateway</html>"))
		}))
		w := do(t, s, httptest.NewRequest(http.MethodGet, "/v1/events", nil))

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusServiceUnavailable)
		}
		code, detail, data := decodeError(t, w)
		if code != http.StatusServiceUnavailable || detail != "Server error from Linked Events." {
			t.Errorf("code = %d, detail = %q", code, detail)
		}
		if len(data) != 0 {
			t.Errorf("response_data = %s, want empty", data)
		}
	})

	t.Run("認証なしの場合は401が返ること", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, http.NotFoundHandler())
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/events", nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})
}

// TestEventCRUD はイベントの取得・作成・更新・削除の中継を検証する。
func TestEventCRUD(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/event/{id}/", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "missing" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail": "Not found."}`))
			return
		}
		_, _ = w.Write([]byte(`{"id": "tet:1", "location": {"id": "tprek:1"}}`))
	})
	mux.HandleFunc("POST /v1/event/", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["name"] == nil {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"name": ["This field is required."]}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": "tet:new"}`))
	})
	mux.HandleFunc("PUT /v1/event/{id}/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": "` + r.PathValue("id") + `"}`))
	})
	mux.HandleFunc("DELETE /v1/event/{id}/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	s := newTestServer(t, mux)

	t.Run("イベントが上流のJSONのまま返ること", func(t *testing.T) {
		t.Parallel()

		w := do(t, s, httptest.NewRequest(http.MethodGet, "/v1/events/tet:1", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		if !strings.Contains(w.Body.String(), `"location"`) {
			t.Errorf("body = %s", w.Body.String())
		}
	})

	t.Run("上流の404はレスポンスボディとともに返ること", func(t *testing.T) {
		t.Parallel()

		w := do(t, s, httptest.NewRequest(http.MethodGet, "/v1/events/missing", nil))
		if w.Code != http.StatusNotFound {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusNotFound)
		}
		_, _, data := decodeError(t, w)
		if string(data) != `{"detail": "Not found."}` {
			t.Errorf("response_data = %s", data)
		}
	})

	t.Run("作成できること", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(`{"name": {"fi": "Uusi"}}`))
		req.Header.Set("Content-Type", "application/json")
		w := do(t, s, req)
		if w.Code != http.StatusCreated {
			t.Fatalf("ステータスコード = %d, want %d (%s)", w.Code, http.StatusCreated, w.Body.String())
		}
	})

	t.Run("上流の検証エラーは400として返ること", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(`{"short_description": {}}`))
		req.Header.Set("Content-Type", "application/json")
		w := do(t, s, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusBadRequest)
		}
		_, _, data := decodeError(t, w)
		if !strings.Contains(string(data), "This field is required.") {
			t.Errorf("response_data = %s", data)
		}
	})

	t.Run("不正なJSONは上流に送らず400を返すこと", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodPut, "/v1/events/tet:1", strings.NewReader(`{`))
		req.Header.Set("Content-Type", "application/json")
		w := do(t, s, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("更新と削除ができること", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodPut, "/v1/events/tet:1", strings.NewReader(`{"name": {"fi": "Muokattu"}}`))
		req.Header.Set("Content-Type", "application/json")
		if w := do(t, s, req); w.Code != http.StatusOK {
			t.Errorf("PUT ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		if w := do(t, s, httptest.NewRequest(http.MethodDelete, "/v1/events/tet:1", nil)); w.Code != http.StatusNoContent {
			t.Errorf("DELETE ステータスコード = %d, want %d", w.Code, http.StatusNoContent)
		}
	})
}

// newUploadRequest は画像アップロードのリクエストを生成する。
func newUploadRequest(t *testing.T) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("name", "kuva")
	part, err := mw.CreateFormFile("image", "kuva.png")
	if err != nil {
		t.Fatalf("CreateFormFile()でエラーが発生: %v", err)
	}
	_, _ = part.Write([]byte("PNGDATA"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/images", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// TestUploadImage は画像アップロードのエラー変換を検証する。
func TestUploadImage(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		status     int
		wantCode   int
		wantDetail string
	}{
		{name: "成功", status: http.StatusCreated, wantCode: http.StatusCreated},
		{name: "上流が400", status: http.StatusBadRequest, wantCode: http.StatusBadRequest, wantDetail: "File not accepted"},
		{name: "上流が413", status: http.StatusRequestEntityTooLarge, wantCode: http.StatusForbidden, wantDetail: "Could not upload"},
		{name: "上流が500", status: http.StatusInternalServerError, wantCode: http.StatusForbidden, wantDetail: "Could not upload"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if _, _, err := r.FormFile("image"); err != nil {
					w.WriteHeader(http.StatusTeapot)
					return
				}
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"id": 7, "name": "kuva"}`))
			}))
			w := do(t, s, newUploadRequest(t))

			if w.Code != tc.wantCode {
				t.Fatalf("ステータスコード = %d, want %d (%s)", w.Code, tc.wantCode, w.Body.String())
			}
			if tc.wantDetail == "" {
				return
			}
			if _, detail, _ := decodeError(t, w); detail != tc.wantDetail {
				t.Errorf("detail = %q, want %q", detail, tc.wantDetail)
			}
		})
	}

	t.Run("ファイルが無い場合は400が返ること", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, http.NotFoundHandler())
		req := httptest.NewRequest(http.MethodPost, "/v1/images", strings.NewReader("name=kuva"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if w := do(t, s, req); w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

// TestImageCleaner は未使用画像の削除を検証する。
func TestImageCleaner(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var deleted []string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/event/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data": [{"id": "tet:1", "images": [{"id": 1}]}, {"id": "tet:2", "images": []}], "meta": {"next": null}}`))
	})
	mux.HandleFunc("GET /v1/image/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			_, _ = w.Write([]byte(`{"data": [{"id": 3}], "meta": {"next": null}}`))
			return
		}
		_, _ = w.Write([]byte(`{"data": [{"id": 1}, {"id": 2}], "meta": {"next": "http://` + r.Host + `/v1/image/?page=2"}}`))
	})
	mux.HandleFunc("DELETE /v1/image/{id}/", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		deleted = append(deleted, r.PathValue("id"))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	s := newTestServer(t, mux)

	var pages int
	cleaner := NewImageCleaner(s.events, zap.NewNop(), false)
	result, err := cleaner.Run(context.Background(), func(CleanResult) { pages++ })
	if err != nil {
		t.Fatalf("Run()でエラーが発生: %v", err)
	}
	if result.Checked != 3 || result.Deleted != 2 || pages != 2 {
		t.Errorf("result = %+v, pages = %d", result, pages)
	}
	mu.Lock()
	defer mu.Unlock()
	if strings.Join(deleted, ",") != "2,3" {
		t.Errorf("deleted = %v, want [2 3]", deleted)
	}
}
