package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/yjdh/pkg/httpclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestFrom(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		err        error
		wantCode   int
		wantDetail string
	}{
		{
			name:       "ValidationErrorは400になる",
			err:        NewValidationError("company already has a draft application"),
			wantCode:   http.StatusBadRequest,
			wantDetail: "company already has a draft application",
		},
		{
			name:       "ラップされたNotFoundErrorは404になる",
			err:        fmt.Errorf("取得に失敗: %w", NewNotFoundError("application not found")),
			wantCode:   http.StatusNotFound,
			wantDetail: "application not found",
		},
		{
			name:       "ForbiddenErrorは403になる",
			err:        NewForbiddenError("Could not upload"),
			wantCode:   http.StatusForbidden,
			wantDetail: "Could not upload",
		},
		{
			name: "上流エラーはそのコードと詳細になる",
			err: &httpclient.UpstreamError{
				Kind: httpclient.KindMisconfigured, Code: 500, Detail: "Linked Events API key misconfiguration in backend.",
			},
			wantCode:   http.StatusInternalServerError,
			wantDetail: "Linked Events API key misconfiguration in backend.",
		},
		{
			name: "Errorは原因の上流エラーより優先される",
			err: errors.Join(
				New(http.StatusInternalServerError, "Could not handle the response from Palveluväylä and YRTTI API"),
				&httpclient.UpstreamError{Kind: httpclient.KindRejected, Code: 404, Detail: "Request rejected by YRTTI."},
			),
			wantCode:   http.StatusInternalServerError,
			wantDetail: "Could not handle the response from Palveluväylä and YRTTI API",
		},
		{
			name:       "未知のエラーは詳細を隠して500になる",
			err:        errors.New("sql: connection refused"),
			wantCode:   http.StatusInternalServerError,
			wantDetail: "内部サーバーエラーが発生しました",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := From(tc.err)
			assert.Equal(t, tc.wantCode, got.Code)
			assert.Equal(t, tc.wantDetail, got.Detail)
		})
	}
}

func TestRender(t *testing.T) {
	t.Parallel()

	t.Run("上流の拒否レスポンスがresponse_dataとして返ること", func(t *testing.T) {
		t.Parallel()

		router := gin.New()
		router.GET("/test", func(c *gin.Context) {
			Render(c, &httpclient.UpstreamError{
				Kind:         httpclient.KindRejected,
				Code:         http.StatusBadRequest,
				Detail:       "Request rejected by Linked Events.",
				ResponseData: json.RawMessage(`{"name":["required"]}`),
			})
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.EqualValues(t, 400, body["code"])
		assert.Equal(t, map[string]any{"name": []any{"required"}}, body["response_data"])
	})
}
