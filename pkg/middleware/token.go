package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/yjdh/pkg/httpclient"
)

// TokenAuth は "Authorization: Token <token>" 形式の固定トークンを検証するGinミドルウェアを返す。
// Ahjoのようにサービスアカウントで呼び出す外部システム向けに使用する。
// tokenが空の場合はすべてのリクエストを拒否する。
func TokenAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got, found := strings.CutPrefix(c.GetHeader("Authorization"), "Token ")
		if !found || token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, httpclient.APIError{
				Code:   http.StatusUnauthorized,
				Detail: "認証情報が不正です",
			})
			return
		}
		c.Next()
	}
}
