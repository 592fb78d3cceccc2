package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/yjdh/pkg/httpclient"
)

const (
	corsAllowMethods = "GET, POST, OPTIONS"
	corsAllowHeaders = "Authorization, Content-Type, X-Request-ID"
	// X-Data-Source は企業情報の取得元をフロントエンドに伝える。
	corsExposeHeaders = "X-Request-ID, X-Data-Source"
	corsMaxAge        = "86400"
)

// CORS は申請者・処理者向けフロントエンドからのクロスオリジンリクエストを許可するGinミドルウェアを返す。
//
// 許可リストに含まれるオリジンには資格情報付きのアクセスを許可する。
// プリフライト（Access-Control-Request-Method付きのOPTIONS）は許可オリジンなら204、
// それ以外は403で応答し、ハンドラーまで到達させない。
// オリジンの末尾のスラッシュは無視する。
func CORS(allowedOrigins []string) gin.HandlerFunc {
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o = strings.TrimSuffix(o, "/"); o != "" {
			origins[o] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		// 応答内容がOriginによって変わるため、キャッシュのキーに含めさせる
		c.Writer.Header().Add("Vary", "Origin")

		origin := c.GetHeader("Origin")
		_, allowed := origins[origin]
		if allowed {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Expose-Headers", corsExposeHeaders)
		}

		preflight := c.Request.Method == http.MethodOptions && c.GetHeader("Access-Control-Request-Method") != ""
		if !preflight {
			c.Next()
			return
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusForbidden, httpclient.APIError{
				Code:   http.StatusForbidden,
				Detail: "許可されていないオリジンです",
			})
			return
		}
		c.Header("Access-Control-Allow-Methods", corsAllowMethods)
		c.Header("Access-Control-Allow-Headers", corsAllowHeaders)
		c.Header("Access-Control-Max-Age", corsMaxAge)
		c.AbortWithStatus(http.StatusNoContent)
	}
}
