package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/yjdh/pkg/httpclient"
	"go.uber.org/zap"
)

// Recovery はパニックからの回復を行うGinミドルウェアを返す。
// パニック発生時にスタックトレースをログに出力し、共通エラー形式の500を返す。
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("パニックから回復しました",
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.Any("panic", r),
					zap.Stack("stack"),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, httpclient.APIError{
					Code:   http.StatusInternalServerError,
					Detail: "内部サーバーエラーが発生しました",
				})
			}
		}()
		c.Next()
	}
}
