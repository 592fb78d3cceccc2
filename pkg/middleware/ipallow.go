package middleware

import (
	"net/http"
	"net/netip"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/yjdh/pkg/httpclient"
)

// IPAllowList は送信元IPがallowedのいずれかに含まれるリクエストだけを通すGinミドルウェアを返す。
// 送信元IPはgin.Context.ClientIPで判定するため、信頼するプロキシはエンジン側で設定しておくこと。
// allowedが空の場合はすべてのリクエストを拒否する。
func IPAllowList(allowed []netip.Prefix) gin.HandlerFunc {
	return func(c *gin.Context) {
		addr, err := netip.ParseAddr(c.ClientIP())
		if err == nil && containsAddr(allowed, addr.Unmap()) {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusForbidden, httpclient.APIError{
			Code:   http.StatusForbidden,
			Detail: "許可されていない送信元です",
		})
	}
}

func containsAddr(prefixes []netip.Prefix, addr netip.Addr) bool {
	for _, p := range prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
