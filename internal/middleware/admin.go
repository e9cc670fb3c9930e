package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// AdminAuth 管理接口认证中间件
type AdminAuth struct {
	token string
}

// NewAdminAuth 创建管理接口认证中间件
func NewAdminAuth(token string) *AdminAuth {
	return &AdminAuth{token: token}
}

// RequireAdminToken 要求管理令牌认证
func (m *AdminAuth) RequireAdminToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("X-Admin-Token")
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "missing admin token",
			})
			c.Abort()
			return
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(m.token)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "invalid admin token",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
