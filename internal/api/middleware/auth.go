package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/Vasilion/UnyX-Social/config"
	"github.com/Vasilion/UnyX-Social/internal/identity"
	"github.com/Vasilion/UnyX-Social/pkg/logger"
)

const identityKey = "identity"

// Identity 解析 Bearer token（HS256，sub=用户ID）；缺失或无效时为匿名身份，
// 是否需要登录由各业务操作决定。EventSource 无法设置请求头，允许 access_token 查询参数。
func Identity(cfg config.JWTConfig) gin.HandlerFunc {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	parser := jwt.NewParser(opts...)
	key := []byte(cfg.Secret)

	return func(c *gin.Context) {
		id := identity.Anonymous
		if raw := bearer(c); raw != "" && len(key) > 0 {
			token, err := parser.Parse(raw, func(*jwt.Token) (interface{}, error) { return key, nil })
			if err != nil {
				logger.Debug("rejecting bearer token", zap.Error(err))
			} else if sub, err := token.Claims.GetSubject(); err == nil && sub != "" {
				id = identity.User(sub)
			}
		}
		c.Set(identityKey, id)
		c.Request = c.Request.WithContext(identity.WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

func bearer(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return c.Query("access_token")
}

// Caller returns the identity resolved by Identity.
func Caller(c *gin.Context) identity.Identity {
	if v, ok := c.Get(identityKey); ok {
		if id, ok := v.(identity.Identity); ok {
			return id
		}
	}
	return identity.FromContext(c.Request.Context())
}
