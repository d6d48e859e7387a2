package middleware

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/coo-agent/coo-backend/internal/common"
)

const (
	// PrincipalKey is the gin context key holding the verified caller
	// identity extracted from the bearer token.
	PrincipalKey = "principal"

	RequestIDHeader = "X-Request-ID"
)

// RequestID attaches an id to every request for log correlation. An inbound
// id is kept so gateways can trace through.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(RequestIDHeader, id)
		c.Writer.Header().Set(RequestIDHeader, id)
		c.Next()
	}
}

// Recovery turns panics into the standard 500 envelope instead of a closed
// connection.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("panic recovered: %v (request_id=%s)", r, c.GetString(RequestIDHeader))
				common.Fail(c, http.StatusInternalServerError, 50000, "internal error")
				c.Abort()
			}
		}()
		c.Next()
	}
}

// PrincipalRequired validates the bearer token and stores its subject as the
// caller principal. The host platform mints the tokens; this service only
// verifies them.
func PrincipalRequired(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			common.Fail(c, http.StatusUnauthorized, 40101, "missing bearer token")
			c.Abort()
			return
		}
		raw := strings.TrimPrefix(auth, "Bearer ")

		token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			common.Fail(c, http.StatusUnauthorized, 40102, "invalid token")
			c.Abort()
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			common.Fail(c, http.StatusUnauthorized, 40102, "invalid token")
			c.Abort()
			return
		}
		sub, _ := claims["sub"].(string)
		if sub == "" {
			common.Fail(c, http.StatusUnauthorized, 40103, "token missing subject")
			c.Abort()
			return
		}

		c.Set(PrincipalKey, sub)
		c.Next()
	}
}

// Principal returns the verified caller identity set by PrincipalRequired.
func Principal(c *gin.Context) (string, bool) {
	v, ok := c.Get(PrincipalKey)
	if !ok {
		return "", false
	}
	p, ok := v.(string)
	return p, ok && p != ""
}
