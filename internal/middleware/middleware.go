package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 上下文键
const (
	CtxRequestID   = "request_id"
	CtxUserID      = "user_id"
	CtxUserName    = "user_name"
	CtxRoles       = "roles"
	CtxPermissions = "permissions"
	CtxClaims      = "claims"
)

// AdminRole 拥有全部权限的角色
const AdminRole = "qms_admin"

// Logger 请求日志
func Logger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("query", c.Request.URL.RawQuery),
			zap.String("ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetString(CtxRequestID)),
		}
		if uid := c.GetString(CtxUserID); uid != "" {
			fields = append(fields, zap.String("user_id", uid))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case status >= 500:
			logger.Error("Server error", fields...)
		case status >= 400:
			logger.Warn("Client error", fields...)
		default:
			logger.Info("Request", fields...)
		}
	}
}

// CORS 跨域
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, Cache-Control, X-Requested-With, X-Request-ID")
		h.Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RequestID 请求ID
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(CtxRequestID, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// JWTClaims 令牌声明
type JWTClaims struct {
	UserID      string   `json:"uid"`
	Name        string   `json:"name"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"perms"`
	jwt.RegisteredClaims
}

// IssueToken 签发令牌
func IssueToken(secret string, claims JWTClaims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.Subject = claims.UserID
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	if claims.Issuer == "" {
		claims.Issuer = "nimo-qms"
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, &claims).SignedString([]byte(secret))
}

// ParseToken 校验令牌并返回声明
func ParseToken(secret, tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

func bearerToken(c *gin.Context) string {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) == 2 && parts[0] == "Bearer" {
		return parts[1]
	}
	// EventSource 无法设置请求头
	return c.Query("token")
}

func deny(c *gin.Context, status, code int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"code": code, "message": message})
}

// JWTAuth JWT认证
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			deny(c, http.StatusUnauthorized, 40100, "Authorization is required")
			return
		}

		claims, err := ParseToken(secret, tokenString)
		if err != nil {
			deny(c, http.StatusUnauthorized, 40102, "Invalid or expired token")
			return
		}

		c.Set(CtxUserID, claims.UserID)
		c.Set(CtxUserName, claims.Name)
		c.Set(CtxRoles, claims.Roles)
		c.Set(CtxPermissions, claims.Permissions)
		c.Set(CtxClaims, claims)
		c.Next()
	}
}

// RequirePermission 权限检查，管理员角色或 * 权限直接放行
func RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		perms := c.GetStringSlice(CtxPermissions)
		for _, p := range perms {
			if p == permission || p == "*" {
				c.Next()
				return
			}
		}
		for _, r := range c.GetStringSlice(CtxRoles) {
			if r == AdminRole {
				c.Next()
				return
			}
		}
		deny(c, http.StatusForbidden, 40302, "Permission denied: "+permission)
	}
}
