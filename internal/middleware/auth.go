package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"
)

// 上下文键，后续 handler 通过它们取认证身份
const (
	CtxPlayerID = "player_id"
	CtxUsername = "username"
)

// ErrMissingAuthHeader 表示请求缺少 Authorization 头。
var ErrMissingAuthHeader = errors.New("missing Authorization header")

// Auth 返回一个 Gin 中间件，验证平台签发的 JWT 并把玩家身份写入上下文。
// 身份由上游的账号服务签发，这里只做消费：验签、提取 player_id / username。
// jwtSecret: 用于验证签名的密钥，必须提供。
func Auth(jwtSecret string) gin.HandlerFunc {
	if jwtSecret == "" {
		panic("JWT secret cannot be empty for Auth middleware")
	}

	return func(c *gin.Context) {
		// 1. 从请求头提取 Token (WebSocket 握手允许用 query 参数兜底，
		// 浏览器的 WebSocket API 不能自定义请求头)
		tokenStr, err := extractToken(c)
		if err != nil {
			if errors.Is(err, ErrMissingAuthHeader) {
				logrus.Warn("Auth middleware: Missing Authorization header")
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required"})
			} else {
				logrus.WithError(err).Warn("Auth middleware: Malformed token format")
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token format"})
			}
			c.Abort()
			return
		}

		// 2. 验证 Token
		claims, err := validateToken(tokenStr, jwtSecret)
		if err != nil {
			logCtx := logrus.WithError(err)
			logCtx.Warn("Auth middleware: Invalid token")

			var validationError *jwt.ValidationError
			if errors.As(err, &validationError) {
				if validationError.Errors&jwt.ValidationErrorExpired != 0 {
					logCtx.Warn("Reason: Token is expired")
				}
				if validationError.Errors&jwt.ValidationErrorSignatureInvalid != 0 {
					logCtx.Warn("Reason: Token signature is invalid")
				}
			}
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		// 3. 提取玩家身份并写入 Context
		playerIDClaim, ok := claims["player_id"]
		if !ok {
			logrus.Error("Auth middleware: 'player_id' claim missing in token")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Token processing error: missing player_id"})
			c.Abort()
			return
		}

		// JWT 数字默认为 float64，需要安全转换为 uint
		playerIDFloat, ok := playerIDClaim.(float64)
		if !ok || playerIDFloat <= 0 || playerIDFloat != float64(uint(playerIDFloat)) {
			logrus.Errorf("Auth middleware: 'player_id' claim is not a valid positive integer number: %v", playerIDClaim)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Token processing error: invalid player_id type or value"})
			c.Abort()
			return
		}
		playerID := uint(playerIDFloat)
		c.Set(CtxPlayerID, playerID)

		// username 可选，会话层加入世界时还会再带一次
		if username, ok := claims["username"].(string); ok && username != "" {
			c.Set(CtxUsername, username)
		}

		logrus.WithField("player_id", playerID).Debug("Auth middleware: Player authenticated via JWT")
		c.Next()
	}
}

// PlayerID 从 Gin 上下文取认证玩家 ID，未认证时返回 (0, false)。
func PlayerID(c *gin.Context) (uint, bool) {
	v, ok := c.Get(CtxPlayerID)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}

// extractToken 从请求里提取 Bearer Token。
func extractToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		// WebSocket 握手兜底
		if token := c.Query("token"); token != "" {
			return token, nil
		}
		return "", ErrMissingAuthHeader
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", jwt.ErrTokenMalformed
	}
	return parts[1], nil
}

// validateToken 解析并验证 JWT token 字符串。
func validateToken(tokenStr string, secret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		// 只接受 HMAC 签名
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token or claims type")
}
