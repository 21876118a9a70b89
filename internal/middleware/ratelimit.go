package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"pixel-platformer/internal/repository"
)

// RateLimit 返回一个 Gin 中间件，基于客户端 IP 做滑动窗口限流。
// presenceRepo: 计数器存储 (Redis 实现)，必须提供。
// maxRequests: 时间窗口内允许的最大请求数。
// window: 限流时间窗口。
func RateLimit(presenceRepo repository.PresenceRepository, maxRequests int, window time.Duration) gin.HandlerFunc {
	if presenceRepo == nil {
		panic("PresenceRepository cannot be nil for RateLimit middleware")
	}
	if maxRequests <= 0 {
		panic("maxRequests must be positive for RateLimit middleware")
	}
	if window <= 0 {
		panic("window duration must be positive for RateLimit middleware")
	}

	return func(c *gin.Context) {
		// 反向代理后面依赖 Gin 的 ClientIP 解析 X-Forwarded-For
		key := "ratelimit:" + c.ClientIP()

		limited, err := presenceRepo.CheckRateLimit(c.Request.Context(), key, maxRequests, window)
		if err != nil {
			// 限流存储故障时放行请求：限流是保护手段，不是功能依赖
			logrus.WithError(err).Error("RateLimit: counter check failed, allowing request")
			c.Next()
			return
		}
		if limited {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			c.Abort()
			return
		}
		c.Next()
	}
}
