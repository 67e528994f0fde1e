package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// ==================== ActionRateLimiter 动作限流器 ====================

// ActionRateLimiter 按 key 的冷却限流
// 开盒是带随机性的写操作，限一下连点和脚本刷
type ActionRateLimiter struct {
	locks sync.Map // key -> *lockEntry
}

type lockEntry struct {
	lastTime time.Time
	mu       sync.Mutex
}

// 全局限流器实例
var globalLimiter = &ActionRateLimiter{}

// GetLimiter 获取全局限流器
func GetLimiter() *ActionRateLimiter {
	return globalLimiter
}

// CheckResult 检查结果
type CheckResult struct {
	Allowed    bool          // 是否允许
	RetryAfter time.Duration // 剩余冷却时间
}

// Check 检查是否允许执行，允许时同时记下执行时间
// key: 限流键，如 "user:123:unbox"
func (r *ActionRateLimiter) Check(key string, interval time.Duration) CheckResult {
	actual, _ := r.locks.LoadOrStore(key, &lockEntry{})
	entry := actual.(*lockEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(entry.lastTime)

	if elapsed < interval {
		return CheckResult{
			Allowed:    false,
			RetryAfter: interval - elapsed,
		}
	}

	entry.lastTime = now
	return CheckResult{Allowed: true}
}

// Reset 重置指定 key 的限流
func (r *ActionRateLimiter) Reset(key string) {
	r.locks.Delete(key)
}

// ==================== Key 生成工具 ====================

// UnboxKey 用户级开盒限流 Key
func UnboxKey(userID int64) string {
	return fmt.Sprintf("user:%d:unbox", userID)
}

// ==================== Gin 中间件 ====================

// 开盒冷却间隔
const unboxCooldown = 1 * time.Second

// UnboxRateLimit 开盒限流中间件，同一用户两次开盒之间至少间隔 unboxCooldown
func UnboxRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := GetUserID(c)
		if userID == 0 {
			c.Next()
			return
		}

		result := globalLimiter.Check(UnboxKey(userID), unboxCooldown)
		if !result.Allowed {
			c.Header("Retry-After", fmt.Sprintf("%.0f", result.RetryAfter.Seconds()))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"code":    429,
				"message": "开盒太频繁，请稍后再试",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
