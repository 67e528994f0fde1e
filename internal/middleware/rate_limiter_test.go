package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

// ==================== 限流器本体 ====================

func TestActionRateLimiter_CooldownAndReset(t *testing.T) {
	limiter := &ActionRateLimiter{}
	key := UnboxKey(555)

	if got := limiter.Check(key, time.Minute); !got.Allowed {
		t.Fatal("首次动作应放行")
	}

	second := limiter.Check(key, time.Minute)
	if second.Allowed {
		t.Fatal("冷却期内第二次动作应拒绝")
	}
	if second.RetryAfter <= 0 || second.RetryAfter > time.Minute {
		t.Errorf("RetryAfter = %v, 应落在 (0, 1m] 区间", second.RetryAfter)
	}

	limiter.Reset(key)
	if got := limiter.Check(key, time.Minute); !got.Allowed {
		t.Error("Reset 后应重新放行")
	}
}

func TestActionRateLimiter_KeysIndependent(t *testing.T) {
	limiter := &ActionRateLimiter{}

	if got := limiter.Check(UnboxKey(1), time.Minute); !got.Allowed {
		t.Fatal("首次动作应放行")
	}
	// 另一个用户的 key 互不影响
	if got := limiter.Check(UnboxKey(2), time.Minute); !got.Allowed {
		t.Error("不同 key 不应共享冷却")
	}
}

// ==================== Gin 中间件 ====================

func TestUnboxRateLimit_SecondRequestThrottled(t *testing.T) {
	const userID int64 = 777
	GetLimiter().Reset(UnboxKey(userID))
	t.Cleanup(func() { GetLimiter().Reset(UnboxKey(userID)) })

	r := gin.New()
	r.POST("/unbox",
		func(c *gin.Context) { c.Set(ContextKeyUserID, userID) },
		UnboxRateLimit(),
		func(c *gin.Context) { c.Status(http.StatusOK) },
	)

	do := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/unbox", nil))
		return w
	}

	if w := do(); w.Code != http.StatusOK {
		t.Fatalf("首次开盒状态码 = %d, want 200", w.Code)
	}

	w := do()
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("连点开盒状态码 = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("限流响应应带 Retry-After 头")
	}
}

func TestUnboxRateLimit_AnonymousPassesThrough(t *testing.T) {
	// 没有用户身份时不限流，交给后面的认证链处理
	r := gin.New()
	r.POST("/unbox", UnboxRateLimit(), func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/unbox", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("匿名请求第 %d 次状态码 = %d, want 200", i+1, w.Code)
		}
	}
}
