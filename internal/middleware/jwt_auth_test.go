package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// authedRouter 挂上认证链并回显 Context 里的用户信息
func authedRouter(extra ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	handlers := append([]gin.HandlerFunc{JWTAuth()}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id":  GetUserID(c),
			"username": GetUsername(c),
			"role":     GetUserRole(c),
		})
	})
	r.GET("/ping", handlers...)
	return r
}

func doAuthedRequest(t *testing.T, r *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ==================== 认证中间件 ====================

func TestJWTAuth_AccessTokenRoundTrip(t *testing.T) {
	token, err := GenerateAccessToken(101, "买家小张", RoleCustomer)
	if err != nil {
		t.Fatalf("签发 token 失败: %v", err)
	}

	w := doAuthedRequest(t, authedRouter(), "Bearer "+token)
	if w.Code != http.StatusOK {
		t.Fatalf("状态码 = %d, want 200, body: %s", w.Code, w.Body.String())
	}

	body := w.Body.String()
	for _, want := range []string{`"user_id":101`, `"username":"买家小张"`, `"role":"customer"`} {
		if !strings.Contains(body, want) {
			t.Errorf("响应缺少 %s, body: %s", want, body)
		}
	}
}

func TestJWTAuth_MissingHeader(t *testing.T) {
	w := doAuthedRequest(t, authedRouter(), "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("缺认证头状态码 = %d, want 401", w.Code)
	}
}

func TestJWTAuth_MalformedHeader(t *testing.T) {
	w := doAuthedRequest(t, authedRouter(), "Token abc")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("非 Bearer 格式状态码 = %d, want 401", w.Code)
	}
}

func TestJWTAuth_RefreshTokenRejected(t *testing.T) {
	// Refresh Token 只用于换发，不能直接当访问凭证
	token, err := GenerateRefreshToken(101, "买家小张", RoleCustomer)
	if err != nil {
		t.Fatalf("签发 refresh token 失败: %v", err)
	}

	w := doAuthedRequest(t, authedRouter(), "Bearer "+token)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("refresh token 状态码 = %d, want 401", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Token 类型错误") {
		t.Errorf("应提示类型错误, body: %s", w.Body.String())
	}
}

// ==================== 角色校验 ====================

func TestRequireRole_ReviewerOnly(t *testing.T) {
	r := authedRouter(RequireRole(RoleReviewer))

	reviewerToken, err := GenerateAccessToken(9, "审核员", RoleReviewer)
	if err != nil {
		t.Fatalf("签发 token 失败: %v", err)
	}
	if w := doAuthedRequest(t, r, "Bearer "+reviewerToken); w.Code != http.StatusOK {
		t.Errorf("审核员状态码 = %d, want 200", w.Code)
	}

	customerToken, err := GenerateAccessToken(101, "买家小张", RoleCustomer)
	if err != nil {
		t.Fatalf("签发 token 失败: %v", err)
	}
	if w := doAuthedRequest(t, r, "Bearer "+customerToken); w.Code != http.StatusForbidden {
		t.Errorf("买家访问审核接口状态码 = %d, want 403", w.Code)
	}
}
