package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GTDGit/marketplace_api/internal/models"
	"github.com/GTDGit/marketplace_api/internal/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
	utils.SetJWTSecret("middleware-test-secret", time.Hour)
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	chain := append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": GetUserID(c), "role": GetRole(c)})
	})
	r.GET("/x", chain...)
	r.OPTIONS("/x", chain...)
	return r
}

func do(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func token(t *testing.T, id int64, role models.UserRole) string {
	t.Helper()
	tok, err := utils.GenerateJWT(id, "u@example.com", string(role))
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}
	return tok
}

func TestJWTMiddleware(t *testing.T) {
	r := newRouter(NewJWTMiddleware().Handle())
	valid := token(t, 42, models.RoleClient)

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + valid, "", http.StatusUnauthorized},
		{"garbage", "Bearer nope", "", http.StatusUnauthorized},
		{"header", "Bearer " + valid, "", http.StatusOK},
		{"query for event streams", "", valid, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/x"
			if tt.query != "" {
				target += "?token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if w := do(r, req); w.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	r := newRouter(NewJWTMiddleware().Handle(), RequireRole(models.RoleAdmin, models.RoleProvider))

	for _, tt := range []struct {
		role models.UserRole
		want int
	}{
		{models.RoleAdmin, http.StatusOK},
		{models.RoleProvider, http.StatusOK},
		{models.RoleClient, http.StatusForbidden},
	} {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Authorization", "Bearer "+token(t, 1, tt.role))
		if w := do(r, req); w.Code != tt.want {
			t.Errorf("role %s: status = %d, want %d", tt.role, w.Code, tt.want)
		}
	}
}

func TestIPRateLimiter(t *testing.T) {
	limiter := NewIPRateLimiter(2)
	r := newRouter(limiter.Handle())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		codes = append(codes, do(r, req).Code)
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 200 429]", codes)
	}

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	if w := do(r, req); w.Code != http.StatusOK {
		t.Errorf("other ip status = %d, want 200", w.Code)
	}

	limiter.cleanup(time.Now().Add(2 * time.Minute))
	if !limiter.Allow("10.0.0.1") {
		t.Error("Allow after window expiry = false, want true")
	}
}

func TestCORSMiddleware(t *testing.T) {
	r := newRouter(CORSMiddleware([]string{"App.Example.com", " "}))

	tests := []struct {
		name   string
		method string
		origin string
		want   string
		status int
	}{
		{"allowed", http.MethodGet, "https://app.example.com", "https://app.example.com", 200},
		{"default port", http.MethodGet, "https://app.example.com:443", "https://app.example.com:443", 200},
		{"unknown", http.MethodGet, "https://evil.example.com", "", 200},
		{"preflight", http.MethodOptions, "https://app.example.com", "https://app.example.com", 204},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/x", nil)
			req.Header.Set("Origin", tt.origin)
			w := do(r, req)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoggingMiddlewareRequestID(t *testing.T) {
	r := newRouter(LoggingMiddleware())

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-Id", "trace-1")
	if got := do(r, req).Header().Get("X-Request-Id"); got != "trace-1" {
		t.Errorf("X-Request-Id = %q, want trace-1", got)
	}

	w := do(r, httptest.NewRequest(http.MethodGet, "/x", nil))
	if got := w.Header().Get("X-Request-Id"); len(got) != 8 {
		t.Errorf("generated X-Request-Id = %q, want 8 chars", got)
	}
}
