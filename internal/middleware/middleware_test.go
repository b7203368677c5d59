package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/quizrunner/internal/config"
	"github.com/stemsi/quizrunner/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newAuth() *service.AuthService {
	return service.NewAuthService(&config.Config{JWTSecret: "middleware-secret"})
}

func token(t *testing.T, auth *service.AuthService, tt service.TokenType, id int, perms ...string) string {
	t.Helper()
	tok, err := auth.GenerateToken(tt, id, perms, time.Hour)
	require.NoError(t, err)
	return tok
}

func TestRequireLearnerJWT(t *testing.T) {
	auth := newAuth()
	r := gin.New()
	r.GET("/me", RequireLearnerJWT(auth), func(c *gin.Context) {
		c.String(http.StatusOK, "%d %s", GetClaims(c).UserID, GetToken(c))
	})

	learner := token(t, auth, service.TokenTypeLearner, 7)
	staff := token(t, auth, service.TokenTypeStaff, 2)

	tests := []struct {
		name   string
		header string
		query  string
		status int
	}{
		{"bearer", "Bearer " + learner, "", http.StatusOK},
		{"query fallback", "", learner, http.StatusOK},
		{"missing", "", "", http.StatusUnauthorized},
		{"garbage", "Bearer nope", "", http.StatusUnauthorized},
		{"staff token", "Bearer " + staff, "", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me?token="+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "7 "+learner, w.Body.String())
			}
		})
	}
}

func TestRequireLearnerWSAuthIgnoresHeader(t *testing.T) {
	auth := newAuth()
	r := gin.New()
	r.GET("/ws", RequireLearnerWSAuth(auth), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, auth, service.TokenTypeLearner, 7))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "TOKEN_REQUIRED")
}

func TestRequirePermission(t *testing.T) {
	auth := newAuth()
	r := gin.New()
	r.GET("/export", RequireStaffJWT(auth), RequireAnyPermission("attempts:export", "attempts:read"),
		func(c *gin.Context) { c.Status(http.StatusNoContent) })

	call := func(tok string) int {
		req := httptest.NewRequest(http.MethodGet, "/export", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusNoContent, call(token(t, auth, service.TokenTypeStaff, 2, "attempts:read")))
	assert.Equal(t, http.StatusForbidden, call(token(t, auth, service.TokenTypeStaff, 2, "assessments:monitor")))
}

func TestRateLimiter_RefillsPerInterval(t *testing.T) {
	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	rl := newRateLimiter(2, time.Minute, func() time.Time { return now })

	assert.True(t, rl.allow("learner:7"))
	assert.True(t, rl.allow("learner:7"))
	assert.False(t, rl.allow("learner:7"))
	assert.True(t, rl.allow("learner:8"), "buckets are per key")

	now = now.Add(59 * time.Second)
	assert.False(t, rl.allow("learner:7"))

	now = now.Add(time.Second)
	assert.True(t, rl.allow("learner:7"))
	assert.True(t, rl.allow("learner:7"))
	assert.False(t, rl.allow("learner:7"))

	now = now.Add(10 * time.Minute)
	rl.cleanup()
	assert.Empty(t, rl.visitors)
}

func TestRateLimiter_KeysByUser(t *testing.T) {
	auth := newAuth()
	rl := newRateLimiter(1, time.Minute, time.Now)
	r := gin.New()
	r.POST("/submit", RequireLearnerJWT(auth), rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	call := func(tok string) int {
		req := httptest.NewRequest(http.MethodPost, "/submit", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		req.RemoteAddr = "10.0.0.1:5000"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	a := token(t, auth, service.TokenTypeLearner, 7)
	b := token(t, auth, service.TokenTypeLearner, 8)
	assert.Equal(t, http.StatusOK, call(a))
	assert.Equal(t, http.StatusTooManyRequests, call(a))
	assert.Equal(t, http.StatusOK, call(b))
}

func TestBrotli(t *testing.T) {
	large := strings.Repeat("quizrunner ", 500)
	r := gin.New()
	r.Use(BrotliWithConfig(BrotliConfig{MinLength: 64}))
	r.GET("/large", func(c *gin.Context) { c.String(http.StatusOK, large) })
	r.GET("/small", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/flushed", func(c *gin.Context) {
		c.Status(http.StatusOK)
		c.Writer.WriteString("head ")
		c.Writer.Flush()
		c.Writer.WriteString(large)
	})
	r.GET("/xlsx", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", []byte(large))
	})

	get := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Accept-Encoding", "gzip, br")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := get("/large")
	assert.Equal(t, "br", w.Header().Get("Content-Encoding"))
	body, err := io.ReadAll(brotli.NewReader(bytes.NewReader(w.Body.Bytes())))
	require.NoError(t, err)
	assert.Equal(t, large, string(body))

	w = get("/small")
	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Equal(t, "ok", w.Body.String())

	w = get("/xlsx")
	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Equal(t, large, w.Body.String())

	w = get("/flushed")
	assert.Empty(t, w.Header().Get("Content-Encoding"), "headers went out uncompressed on flush")
	assert.Equal(t, "head "+large, w.Body.String())
}
