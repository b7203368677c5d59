package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/quizrunner/internal/response"
	"github.com/stemsi/quizrunner/internal/service"
)

const (
	// ContextKeyClaims is the Gin context key for JWT claims.
	ContextKeyClaims = "claims"
	// ContextKeyToken holds the raw bearer token, forwarded to the platform
	// API on the learner's behalf.
	ContextKeyToken = "token"
)

// RequireLearnerJWT validates a learner JWT from the Authorization header.
func RequireLearnerJWT(authService *service.AuthService) gin.HandlerFunc {
	return requireJWT(authService, service.TokenTypeLearner, response.ErrLearnerAccessOnly, bearerOrQuery)
}

// RequireStaffJWT validates a staff JWT from the Authorization header, or
// from ?token= for EventSource clients.
func RequireStaffJWT(authService *service.AuthService) gin.HandlerFunc {
	return requireJWT(authService, service.TokenTypeStaff, response.ErrStaffAccessOnly, bearerOrQuery)
}

// RequireLearnerWSAuth validates a learner JWT from the query param ?token=...
// Used for WebSocket upgrade requests.
func RequireLearnerWSAuth(authService *service.AuthService) gin.HandlerFunc {
	return requireJWT(authService, service.TokenTypeLearner, response.ErrLearnerAccessOnly, queryOnly)
}

func requireJWT(authService *service.AuthService, want service.TokenType, wrongType response.ErrCode, extract func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := extract(c)
		if tokenStr == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		claims, err := authService.ValidateToken(tokenStr)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}

		if claims.TokenType != want {
			response.AbortFail(c, http.StatusForbidden, wrongType)
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Set(ContextKeyToken, tokenStr)
		c.Next()
	}
}

// GetClaims retrieves the JWT claims from the Gin context.
func GetClaims(c *gin.Context) *service.Claims {
	val, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil
	}
	claims, ok := val.(*service.Claims)
	if !ok {
		return nil
	}
	return claims
}

// GetToken returns the raw token the request was authenticated with.
func GetToken(c *gin.Context) string {
	return c.GetString(ContextKeyToken)
}

func bearerOrQuery(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	// Fallback for EventSource (SSE) which cannot send headers
	return c.Query("token")
}

func queryOnly(c *gin.Context) string {
	return c.Query("token")
}
