package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/quizrunner/internal/config"
	"github.com/stemsi/quizrunner/internal/handler"
	"github.com/stemsi/quizrunner/internal/middleware"
	"github.com/stemsi/quizrunner/internal/model"
	"github.com/stemsi/quizrunner/internal/response"
	"github.com/stemsi/quizrunner/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Session *handler.SessionHandler
	WS      *handler.WSHandler
	Monitor *handler.MonitorHandler
	Ledger  *handler.LedgerHandler
	System  *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Content-Disposition"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.Brotli())

	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Submissions hit the platform's scoring endpoint; limit per learner.
	submitLimiter := middleware.NewRateLimiter(cfg.SubmitRateLimit, time.Minute)

	// ─── 1. Learner Group (JWT) ────────────────────────────────────────
	learnerAPI := router.Group("/api/v1/learner")
	learnerAPI.Use(middleware.RequireLearnerJWT(authService))
	{
		learnerAPI.POST("/assessments/:assessment_id/sessions", handlers.Session.OpenSession)
		learnerAPI.GET("/sessions/:session_id", handlers.Session.GetSession)
		learnerAPI.PUT("/sessions/:session_id/answers", handlers.Session.RecordAnswer)
		learnerAPI.POST("/sessions/:session_id/navigate", handlers.Session.Navigate)
		learnerAPI.POST("/sessions/:session_id/submit", submitLimiter.Middleware(), handlers.Session.Submit)
		learnerAPI.GET("/sessions/:session_id/result", handlers.Session.GetResult)
		learnerAPI.DELETE("/sessions/:session_id", handlers.Session.CloseSession)
		learnerAPI.GET("/attempts", handlers.Session.ListAttempts)
	}

	// ─── 2. WebSocket Group (Learner WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireLearnerWSAuth(authService))
	{
		ws.GET("/learner/sessions/:session_id/stream", handlers.WS.SessionStream)
	}

	// ─── 3. Staff Group (JWT + RBAC) ───────────────────────────────────
	staffAPI := router.Group("/api/v1/staff")
	staffAPI.Use(middleware.RequireStaffJWT(authService))
	{
		staffAPI.GET("/assessments/:assessment_id/monitor",
			middleware.RequirePermission(string(model.PermissionAssessmentsMonitor)),
			handlers.Monitor.MonitorSSE,
		)
		staffAPI.GET("/assessments/:assessment_id/attempts",
			middleware.RequireAnyPermission(string(model.PermissionAttemptsRead), string(model.PermissionAttemptsExport)),
			handlers.Ledger.ListAttempts,
		)
		staffAPI.GET("/assessments/:assessment_id/attempts/export",
			middleware.RequirePermission(string(model.PermissionAttemptsExport)),
			handlers.Ledger.ExportAttempts,
		)
		staffAPI.GET("/system/metrics",
			middleware.RequirePermission(string(model.PermissionSystemRead)),
			handlers.System.SystemMetricsSSE,
		)
	}

	return router
}
