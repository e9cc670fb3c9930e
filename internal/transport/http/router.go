package httptransport

import (
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"mailguard/backend/internal/config"
	"mailguard/backend/internal/health"
	"mailguard/backend/internal/middleware"
	"mailguard/backend/internal/monitoring"
	"mailguard/backend/internal/ratelimit"
	"mailguard/backend/internal/security"
	"mailguard/backend/internal/service"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config        *config.Config
	Gate          *security.EmailValidationGate
	SpamScorer    *security.SpamScorer
	Blacklist     *security.BlacklistChecker
	Tracker       *ratelimit.Tracker
	Outbound      *service.OutboundService
	Metrics       *monitoring.Metrics
	AlertManager  *monitoring.AlertManager
	HealthChecker *health.HealthChecker
	Logger        *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	// 监控中间件自带 panic 恢复，放在最外层
	monitoringMW := middleware.NewMonitoringMiddleware(deps.Metrics, deps.Logger)
	router.Use(monitoringMW.PanicRecovery())
	router.Use(monitoringMW.HTTPMetrics())
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.BodySizeLimit(middleware.DefaultBodyLimit))

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Admin-Token"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	// 创建处理器
	validateHandler := NewValidateHandler(deps.Gate, deps.SpamScorer, deps.Blacklist, deps.Metrics, deps.Config)
	rateLimitHandler := NewRateLimitHandler(deps.Tracker, deps.Outbound, deps.Metrics, deps.Config, deps.Logger)
	adminHandler := NewAdminHandler(deps.Tracker, deps.AlertManager, deps.Logger)

	// 创建中间件
	adminAuth := middleware.NewAdminAuth(deps.Config.Admin.Token)
	ipRateLimit := middleware.NewIPRateLimiter(50, 100)

	// 运维端点
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", gin.WrapF(deps.HealthChecker.LiveHandler()))
	router.GET("/readyz", gin.WrapF(deps.HealthChecker.ReadyHandler()))

	// V1 API
	v1 := router.Group("/v1")
	v1.Use(ipRateLimit.Handler())
	v1.Use(middleware.ValidateContentType("application/json"))
	{
		// ========== 内容校验 ==========
		v1.POST("/validate", validateHandler.ValidateEmail)
		v1.POST("/validate/address", validateHandler.ValidateAddress)
		v1.POST("/spam/check", validateHandler.CheckSpam)
		v1.GET("/blacklist/:email", validateHandler.CheckBlacklist)

		// ========== 速率限制 ==========
		v1.POST("/ratelimit/check", rateLimitHandler.CheckRateLimit)
		v1.POST("/ratelimit/record", rateLimitHandler.RecordEmailSent)

		// ========== 发送链路 ==========
		v1.POST("/send", rateLimitHandler.Send)

		// ========== 管理接口 ==========
		adminRoutes := v1.Group("/admin")
		adminRoutes.Use(adminAuth.RequireAdminToken())
		{
			adminRoutes.POST("/ratelimit/reset", adminHandler.ResetUserLimits)
			adminRoutes.GET("/orgs/:orgId/stats", adminHandler.GetOrganizationStats)
			adminRoutes.GET("/alerts", adminHandler.ListActiveAlerts)
		}
	}

	return router
}
