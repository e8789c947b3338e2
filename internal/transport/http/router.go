package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	jwtpkg "mailwatch/internal/auth/jwt"
	"mailwatch/internal/config"
	"mailwatch/internal/health"
	"mailwatch/internal/middleware"
	"mailwatch/internal/monitoring"
	"mailwatch/internal/service"
	"mailwatch/internal/storage"
	"mailwatch/internal/websocket"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config         *config.Config
	MonitorService *service.MonitorService
	EventSink      service.MailEventSink // 事件入口使用的静默封装
	WebhookService *service.WebhookService
	StuckService   *service.StuckService
	StatsService   *service.StatsService
	CleanupService *service.CleanupService
	JWTManager     *jwtpkg.Manager // 为 nil 时管理 API 不要求认证
	WebSocketHub   *websocket.Hub
	Store          storage.Store
	Metrics        *monitoring.Metrics
	HealthChecker  *health.HealthChecker
	Logger         *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	if !deps.Config.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// 使用自定义中间件替代默认中间件
	var panicRecorder middleware.PanicRecorder
	if deps.Metrics != nil {
		panicRecorder = deps.Metrics
	}
	router.Use(middleware.RecoveryHandler(deps.Logger, panicRecorder))
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestSizeLimit(10 * 1024 * 1024))

	if deps.Metrics != nil {
		mm := middleware.NewMonitoringMiddleware(deps.Metrics)
		router.Use(mm.HTTPMetrics())
	}

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Webhook-Signature"},
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
	handler := &Handler{
		monitor: deps.MonitorService,
		stuck:   deps.StuckService,
		stats:   deps.StatsService,
		cleanup: deps.CleanupService,
		repo:    deps.Store,
		cfg:     deps.Config,
		log:     deps.Logger.Named("http"),
	}
	eventsHandler := NewEventsHandler(deps.EventSink)
	webhookHandler := NewWebhookHandler(deps.WebhookService, deps.Logger)
	authHandler := NewAuthHandler(deps.Config.Auth, deps.JWTManager, deps.Logger)

	// 创建中间件
	jwtAuth := middleware.NewJWTAuth(deps.JWTManager, deps.Logger)
	webhookLimiter := middleware.NewRateLimiter(deps.Config.Webhook.RequestsPerIPMin)

	// Swagger 文档
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.HealthChecker != nil {
		healthHandler := gin.WrapH(deps.HealthChecker.Handler())
		router.GET("/health/live", healthHandler)
		router.GET("/health/ready", healthHandler)
	}

	// Prometheus 指标
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	// 服务商回调：签名校验 + 按 IP 限流，路径为服务商侧约定
	router.POST("/email-monitor/webhook",
		webhookLimiter.Handler(),
		middleware.WebhookSignature(deps.Config.Webhook, deps.Logger),
		webhookHandler.HandleStatusUpdate,
	)

	// V1 API
	v1 := router.Group("/v1")
	{
		// ========== Auth Routes ==========
		authRoutes := v1.Group("/auth")
		{
			authRoutes.POST("/login", authHandler.Login)
		}

		// ========== Event Routes（发送子系统内部调用） ==========
		eventRoutes := v1.Group("/events")
		{
			eventRoutes.POST("/sending", eventsHandler.handleSending)
			eventRoutes.POST("/sent", eventsHandler.handleSent)
			eventRoutes.POST("/failed", eventsHandler.handleFailed)
		}

		// ========== Email Log Routes ==========
		emailRoutes := v1.Group("/emails")
		emailRoutes.Use(jwtAuth.RequireAuth())
		{
			emailRoutes.GET("", handler.listEmails)
			emailRoutes.GET("/recent", handler.recentEmails)
			emailRoutes.POST("/fix-stuck", handler.fixStuckEmails)
			emailRoutes.GET("/:id", handler.getEmail)
			emailRoutes.DELETE("/:id", handler.deleteEmail)
			emailRoutes.POST("/:id/resend", handler.resendEmail)
			emailRoutes.POST("/:id/mark-sent", handler.markEmailSent)
		}

		// ========== Statistics ==========
		v1.GET("/statistics", jwtAuth.RequireAuth(), handler.getStatistics)

		// ========== WebSocket Routes ==========
		if deps.WebSocketHub != nil {
			v1.GET("/ws", websocket.HandleWebSocket(deps.WebSocketHub))
		}

		// ========== Admin Routes ==========
		adminRoutes := v1.Group("/admin")
		adminRoutes.Use(jwtAuth.RequireAuth())
		{
			adminRoutes.POST("/cleanup", handler.cleanupEmails)
		}
	}

	return router
}
