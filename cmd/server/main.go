package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	jwtpkg "mailwatch/internal/auth/jwt"
	"mailwatch/internal/config"
	"mailwatch/internal/health"
	"mailwatch/internal/logger"
	"mailwatch/internal/monitoring"
	"mailwatch/internal/notify"
	"mailwatch/internal/pool"
	"mailwatch/internal/service"
	"mailwatch/internal/storage"
	"mailwatch/internal/storage/memory"
	"mailwatch/internal/storage/redis"
	sqlstore "mailwatch/internal/storage/sql"
	httptransport "mailwatch/internal/transport/http"
	"mailwatch/internal/websocket"
)

// main 启动邮件生命周期追踪服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 初始化日志系统
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	log.Info("starting mailwatch server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	// 初始化存储层
	var store storage.Store
	if cfg.Database.Type != "" && cfg.Database.DSN != "" {
		store, err = sqlstore.NewStore(cfg.Database.Type, cfg.Database.DSN, sqlstore.Options{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			panic(fmt.Sprintf("failed to initialize database storage: %v", err))
		}
		log.Info("using database storage", zap.String("type", cfg.Database.Type))
	} else {
		store = memory.NewStore()
		log.Info("using memory storage (development mode)")
	}
	defer store.Close()

	// 初始化 Redis 统计缓存（可选）
	var statsCache *redis.Cache
	if cfg.Redis.Enabled {
		statsCache, err = redis.NewCache(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Warn("failed to connect to redis, statistics caching disabled", zap.Error(err))
			statsCache = nil
		} else {
			log.Info("redis statistics cache enabled",
				zap.String("address", cfg.Redis.Address),
				zap.Duration("ttl", cfg.Redis.StatsTTL),
			)
			defer statsCache.Close()
		}
	}

	// 初始化监控与健康检查
	metrics := monitoring.NewMetrics()
	healthChecker := health.NewHealthChecker(store, statsCache, log)

	// 初始化认证（未配置管理员口令时关闭，仅限开发环境）
	var jwtManager *jwtpkg.Manager
	if cfg.AuthEnabled() {
		jwtManager = jwtpkg.NewManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AccessExpiry)
		log.Info("admin authentication enabled",
			zap.String("issuer", cfg.Auth.Issuer),
			zap.Duration("access_expiry", cfg.Auth.AccessExpiry),
		)
	} else {
		log.Warn("admin authentication disabled, management API is open")
	}

	// 创建 WebSocket Hub
	wsHub := websocket.NewHub(cfg.CORS.AllowedOrigins, jwtManager, log)

	// 初始化通知投递（经协程池异步执行）
	workerPool := pool.NewWorkerPool(4, 64, log)
	var notifier *notify.Notifier
	if cfg.Notify.Enabled {
		notifier = notify.New(cfg.Notify, workerPool, log)
		log.Info("email notifications enabled",
			zap.Strings("recipients", cfg.Notify.Recipients),
		)
	}

	// 初始化服务层
	monitorService := service.NewMonitorService(store, cfg, log)
	monitorService.SetBroadcaster(wsHub)
	monitorService.SetMetrics(metrics)

	webhookService := service.NewWebhookService(store, log)
	webhookService.SetBroadcaster(wsHub)
	webhookService.SetMetrics(metrics)

	stuckService := service.NewStuckService(store, cfg, log)
	stuckService.SetBroadcaster(wsHub)
	stuckService.SetMetrics(metrics)

	statsService := service.NewStatsService(store, cacheOrNil(statsCache), cfg, log)

	cleanupService := service.NewCleanupService(store, cfg, log)
	cleanupService.SetMetrics(metrics)

	if notifier != nil {
		monitorService.SetNotifier(notifier)
		webhookService.SetNotifier(notifier)
		cleanupService.SetNotifier(notifier)
	}

	// 发送路径入口持有吞错封装，追踪失败不反馈给调用方
	eventSink := service.NewSilentSink(monitorService, log)

	// 创建 HTTP 服务器
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:         cfg,
		MonitorService: monitorService,
		EventSink:      eventSink,
		WebhookService: webhookService,
		StuckService:   stuckService,
		StatsService:   statsService,
		CleanupService: cleanupService,
		JWTManager:     jwtManager,
		WebSocketHub:   wsHub,
		Store:          store,
		Metrics:        metrics,
		HealthChecker:  healthChecker,
		Logger:         log,
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workerPool.Start(ctx)

	group, groupCtx := errgroup.WithContext(ctx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// 卡死扫描 goroutine
	group.Go(func() error {
		return stuckService.Run(groupCtx)
	})

	// 定期清理 goroutine
	group.Go(func() error {
		return cleanupService.Run(groupCtx)
	})

	// WebSocket Hub goroutine
	group.Go(func() error {
		log.Info("starting WebSocket hub")
		wsHub.Run(groupCtx)
		return nil
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
			return err
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		log.Error("server exited with error", zap.Error(err))
	}

	workerPool.Stop()
	log.Info("mailwatch server stopped")
}

// cacheOrNil 将 *redis.Cache 转为接口，避免把 nil 指针塞进非 nil 接口
func cacheOrNil(c *redis.Cache) storage.StatsCache {
	if c == nil {
		return nil
	}
	return c
}
