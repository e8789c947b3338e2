package health

import (
	"fmt"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"mailwatch/internal/storage"
	"mailwatch/internal/storage/redis"
)

// HealthChecker 健康检查器
type HealthChecker struct {
	health healthcheck.Handler
	store  storage.Store
	cache  *redis.Cache
	logger *zap.Logger
}

// NewHealthChecker 创建健康检查器，cache 可为 nil
func NewHealthChecker(store storage.Store, cache *redis.Cache, logger *zap.Logger) *HealthChecker {
	hc := &HealthChecker{
		health: healthcheck.NewHandler(),
		store:  store,
		cache:  cache,
		logger: logger,
	}

	// 添加健康检查
	hc.addChecks()

	return hc
}

// addChecks 添加健康检查
func (hc *HealthChecker) addChecks() {
	// 存储连接检查
	hc.health.AddReadinessCheck("storage", func() error {
		return hc.store.Health()
	})

	// Redis 连接检查（启用统计缓存时）
	if hc.cache != nil {
		hc.health.AddReadinessCheck("redis", func() error {
			return hc.cache.Health()
		})
	}

	// 协程数量检查
	hc.health.AddLivenessCheck("goroutine-count", healthcheck.GoroutineCountCheck(500))
}

// Handler 返回健康检查处理器
func (hc *HealthChecker) Handler() http.Handler {
	return hc.health
}

// CheckHealth 执行健康检查
func (hc *HealthChecker) CheckHealth() map[string]string {
	results := make(map[string]string)

	// 检查存储
	if err := hc.store.Health(); err != nil {
		results["storage"] = fmt.Sprintf("ERROR: %v", err)
	} else {
		results["storage"] = "OK"
	}

	// 检查 Redis
	if hc.cache != nil {
		if err := hc.cache.Health(); err != nil {
			results["redis"] = fmt.Sprintf("ERROR: %v", err)
		} else {
			results["redis"] = "OK"
		}
	} else {
		results["redis"] = "NOT_AVAILABLE"
	}

	results["timestamp"] = time.Now().Format(time.RFC3339)

	return results
}
