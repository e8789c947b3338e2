package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"mailwatch/internal/domain"
)

// ErrCacheMiss 缓存未命中错误
var ErrCacheMiss = errors.New("cache miss")

// Cache Redis 缓存实现，用于统计结果的短时缓存
type Cache struct {
	client *redis.Client
	ctx    context.Context
}

// NewCache 创建 Redis 缓存实例
func NewCache(addr, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: 10,
	})

	ctx := context.Background()

	// 测试连接
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Cache{
		client: client,
		ctx:    ctx,
	}, nil
}

// GetStatistics 获取缓存的统计结果
func (c *Cache) GetStatistics(windowDays int) (*domain.Statistics, error) {
	key := fmt.Sprintf("stats:%dd", windowDays)
	data, err := c.client.Get(c.ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}

	var stats domain.Statistics
	if err := json.Unmarshal([]byte(data), &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// SetStatistics 缓存统计结果
func (c *Cache) SetStatistics(windowDays int, stats *domain.Statistics, ttl time.Duration) error {
	key := fmt.Sprintf("stats:%dd", windowDays)
	data, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return c.client.Set(c.ctx, key, data, ttl).Err()
}

// Health 检查 Redis 连接状态
func (c *Cache) Health() error {
	return c.client.Ping(c.ctx).Err()
}

// Close 关闭 Redis 连接
func (c *Cache) Close() error {
	return c.client.Close()
}
