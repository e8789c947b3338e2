package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host string // 监听地址，默认 "0.0.0.0"
	Port int    // 监听端口，默认 8080
}

// MonitorConfig 定义邮件生命周期追踪的核心业务配置
type MonitorConfig struct {
	Enabled       bool          // 总开关，关闭后不再创建任何记录
	LogBody       bool          // 是否保存邮件正文（关闭可节省存储）
	LogMetadata   bool          // 是否保存请求上下文元数据
	RecencyWindow time.Duration // 回退匹配的时间窗口，默认 5 分钟
	StuckTimeout  time.Duration // 卡住判定超时，默认 2 分钟
	SweepEnabled  bool          // 是否启用周期性卡住检测
	SweepInterval time.Duration // 卡住检测周期，默认 1 分钟
}

// WebhookConfig 定义投递服务商回调的配置
type WebhookConfig struct {
	Enabled          bool   // 回调开关，关闭时端点返回 403
	Secret           string // HMAC-SHA256 签名密钥
	RequestsPerIPMin int    // 单 IP 每分钟允许的回调请求数
}

// CleanupConfig 定义历史记录的保留策略
type CleanupConfig struct {
	Enabled       bool          // 是否启用周期性清理
	RetentionDays int           // 保留天数，默认 90
	Interval      time.Duration // 清理周期，默认 24 小时
}

// NotifyConfig 定义失败/退回/清理事件的邮件通知配置
type NotifyConfig struct {
	Enabled      bool
	OnFailed     bool
	OnBounced    bool
	OnCleanup    bool
	Recipients   []string // 通知收件人列表
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	From         string
}

// AuthConfig 定义管理 API 的认证配置
//
// AdminPasswordHash 为空时认证关闭（仅限开发环境）。
type AuthConfig struct {
	JWTSecret         string        // JWT 签名密钥，启用认证时至少 32 字符
	Issuer            string        // JWT 签发者标识
	AccessExpiry      time.Duration // 访问令牌有效期，默认 1 小时
	AdminUser         string        // 管理员用户名
	AdminPasswordHash string        // 管理员密码的 bcrypt 哈希
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
	File        string // 日志文件路径，为空时仅输出到标准输出
}

// DatabaseConfig 定义数据库连接配置（支持 MySQL 和 PostgreSQL）
type DatabaseConfig struct {
	Type            string        // 数据库类型: "mysql" 或 "postgres"，为空使用内存存储
	DSN             string        // 数据库连接字符串
	MaxOpenConns    int           // 最大打开连接数，默认 25
	MaxIdleConns    int           // 最大空闲连接数，默认 5
	ConnMaxLifetime time.Duration // 连接最大生命周期，默认 5 分钟
}

// RedisConfig 定义 Redis 缓存服务配置（用于统计结果缓存，可选）
type RedisConfig struct {
	Enabled  bool
	Address  string        // Redis 服务地址，默认 "localhost:6379"
	Password string        // Redis 认证密码，留空表示无密码
	DB       int           // Redis 数据库编号，默认 0
	StatsTTL time.Duration // 统计缓存有效期，默认 60 秒
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Server   ServerConfig
	Monitor  MonitorConfig
	Webhook  WebhookConfig
	Cleanup  CleanupConfig
	Notify   NotifyConfig
	Auth     AuthConfig
	CORS     CORSConfig
	Log      LogConfig
	Database DatabaseConfig
	Redis    RedisConfig
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量（最高优先级）
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: MAILWATCH_
// 例如: MAILWATCH_SERVER_PORT, MAILWATCH_WEBHOOK_SECRET
func Load() (*Config, error) {
	// 尝试加载 .env 文件（静默失败，因为 .env 文件是可选的）
	loadEnvFile()

	viper.SetEnvPrefix("mailwatch")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("monitor.enabled", true)
	viper.SetDefault("monitor.log_body", true)
	viper.SetDefault("monitor.log_metadata", true)
	viper.SetDefault("monitor.recency_window", "5m")
	viper.SetDefault("monitor.stuck_timeout", "2m")
	viper.SetDefault("monitor.sweep_enabled", true)
	viper.SetDefault("monitor.sweep_interval", "1m")
	viper.SetDefault("webhook.enabled", false)
	viper.SetDefault("webhook.secret", "")
	viper.SetDefault("webhook.requests_per_ip_min", 60)
	viper.SetDefault("cleanup.enabled", false)
	viper.SetDefault("cleanup.retention_days", 90)
	viper.SetDefault("cleanup.interval", "24h")
	viper.SetDefault("notify.enabled", false)
	viper.SetDefault("notify.on_failed", true)
	viper.SetDefault("notify.on_bounced", true)
	viper.SetDefault("notify.on_cleanup", false)
	viper.SetDefault("notify.recipients", "")
	viper.SetDefault("notify.smtp_host", "")
	viper.SetDefault("notify.smtp_port", 587)
	viper.SetDefault("notify.smtp_user", "")
	viper.SetDefault("notify.smtp_password", "")
	viper.SetDefault("notify.from", "")
	viper.SetDefault("auth.jwt_secret", "")
	viper.SetDefault("auth.issuer", "mailwatch")
	viper.SetDefault("auth.access_expiry", "1h")
	viper.SetDefault("auth.admin_user", "admin")
	viper.SetDefault("auth.admin_password_hash", "")
	viper.SetDefault("cors.allowed_origins", "*")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("log.file", "")
	viper.SetDefault("database.type", "") // 默认为空，使用内存存储
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.stats_ttl", "60s")

	recencyWindow, err := parseDurationDefault("monitor.recency_window", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	stuckTimeout, err := parseDurationDefault("monitor.stuck_timeout", 2*time.Minute)
	if err != nil {
		return nil, err
	}
	sweepInterval, err := parseDurationDefault("monitor.sweep_interval", time.Minute)
	if err != nil {
		return nil, err
	}
	cleanupInterval, err := parseDurationDefault("cleanup.interval", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	accessExpiry, err := parseDurationDefault("auth.access_expiry", time.Hour)
	if err != nil {
		return nil, err
	}
	connMaxLifetime, err := parseDurationDefault("database.conn_max_lifetime", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	statsTTL, err := parseDurationDefault("redis.stats_ttl", time.Minute)
	if err != nil {
		return nil, err
	}

	corsOrigins := parseList(viper.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("server.host"),
			Port: viper.GetInt("server.port"),
		},
		Monitor: MonitorConfig{
			Enabled:       viper.GetBool("monitor.enabled"),
			LogBody:       viper.GetBool("monitor.log_body"),
			LogMetadata:   viper.GetBool("monitor.log_metadata"),
			RecencyWindow: recencyWindow,
			StuckTimeout:  stuckTimeout,
			SweepEnabled:  viper.GetBool("monitor.sweep_enabled"),
			SweepInterval: sweepInterval,
		},
		Webhook: WebhookConfig{
			Enabled:          viper.GetBool("webhook.enabled"),
			Secret:           viper.GetString("webhook.secret"),
			RequestsPerIPMin: viper.GetInt("webhook.requests_per_ip_min"),
		},
		Cleanup: CleanupConfig{
			Enabled:       viper.GetBool("cleanup.enabled"),
			RetentionDays: viper.GetInt("cleanup.retention_days"),
			Interval:      cleanupInterval,
		},
		Notify: NotifyConfig{
			Enabled:      viper.GetBool("notify.enabled"),
			OnFailed:     viper.GetBool("notify.on_failed"),
			OnBounced:    viper.GetBool("notify.on_bounced"),
			OnCleanup:    viper.GetBool("notify.on_cleanup"),
			Recipients:   parseList(viper.GetString("notify.recipients")),
			SMTPHost:     viper.GetString("notify.smtp_host"),
			SMTPPort:     viper.GetInt("notify.smtp_port"),
			SMTPUser:     viper.GetString("notify.smtp_user"),
			SMTPPassword: viper.GetString("notify.smtp_password"),
			From:         viper.GetString("notify.from"),
		},
		Auth: AuthConfig{
			JWTSecret:         viper.GetString("auth.jwt_secret"),
			Issuer:            viper.GetString("auth.issuer"),
			AccessExpiry:      accessExpiry,
			AdminUser:         viper.GetString("auth.admin_user"),
			AdminPasswordHash: viper.GetString("auth.admin_password_hash"),
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
			File:        viper.GetString("log.file"),
		},
		Database: DatabaseConfig{
			Type:            viper.GetString("database.type"),
			DSN:             viper.GetString("database.dsn"),
			MaxOpenConns:    viper.GetInt("database.max_open_conns"),
			MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: connMaxLifetime,
		},
		Redis: RedisConfig{
			Enabled:  viper.GetBool("redis.enabled"),
			Address:  viper.GetString("redis.address"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
			StatsTTL: statsTTL,
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate 校验配置的内部一致性
func (c *Config) validate() error {
	if c.Webhook.Enabled && c.Webhook.Secret == "" {
		return fmt.Errorf("webhook.secret is required when webhooks are enabled")
	}
	if c.Auth.AdminPasswordHash != "" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 characters long when admin auth is enabled")
	}
	if c.Database.Type != "" && c.Database.Type != "mysql" && c.Database.Type != "postgres" {
		return fmt.Errorf("database.type must be mysql or postgres, got %q", c.Database.Type)
	}
	if c.Database.Type != "" && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required when database.type is set")
	}
	if c.Cleanup.RetentionDays <= 0 {
		return fmt.Errorf("cleanup.retention_days must be positive")
	}
	return nil
}

// AuthEnabled 判断管理 API 认证是否启用
func (c *Config) AuthEnabled() bool {
	return c.Auth.AdminPasswordHash != ""
}

// parseDurationDefault 解析时长配置项，解析失败时返回错误
func parseDurationDefault(key string, fallback time.Duration) (time.Duration, error) {
	raw := viper.GetString(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// parseList 将逗号分隔的字符串解析为字符串切片
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件
//
// 如果文件不存在，静默失败（.env 是可选的）；
// 已存在的环境变量优先级更高，不会被覆盖。
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
