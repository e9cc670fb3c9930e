package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"mailguard/backend/internal/domain"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host string // 监听地址，默认 "0.0.0.0"
	Port int    // 监听端口，默认 8080
}

// SecurityConfig 定义邮件校验的默认策略
type SecurityConfig struct {
	AllowHTML        bool     // 正文默认是否允许白名单 HTML
	StrictMode       bool     // 默认是否启用严格净化模式
	CheckPhishing    bool     // 默认是否启用钓鱼检测
	AllowAttachments bool     // 默认是否允许附件
	ExtraBlacklist   []string // 追加到内置名单的封禁域名
}

// Options 返回配置对应的默认校验策略
func (c SecurityConfig) Options() domain.ValidationOptions {
	return domain.ValidationOptions{
		AllowHTML:        c.AllowHTML,
		StrictMode:       c.StrictMode,
		CheckPhishing:    c.CheckPhishing,
		AllowAttachments: c.AllowAttachments,
	}
}

// RateLimitSettings 定义发送方速率限制参数
type RateLimitSettings struct {
	PerMinute      int           // 每分钟上限，默认 10
	PerHour        int           // 每小时上限，默认 500
	PerDay         int           // 每天上限，默认 2000
	CooldownPeriod time.Duration // 触发限制后的冷却时长，默认 60s
	BurstWindow    time.Duration // 同一收件人的突发窗口，默认 5m
	BurstThreshold int           // 突发窗口内同一收件人的上限，默认 3
}

// Config 返回配置对应的速率限制参数
func (c RateLimitSettings) Config() domain.RateLimitConfig {
	return domain.RateLimitConfig{
		PerMinute:      c.PerMinute,
		PerHour:        c.PerHour,
		PerDay:         c.PerDay,
		CooldownPeriod: c.CooldownPeriod,
		BurstWindow:    c.BurstWindow,
		BurstThreshold: c.BurstThreshold,
	}.Normalize()
}

// SpamConfig 定义垃圾邮件评分参数
type SpamConfig struct {
	Threshold   float64 // 判定阈值，默认 50
	BlockOnFlag bool    // 判定为垃圾邮件时是否阻止发送，默认 true
}

// StorageConfig 定义速率限制状态的存储后端
type StorageConfig struct {
	Type string // "memory"（单实例）或 "redis"（多实例共享），默认 memory
}

// RedisConfig 定义 Redis 服务配置
type RedisConfig struct {
	Address  string // Redis 服务地址，格式 "host:port"，默认 "localhost:6379"
	Password string // Redis 认证密码，留空表示无密码
	DB       int    // Redis 数据库编号，默认 0
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
	File        string // 日志文件路径，留空则只输出到控制台
}

// AdminConfig 定义管理接口的访问控制
type AdminConfig struct {
	Token string // 管理接口令牌，必须至少 16 字符
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Server    ServerConfig
	Security  SecurityConfig
	RateLimit RateLimitSettings
	Spam      SpamConfig
	Storage   StorageConfig
	Redis     RedisConfig
	CORS      CORSConfig
	Log       LogConfig
	Admin     AdminConfig
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量（最高优先级）
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: MAILGUARD_
// 例如: MAILGUARD_SERVER_PORT, MAILGUARD_ADMIN_TOKEN
func Load() (*Config, error) {
	// 尝试加载 .env 文件（静默失败，因为 .env 文件是可选的）
	loadEnvFile()

	viper.SetEnvPrefix("mailguard")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("security.allow_html", false)
	viper.SetDefault("security.strict_mode", false)
	viper.SetDefault("security.check_phishing", true)
	viper.SetDefault("security.allow_attachments", true)
	viper.SetDefault("security.extra_blacklist", "")
	viper.SetDefault("ratelimit.per_minute", domain.DefaultPerMinuteLimit)
	viper.SetDefault("ratelimit.per_hour", domain.DefaultPerHourLimit)
	viper.SetDefault("ratelimit.per_day", domain.DefaultPerDayLimit)
	viper.SetDefault("ratelimit.cooldown_period", "60s")
	viper.SetDefault("ratelimit.burst_window", "5m")
	viper.SetDefault("ratelimit.burst_threshold", domain.DefaultBurstThreshold)
	viper.SetDefault("spam.threshold", domain.SpamThreshold)
	viper.SetDefault("spam.block_on_flag", true)
	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("cors.allowed_origins", "*")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("log.file", "")
	viper.SetDefault("admin.token", "")

	cooldown, err := time.ParseDuration(viper.GetString("ratelimit.cooldown_period"))
	if err != nil {
		return nil, fmt.Errorf("invalid ratelimit.cooldown_period: %w", err)
	}
	burstWindow, err := time.ParseDuration(viper.GetString("ratelimit.burst_window"))
	if err != nil {
		return nil, fmt.Errorf("invalid ratelimit.burst_window: %w", err)
	}

	storageType := strings.ToLower(viper.GetString("storage.type"))
	if storageType != "memory" && storageType != "redis" {
		return nil, fmt.Errorf("invalid storage.type %q: must be \"memory\" or \"redis\"", storageType)
	}

	corsOrigins := parseList(viper.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	adminToken := viper.GetString("admin.token")

	// 安全检查：管理接口令牌必须显式配置且足够长
	if adminToken == "" {
		return nil, fmt.Errorf("SECURITY ERROR: admin token is required. Please set MAILGUARD_ADMIN_TOKEN environment variable")
	}
	if len(adminToken) < 16 {
		return nil, fmt.Errorf("SECURITY ERROR: admin token must be at least 16 characters long")
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("server.host"),
			Port: viper.GetInt("server.port"),
		},
		Security: SecurityConfig{
			AllowHTML:        viper.GetBool("security.allow_html"),
			StrictMode:       viper.GetBool("security.strict_mode"),
			CheckPhishing:    viper.GetBool("security.check_phishing"),
			AllowAttachments: viper.GetBool("security.allow_attachments"),
			ExtraBlacklist:   parseDomains(viper.GetString("security.extra_blacklist")),
		},
		RateLimit: RateLimitSettings{
			PerMinute:      viper.GetInt("ratelimit.per_minute"),
			PerHour:        viper.GetInt("ratelimit.per_hour"),
			PerDay:         viper.GetInt("ratelimit.per_day"),
			CooldownPeriod: cooldown,
			BurstWindow:    burstWindow,
			BurstThreshold: viper.GetInt("ratelimit.burst_threshold"),
		},
		Spam: SpamConfig{
			Threshold:   viper.GetFloat64("spam.threshold"),
			BlockOnFlag: viper.GetBool("spam.block_on_flag"),
		},
		Storage: StorageConfig{
			Type: storageType,
		},
		Redis: RedisConfig{
			Address:  viper.GetString("redis.address"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
			File:        viper.GetString("log.file"),
		},
		Admin: AdminConfig{
			Token: adminToken,
		},
	}

	return cfg, nil
}

// parseDomains 将逗号分隔的域名字符串解析为小写域名数组
func parseDomains(value string) []string {
	out := parseList(value)
	for i := range out {
		out[i] = strings.ToLower(out[i])
	}
	return out
}

// parseList 将逗号分隔的字符串解析为字符串切片，已去除空白字符
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
// 加载顺序：
//  1. 当前目录的 .env
//  2. 父目录的 .env（用于从子目录运行的情况）
//
// 注意：
//   - 如果文件不存在，静默失败（.env 是可选的）
//   - 环境变量不会被覆盖（已存在的环境变量优先级更高）
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
