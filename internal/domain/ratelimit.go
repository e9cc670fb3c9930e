package domain

import (
	"strings"
	"time"
)

// 速率限制默认值
const (
	DefaultPerMinuteLimit = 10
	DefaultPerHourLimit   = 500
	DefaultPerDayLimit    = 2000
	DefaultCooldownPeriod = 60 * time.Second
	DefaultBurstWindow    = 5 * time.Minute
	DefaultBurstThreshold = 3 // 同一收件人在突发窗口内的最大发送次数
	SendRecordRetention   = 24 * time.Hour
)

// RateLimitConfig 发送方速率限制配置
type RateLimitConfig struct {
	PerMinute      int           `json:"perMinute"`
	PerHour        int           `json:"perHour"`
	PerDay         int           `json:"perDay"`
	CooldownPeriod time.Duration `json:"cooldownPeriod"`
	BurstWindow    time.Duration `json:"burstWindow"`
	BurstThreshold int           `json:"burstThreshold"`
}

// DefaultRateLimitConfig 返回默认速率限制配置
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		PerMinute:      DefaultPerMinuteLimit,
		PerHour:        DefaultPerHourLimit,
		PerDay:         DefaultPerDayLimit,
		CooldownPeriod: DefaultCooldownPeriod,
		BurstWindow:    DefaultBurstWindow,
		BurstThreshold: DefaultBurstThreshold,
	}
}

// Normalize 将未设置的字段回填为默认值
func (c RateLimitConfig) Normalize() RateLimitConfig {
	def := DefaultRateLimitConfig()
	if c.PerMinute <= 0 {
		c.PerMinute = def.PerMinute
	}
	if c.PerHour <= 0 {
		c.PerHour = def.PerHour
	}
	if c.PerDay <= 0 {
		c.PerDay = def.PerDay
	}
	if c.CooldownPeriod <= 0 {
		c.CooldownPeriod = def.CooldownPeriod
	}
	if c.BurstWindow <= 0 {
		c.BurstWindow = def.BurstWindow
	}
	if c.BurstThreshold <= 0 {
		c.BurstThreshold = def.BurstThreshold
	}
	return c
}

// SendRecord 一次已提交发送的记录，仅在传输真正完成后创建
type SendRecord struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Recipient string    `json:"recipient"`
	Sender    string    `json:"sender"`
	OrgID     string    `json:"organizationId"`
	UserID    string    `json:"userId,omitempty"`
}

// SenderKey 组合组织与发件人地址，作为速率限制状态的作用域
func SenderKey(orgID, senderEmail string) string {
	return strings.ToLower(strings.TrimSpace(orgID)) + "|" + strings.ToLower(strings.TrimSpace(senderEmail))
}

// UsageSnapshot 当前各窗口的发送计数快照
type UsageSnapshot struct {
	LastMinute int `json:"lastMinute"`
	LastHour   int `json:"lastHour"`
	LastDay    int `json:"lastDay"`
}

// RateLimitDecision 一次速率检查的结构化结果，永远不是错误
type RateLimitDecision struct {
	Allowed      bool            `json:"allowed"`
	Reason       string          `json:"reason,omitempty"`
	ResetTime    *time.Time      `json:"resetTime,omitempty"`
	CurrentUsage UsageSnapshot   `json:"currentUsage"`
	Limits       RateLimitConfig `json:"limits"`
}

// OrganizationStats 一个组织内所有被跟踪发送方的聚合统计
type OrganizationStats struct {
	OrgID               string `json:"organizationId"`
	TotalUsers          int    `json:"totalUsers"`
	TotalEmailsLastHour int    `json:"totalEmailsLastHour"`
	TotalEmailsLastDay  int    `json:"totalEmailsLastDay"`
	UsersInCooldown     int    `json:"usersInCooldown"`
}
