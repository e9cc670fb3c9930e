package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mailguard/backend/internal/domain"
	"mailguard/backend/internal/storage"
)

// Tracker 发送方速率限制状态机
//
// 每个发送方键处于 Normal 或 Cooldown 两种状态之一：任一滑动窗口
// （分钟/小时/天）达到上限即进入 Cooldown，冷却期内所有检查直接
// 拒绝，不再查看计数；冷却采用时间戳比较的惰性过期，没有阻塞等待。
//
// 并发说明：存储的单次操作是原子的，但 CheckRateLimit 与
// RecordEmailSent 之间的 check-then-act 不做跨调用串行化——同一键上
// 并发在途的请求可能各自观察到"允许"，造成以在途数为上界的短暂超发。
// 这里选择接受该有界松弛，换取无锁竞争的检查路径。
type Tracker struct {
	store    storage.SendLog
	defaults domain.RateLimitConfig
	log      *zap.Logger
	now      func() time.Time
}

// NewTracker 创建速率限制器
func NewTracker(store storage.SendLog, defaults domain.RateLimitConfig, log *zap.Logger) *Tracker {
	return &Tracker{
		store:    store,
		defaults: defaults.Normalize(),
		log:      log,
		now:      time.Now,
	}
}

// CheckRateLimit 判断发送方当前是否允许发送
//
// 检查顺序固定：冷却短路 → 清理过期记录 → 分钟/小时/天窗口依序比较
// （首个违规窗口触发冷却）→ 收件人突发检查。突发检查独立于聚合窗口，
// 即使聚合用量很低也会触发，但不进入冷却。
func (t *Tracker) CheckRateLimit(ctx context.Context, orgID, senderEmail, recipientEmail string, limits domain.RateLimitConfig) (domain.RateLimitDecision, error) {
	key := domain.SenderKey(orgID, senderEmail)
	limits = limits.Normalize()
	now := t.now()

	// 1. 冷却短路：冷却期内不查看任何计数
	if until, active, err := t.store.Cooldown(ctx, key); err != nil {
		return domain.RateLimitDecision{}, fmt.Errorf("read cooldown state: %w", err)
	} else if active {
		if now.Before(until) {
			return domain.RateLimitDecision{
				Allowed:   false,
				Reason:    fmt.Sprintf("sender in cooldown until %s", until.Format(time.RFC3339)),
				ResetTime: &until,
				Limits:    limits,
			}, nil
		}
		// 过期条目惰性回收
		if err := t.store.ClearCooldown(ctx, key); err != nil {
			return domain.RateLimitDecision{}, fmt.Errorf("clear expired cooldown: %w", err)
		}
	}

	// 2. 惰性清理：只在检查该键时丢弃 24 小时前的记录
	cutoff := now.Add(-domain.SendRecordRetention)
	if err := t.store.PruneBefore(ctx, key, cutoff); err != nil {
		return domain.RateLimitDecision{}, fmt.Errorf("prune send log: %w", err)
	}

	records, err := t.store.RecordsSince(ctx, key, cutoff)
	if err != nil {
		return domain.RateLimitDecision{}, fmt.Errorf("read send log: %w", err)
	}

	// 3. 计算各滑动窗口内的计数
	usage := countWindows(records, now)

	// 4. 按分钟、小时、天的顺序比较，首个违规窗口触发冷却
	type windowCheck struct {
		name  string
		count int
		limit int
		reset time.Duration
	}
	checks := []windowCheck{
		{"per-minute", usage.LastMinute, limits.PerMinute, time.Minute},
		{"per-hour", usage.LastHour, limits.PerHour, time.Hour},
		{"per-day", usage.LastDay, limits.PerDay, 24 * time.Hour},
	}
	for _, c := range checks {
		if c.count < c.limit {
			continue
		}
		until := now.Add(limits.CooldownPeriod)
		if err := t.store.SetCooldown(ctx, key, until); err != nil {
			return domain.RateLimitDecision{}, fmt.Errorf("set cooldown: %w", err)
		}
		t.log.Warn("sender rate limit exceeded, entering cooldown",
			zap.String("sender_key", key),
			zap.String("window", c.name),
			zap.Int("count", c.count),
			zap.Int("limit", c.limit),
			zap.Time("cooldown_until", until),
		)
		return domain.RateLimitDecision{
			Allowed:      false,
			Reason:       fmt.Sprintf("%s limit reached (%d/%d)", c.name, c.count, c.limit),
			ResetTime:    &until,
			CurrentUsage: usage,
			Limits:       limits,
		}, nil
	}

	// 5. 收件人突发检查：不受聚合窗口约束，也不触发冷却
	if decision, burst := t.checkRecipientBurst(records, recipientEmail, now, limits, usage); burst {
		return decision, nil
	}

	return domain.RateLimitDecision{
		Allowed:      true,
		CurrentUsage: usage,
		Limits:       limits,
	}, nil
}

// checkRecipientBurst 统计突发窗口内发往同一收件人的次数
func (t *Tracker) checkRecipientBurst(records []domain.SendRecord, recipientEmail string, now time.Time, limits domain.RateLimitConfig, usage domain.UsageSnapshot) (domain.RateLimitDecision, bool) {
	recipient := strings.ToLower(strings.TrimSpace(recipientEmail))
	windowStart := now.Add(-limits.BurstWindow)

	count := 0
	oldest := now
	for _, rec := range records {
		if rec.Timestamp.Before(windowStart) {
			continue
		}
		if strings.ToLower(rec.Recipient) != recipient {
			continue
		}
		count++
		if rec.Timestamp.Before(oldest) {
			oldest = rec.Timestamp
		}
	}
	if count < limits.BurstThreshold {
		return domain.RateLimitDecision{}, false
	}

	reset := oldest.Add(limits.BurstWindow)
	return domain.RateLimitDecision{
		Allowed:      false,
		Reason:       fmt.Sprintf("too many messages to recipient %s within %s (%d/%d)", recipient, limits.BurstWindow, count, limits.BurstThreshold),
		ResetTime:    &reset,
		CurrentUsage: usage,
		Limits:       limits,
	}, true
}

// RecordEmailSent 记录一次已提交的发送
//
// 调用方必须且只能在传输真正完成后调用；投机性记录会放大计数，
// 漏记则会使后续检查低估用量。
func (t *Tracker) RecordEmailSent(ctx context.Context, orgID, senderEmail, recipientEmail, userID string) error {
	key := domain.SenderKey(orgID, senderEmail)
	record := domain.SendRecord{
		ID:        uuid.NewString(),
		Timestamp: t.now(),
		Recipient: strings.ToLower(strings.TrimSpace(recipientEmail)),
		Sender:    strings.ToLower(strings.TrimSpace(senderEmail)),
		OrgID:     orgID,
		UserID:    userID,
	}
	if err := t.store.Append(ctx, key, record); err != nil {
		return fmt.Errorf("append send record: %w", err)
	}
	return nil
}

// ResetUserLimits 清空指定发送方的全部记录与冷却状态（管理操作）
func (t *Tracker) ResetUserLimits(ctx context.Context, orgID, senderEmail string) error {
	key := domain.SenderKey(orgID, senderEmail)
	if err := t.store.Reset(ctx, key); err != nil {
		return fmt.Errorf("reset sender state: %w", err)
	}
	t.log.Info("sender rate limit state reset", zap.String("sender_key", key))
	return nil
}

// GetOrganizationStats 聚合一个组织内所有被跟踪发送方的统计
//
// 对组织内全部发送方键做线性扫描，复杂度 O(被跟踪发送方数)，
// 仅适用于中等规模的单组织查询。
func (t *Tracker) GetOrganizationStats(ctx context.Context, orgID string) (domain.OrganizationStats, error) {
	prefix := domain.SenderKey(orgID, "")
	keys, err := t.store.Keys(ctx, prefix)
	if err != nil {
		return domain.OrganizationStats{}, fmt.Errorf("list sender keys: %w", err)
	}

	now := t.now()
	stats := domain.OrganizationStats{
		OrgID:      orgID,
		TotalUsers: len(keys),
	}
	for _, key := range keys {
		records, err := t.store.RecordsSince(ctx, key, now.Add(-domain.SendRecordRetention))
		if err != nil {
			return domain.OrganizationStats{}, fmt.Errorf("read send log for %s: %w", key, err)
		}
		usage := countWindows(records, now)
		stats.TotalEmailsLastHour += usage.LastHour
		stats.TotalEmailsLastDay += usage.LastDay

		if until, active, err := t.store.Cooldown(ctx, key); err != nil {
			return domain.OrganizationStats{}, fmt.Errorf("read cooldown for %s: %w", key, err)
		} else if active && now.Before(until) {
			stats.UsersInCooldown++
		}
	}
	return stats, nil
}

// countWindows 在一次遍历中统计分钟/小时/天窗口内的记录数
func countWindows(records []domain.SendRecord, now time.Time) domain.UsageSnapshot {
	minuteStart := now.Add(-time.Minute)
	hourStart := now.Add(-time.Hour)
	dayStart := now.Add(-24 * time.Hour)

	var usage domain.UsageSnapshot
	for _, rec := range records {
		ts := rec.Timestamp
		if ts.Before(dayStart) {
			continue
		}
		usage.LastDay++
		if !ts.Before(hourStart) {
			usage.LastHour++
		}
		if !ts.Before(minuteStart) {
			usage.LastMinute++
		}
	}
	return usage
}
