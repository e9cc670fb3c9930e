package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailguard/backend/internal/domain"
	"mailguard/backend/internal/storage/memory"
)

// fakeClock 可手动推进的测试时钟
type fakeClock struct {
	current time.Time
}

func (c *fakeClock) Now() time.Time          { return c.current }
func (c *fakeClock) Advance(d time.Duration) { c.current = c.current.Add(d) }

func newTestTracker(limits domain.RateLimitConfig) (*Tracker, *fakeClock) {
	clock := &fakeClock{current: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	tracker := NewTracker(memory.NewStore(), limits, zap.NewNop())
	tracker.now = clock.Now
	return tracker, clock
}

func TestTracker_MinuteWindow(t *testing.T) {
	ctx := context.Background()
	limits := domain.RateLimitConfig{
		PerMinute:      2,
		PerHour:        100,
		PerDay:         1000,
		CooldownPeriod: 60 * time.Second,
		BurstWindow:    5 * time.Minute,
		BurstThreshold: 100,
	}
	tracker, clock := newTestTracker(limits)

	t.Run("未达上限时允许发送", func(t *testing.T) {
		decision, err := tracker.CheckRateLimit(ctx, "org-1", "alice@corp.com", "x@example.com", limits)
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.Equal(t, 0, decision.CurrentUsage.LastMinute)

		require.NoError(t, tracker.RecordEmailSent(ctx, "org-1", "alice@corp.com", "x@example.com", "u1"))

		decision, err = tracker.CheckRateLimit(ctx, "org-1", "alice@corp.com", "y@example.com", limits)
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.Equal(t, 1, decision.CurrentUsage.LastMinute)

		require.NoError(t, tracker.RecordEmailSent(ctx, "org-1", "alice@corp.com", "y@example.com", "u1"))
	})

	t.Run("达到分钟上限后拒绝并进入冷却", func(t *testing.T) {
		decision, err := tracker.CheckRateLimit(ctx, "org-1", "alice@corp.com", "z@example.com", limits)
		require.NoError(t, err)

		assert.False(t, decision.Allowed)
		assert.Contains(t, decision.Reason, "per-minute limit reached (2/2)")
		require.NotNil(t, decision.ResetTime)
		assert.Equal(t, clock.Now().Add(limits.CooldownPeriod), *decision.ResetTime)
	})

	t.Run("冷却期内直接短路拒绝", func(t *testing.T) {
		clock.Advance(30 * time.Second)

		decision, err := tracker.CheckRateLimit(ctx, "org-1", "alice@corp.com", "z@example.com", limits)
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Contains(t, decision.Reason, "sender in cooldown")
	})

	t.Run("冷却到期且窗口滑出后恢复允许", func(t *testing.T) {
		// 距首次发送已超过一分钟，分钟窗口已清空
		clock.Advance(45 * time.Second)

		decision, err := tracker.CheckRateLimit(ctx, "org-1", "alice@corp.com", "z@example.com", limits)
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.Equal(t, 0, decision.CurrentUsage.LastMinute)
		assert.Equal(t, 2, decision.CurrentUsage.LastHour)
	})

	t.Run("发送方键不区分大小写", func(t *testing.T) {
		decision, err := tracker.CheckRateLimit(ctx, "ORG-1", "Alice@CORP.com", "z@example.com", limits)
		require.NoError(t, err)
		assert.Equal(t, 2, decision.CurrentUsage.LastHour)
	})

	t.Run("不同发送方互不影响", func(t *testing.T) {
		decision, err := tracker.CheckRateLimit(ctx, "org-1", "bob@corp.com", "z@example.com", limits)
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.Equal(t, 0, decision.CurrentUsage.LastHour)
	})
}

func TestTracker_RecipientBurst(t *testing.T) {
	ctx := context.Background()
	limits := domain.RateLimitConfig{
		PerMinute:      100,
		PerHour:        1000,
		PerDay:         10000,
		CooldownPeriod: 60 * time.Second,
		BurstWindow:    5 * time.Minute,
		BurstThreshold: 3,
	}
	tracker, clock := newTestTracker(limits)

	for i := 0; i < 3; i++ {
		require.NoError(t, tracker.RecordEmailSent(ctx, "org-1", "alice@corp.com", "bob@example.com", "u1"))
		clock.Advance(30 * time.Second)
	}

	t.Run("突发窗口内同一收件人达到阈值后拒绝", func(t *testing.T) {
		decision, err := tracker.CheckRateLimit(ctx, "org-1", "alice@corp.com", "bob@example.com", limits)
		require.NoError(t, err)

		assert.False(t, decision.Allowed)
		assert.Contains(t, decision.Reason, "bob@example.com")
		require.NotNil(t, decision.ResetTime)
	})

	t.Run("其他收件人不受突发限制影响", func(t *testing.T) {
		decision, err := tracker.CheckRateLimit(ctx, "org-1", "alice@corp.com", "carol@example.com", limits)
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
	})

	t.Run("突发拒绝不触发冷却", func(t *testing.T) {
		// 冷却会短路全部检查；其他收件人仍被允许说明未进入冷却
		decision, err := tracker.CheckRateLimit(ctx, "org-1", "alice@corp.com", "dave@example.com", limits)
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
	})

	t.Run("收件人比较不区分大小写", func(t *testing.T) {
		decision, err := tracker.CheckRateLimit(ctx, "org-1", "alice@corp.com", "BOB@EXAMPLE.COM", limits)
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
	})

	t.Run("突发窗口滑出后恢复允许", func(t *testing.T) {
		clock.Advance(5 * time.Minute)

		decision, err := tracker.CheckRateLimit(ctx, "org-1", "alice@corp.com", "bob@example.com", limits)
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
	})
}

func TestTracker_ResetUserLimits(t *testing.T) {
	ctx := context.Background()
	limits := domain.RateLimitConfig{
		PerMinute:      1,
		PerHour:        100,
		PerDay:         1000,
		CooldownPeriod: time.Hour,
		BurstWindow:    5 * time.Minute,
		BurstThreshold: 100,
	}
	tracker, _ := newTestTracker(limits)

	require.NoError(t, tracker.RecordEmailSent(ctx, "org-1", "alice@corp.com", "x@example.com", "u1"))

	// 触发拒绝并进入冷却
	decision, err := tracker.CheckRateLimit(ctx, "org-1", "alice@corp.com", "x@example.com", limits)
	require.NoError(t, err)
	require.False(t, decision.Allowed)

	t.Run("重置后立即恢复允许", func(t *testing.T) {
		require.NoError(t, tracker.ResetUserLimits(ctx, "org-1", "alice@corp.com"))

		decision, err := tracker.CheckRateLimit(ctx, "org-1", "alice@corp.com", "x@example.com", limits)
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.Equal(t, 0, decision.CurrentUsage.LastDay)
	})
}

func TestTracker_GetOrganizationStats(t *testing.T) {
	ctx := context.Background()
	limits := domain.RateLimitConfig{
		PerMinute:      1,
		PerHour:        100,
		PerDay:         1000,
		CooldownPeriod: time.Hour,
		BurstWindow:    5 * time.Minute,
		BurstThreshold: 100,
	}
	tracker, _ := newTestTracker(limits)

	require.NoError(t, tracker.RecordEmailSent(ctx, "org-1", "alice@corp.com", "x@example.com", "u1"))
	require.NoError(t, tracker.RecordEmailSent(ctx, "org-1", "bob@corp.com", "y@example.com", "u2"))
	require.NoError(t, tracker.RecordEmailSent(ctx, "org-1", "bob@corp.com", "z@example.com", "u2"))
	require.NoError(t, tracker.RecordEmailSent(ctx, "org-2", "eve@other.com", "x@example.com", "u3"))

	// alice 再次检查触发冷却
	decision, err := tracker.CheckRateLimit(ctx, "org-1", "alice@corp.com", "x@example.com", limits)
	require.NoError(t, err)
	require.False(t, decision.Allowed)

	t.Run("统计只覆盖本组织的发送方", func(t *testing.T) {
		stats, err := tracker.GetOrganizationStats(ctx, "org-1")
		require.NoError(t, err)

		assert.Equal(t, "org-1", stats.OrgID)
		assert.Equal(t, 2, stats.TotalUsers)
		assert.Equal(t, 3, stats.TotalEmailsLastHour)
		assert.Equal(t, 3, stats.TotalEmailsLastDay)
		assert.Equal(t, 1, stats.UsersInCooldown)
	})

	t.Run("空组织返回零值统计", func(t *testing.T) {
		stats, err := tracker.GetOrganizationStats(ctx, "org-none")
		require.NoError(t, err)

		assert.Equal(t, 0, stats.TotalUsers)
		assert.Equal(t, 0, stats.TotalEmailsLastHour)
		assert.Equal(t, 0, stats.UsersInCooldown)
	})
}
