package service

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailguard/backend/internal/config"
	"mailguard/backend/internal/domain"
	"mailguard/backend/internal/monitoring"
	"mailguard/backend/internal/ratelimit"
	"mailguard/backend/internal/security"
	"mailguard/backend/internal/storage/memory"
)

// fakeTransport 记录投递调用的测试通道
type fakeTransport struct {
	delivered []domain.SanitizedEnvelope
	err       error
}

func (f *fakeTransport) Deliver(_ context.Context, envelope domain.SanitizedEnvelope) error {
	if f.err != nil {
		return f.err
	}
	f.delivered = append(f.delivered, envelope)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Security: config.SecurityConfig{
			CheckPhishing:    true,
			AllowAttachments: true,
		},
		RateLimit: config.RateLimitSettings{},
		Spam: config.SpamConfig{
			Threshold:   domain.SpamThreshold,
			BlockOnFlag: true,
		},
	}
}

func newTestService(cfg *config.Config) (*OutboundService, *fakeTransport) {
	logger := zap.NewNop()
	transport := &fakeTransport{}
	svc := NewOutboundService(
		security.NewEmailValidationGate(),
		security.NewBlacklistChecker(),
		security.NewSpamScorerWithThreshold(cfg.Spam.Threshold),
		ratelimit.NewTracker(memory.NewStore(), cfg.RateLimit.Config(), logger),
		transport,
		monitoring.NewMetricsWithRegistry(prometheus.NewRegistry()),
		monitoring.NewAlertManager(logger),
		cfg,
		logger,
	)
	return svc, transport
}

func cleanInput() SendInput {
	return SendInput{
		OrgID:  "org-1",
		UserID: "user-1",
		Envelope: domain.EmailEnvelope{
			To:      "Bob@Example.com",
			From:    "alice@corp.com",
			Subject: "Quarterly report",
			Body:    "Please find the summary below.",
		},
	}
}

func TestOutboundService_Send(t *testing.T) {
	ctx := context.Background()

	t.Run("干净邮件投递成功并记录发送", func(t *testing.T) {
		svc, transport := newTestService(testConfig())

		outcome, err := svc.Send(ctx, cleanInput())

		require.NoError(t, err)
		assert.True(t, outcome.Delivered)
		assert.NotEmpty(t, outcome.MessageID)
		assert.True(t, outcome.Verdict.IsValid)
		assert.False(t, outcome.Spam.IsSpam)
		assert.True(t, outcome.RateLimit.Allowed)

		// 投递使用净化后的信封
		require.Len(t, transport.delivered, 1)
		assert.Equal(t, "bob@example.com", transport.delivered[0].To)

		// 第二次发送能看到第一次的计数
		second, err := svc.Send(ctx, cleanInput())
		require.NoError(t, err)
		assert.True(t, second.Delivered)
		assert.Equal(t, 1, second.RateLimit.CurrentUsage.LastMinute)
	})

	t.Run("安全校验拦截返回哨兵错误", func(t *testing.T) {
		svc, transport := newTestService(testConfig())

		input := cleanInput()
		input.Envelope.To = "bob@example.com\r\nBcc: hidden@attacker.com"

		outcome, err := svc.Send(ctx, input)

		require.ErrorIs(t, err, ErrValidationRejected)
		assert.False(t, outcome.Delivered)
		assert.False(t, outcome.Verdict.IsValid)
		assert.Equal(t, domain.SeverityCritical, outcome.Verdict.RiskLevel)
		assert.Empty(t, transport.delivered)
	})

	t.Run("黑名单收件人拦截", func(t *testing.T) {
		svc, transport := newTestService(testConfig())

		input := cleanInput()
		input.Envelope.To = "bob@mailinator.com"

		outcome, err := svc.Send(ctx, input)

		require.ErrorIs(t, err, ErrRecipientBlacklisted)
		assert.False(t, outcome.Delivered)
		assert.True(t, outcome.Verdict.IsValid) // 校验本身通过，拦截发生在黑名单环节
		assert.Empty(t, transport.delivered)
	})

	t.Run("垃圾邮件超过阈值拦截", func(t *testing.T) {
		svc, transport := newTestService(testConfig())

		input := cleanInput()
		input.Envelope.Subject = "FREE!!! Act now"
		input.Envelope.Body = "100% guaranteed winner"

		outcome, err := svc.Send(ctx, input)

		require.ErrorIs(t, err, ErrSpamBlocked)
		assert.False(t, outcome.Delivered)
		assert.True(t, outcome.Spam.IsSpam)
		assert.Equal(t, 60.0, outcome.Spam.Score)
		assert.Empty(t, transport.delivered)
	})

	t.Run("策略放行时垃圾邮件只标记不拦截", func(t *testing.T) {
		cfg := testConfig()
		cfg.Spam.BlockOnFlag = false
		svc, transport := newTestService(cfg)

		input := cleanInput()
		input.Envelope.Subject = "FREE!!! Act now"
		input.Envelope.Body = "100% guaranteed winner"

		outcome, err := svc.Send(ctx, input)

		require.NoError(t, err)
		assert.True(t, outcome.Delivered)
		assert.True(t, outcome.Spam.IsSpam)
		assert.Len(t, transport.delivered, 1)
	})

	t.Run("速率限制拒绝是结论而非错误", func(t *testing.T) {
		svc, transport := newTestService(testConfig())

		input := cleanInput()
		input.Limits = &domain.RateLimitConfig{PerMinute: 1}

		first, err := svc.Send(ctx, input)
		require.NoError(t, err)
		assert.True(t, first.Delivered)

		second, err := svc.Send(ctx, input)
		require.NoError(t, err)
		assert.False(t, second.Delivered)
		assert.Empty(t, second.MessageID)
		assert.False(t, second.RateLimit.Allowed)
		assert.Contains(t, second.RateLimit.Reason, "per-minute limit reached")
		assert.Len(t, transport.delivered, 1)
	})

	t.Run("投递失败不记录发送", func(t *testing.T) {
		svc, transport := newTestService(testConfig())
		transport.err = assert.AnError

		input := cleanInput()
		input.Limits = &domain.RateLimitConfig{PerMinute: 1}

		outcome, err := svc.Send(ctx, input)
		require.ErrorIs(t, err, ErrTransportFailed)
		assert.False(t, outcome.Delivered)

		// 失败的尝试不占用配额，恢复后同一分钟内仍可发送
		transport.err = nil
		retry, err := svc.Send(ctx, input)
		require.NoError(t, err)
		assert.True(t, retry.Delivered)
		assert.Equal(t, 0, retry.RateLimit.CurrentUsage.LastMinute)
	})
}

func TestDenialCause(t *testing.T) {
	assert.Equal(t, "", DenialCause(""))
	assert.Equal(t, "cooldown", DenialCause("sender in cooldown until 2026-08-01T12:01:00Z"))
	assert.Equal(t, "window", DenialCause("per-minute limit reached (10/10)"))
	assert.Equal(t, "burst", DenialCause("too many messages to recipient bob@example.com within 5m0s (3/3)"))
}
