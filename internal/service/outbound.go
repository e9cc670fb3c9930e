package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mailguard/backend/internal/config"
	"mailguard/backend/internal/domain"
	"mailguard/backend/internal/monitoring"
	"mailguard/backend/internal/ratelimit"
	"mailguard/backend/internal/security"
)

var (
	ErrValidationRejected   = errors.New("email rejected by security validation")
	ErrRecipientBlacklisted = errors.New("recipient address is blacklisted")
	ErrSpamBlocked          = errors.New("email content flagged as spam")
	ErrTransportFailed      = errors.New("delivery transport failed")
)

// SendOutcome 一次发送请求的完整处理结果
type SendOutcome struct {
	Delivered bool                     `json:"delivered"`
	MessageID string                   `json:"messageId,omitempty"`
	Verdict   domain.ValidationVerdict `json:"verdict"`
	Spam      domain.SpamVerdict       `json:"spam"`
	RateLimit domain.RateLimitDecision `json:"rateLimit"`
}

// OutboundService 出站邮件网关的业务编排
//
// 处理顺序固定：安全校验 → 收件人黑名单 → 垃圾邮件评分 → 速率检查 →
// 投递 → 记录发送。计数只在投递成功后增加。
type OutboundService struct {
	gate      *security.EmailValidationGate
	blacklist *security.BlacklistChecker
	scorer    *security.SpamScorer
	tracker   *ratelimit.Tracker
	transport Transport
	metrics   *monitoring.Metrics
	alerts    *monitoring.AlertManager
	cfg       *config.Config
	logger    *zap.Logger
}

// NewOutboundService 创建出站网关服务
func NewOutboundService(
	gate *security.EmailValidationGate,
	blacklist *security.BlacklistChecker,
	scorer *security.SpamScorer,
	tracker *ratelimit.Tracker,
	transport Transport,
	metrics *monitoring.Metrics,
	alerts *monitoring.AlertManager,
	cfg *config.Config,
	logger *zap.Logger,
) *OutboundService {
	return &OutboundService{
		gate:      gate,
		blacklist: blacklist,
		scorer:    scorer,
		tracker:   tracker,
		transport: transport,
		metrics:   metrics,
		alerts:    alerts,
		cfg:       cfg,
		logger:    logger,
	}
}

// SendInput 发送请求的输入
type SendInput struct {
	OrgID    string
	UserID   string
	Envelope domain.EmailEnvelope
	Options  *domain.ValidationOptions // 为空时使用配置的默认选项
	Limits   *domain.RateLimitConfig   // 为空时使用配置的默认限额
}

// Send 执行完整的出站处理链路
//
// 任一环节拦截都会返回对应的哨兵错误，SendOutcome 中保留已完成环节的结论
// 供调用方组织响应。只有投递成功后才写入发送记录。
func (s *OutboundService) Send(ctx context.Context, input SendInput) (SendOutcome, error) {
	outcome := SendOutcome{}

	opts := s.cfg.Security.Options()
	if input.Options != nil {
		opts = *input.Options
	}
	limits := s.cfg.RateLimit.Config()
	if input.Limits != nil {
		limits = input.Limits.Normalize()
	}

	// 1. 安全校验网关
	start := time.Now()
	verdict := s.gate.ValidateFullEmail(input.Envelope, opts)
	outcome.Verdict = verdict
	s.recordValidation(verdict, time.Since(start))

	if !verdict.IsValid {
		s.notifyCriticalFindings(input.OrgID, input.Envelope.From, verdict.Findings)
		s.metrics.SendsTotal.WithLabelValues("rejected_validation").Inc()
		s.logger.Warn("outbound email rejected by validation gate",
			zap.String("org_id", input.OrgID),
			zap.String("risk_level", verdict.RiskLevel.String()),
			zap.Int("findings", len(verdict.Findings)),
		)
		return outcome, fmt.Errorf("%w: %s", ErrValidationRejected, security.GenerateSecurityReport(verdict))
	}

	sanitized, err := domain.DecodeSanitizedEnvelope(verdict.SanitizedValue)
	if err != nil {
		s.metrics.RecordError("decode_error", "outbound")
		return outcome, fmt.Errorf("decode sanitized envelope: %w", err)
	}

	// 2. 收件人黑名单
	if s.blacklist.IsEmailBlacklisted(sanitized.To) {
		s.metrics.BlacklistHits.Inc()
		s.metrics.SendsTotal.WithLabelValues("rejected_blacklist").Inc()
		s.logger.Warn("outbound email rejected: recipient blacklisted",
			zap.String("org_id", input.OrgID),
			zap.String("recipient", sanitized.To),
		)
		return outcome, ErrRecipientBlacklisted
	}

	// 3. 垃圾邮件启发式评分
	s.metrics.SpamChecksTotal.Inc()
	spam := s.scorer.DetectSpamContent(sanitized.Subject, sanitized.Body)
	outcome.Spam = spam
	if spam.IsSpam {
		s.metrics.SpamFlagged.Inc()
		if s.cfg.Spam.BlockOnFlag {
			s.metrics.SendsTotal.WithLabelValues("rejected_spam").Inc()
			s.logger.Warn("outbound email rejected: spam score over threshold",
				zap.String("org_id", input.OrgID),
				zap.Float64("score", spam.Score),
				zap.Strings("reasons", spam.Reasons),
			)
			return outcome, fmt.Errorf("%w (score %.0f)", ErrSpamBlocked, spam.Score)
		}
		s.logger.Info("outbound email flagged as spam but allowed by policy",
			zap.String("org_id", input.OrgID),
			zap.Float64("score", spam.Score),
		)
	}

	// 4. 速率检查：拒绝是结构化结论，不是错误
	decision, err := s.tracker.CheckRateLimit(ctx, input.OrgID, sanitized.From, sanitized.To, limits)
	if err != nil {
		s.metrics.RecordError("storage_error", "ratelimit")
		return outcome, fmt.Errorf("rate limit check: %w", err)
	}
	outcome.RateLimit = decision
	s.metrics.RecordRateLimitCheck(decision.Allowed, DenialCause(decision.Reason))
	if !decision.Allowed {
		if strings.Contains(decision.Reason, "limit reached") {
			s.metrics.CooldownTransitions.Inc()
			s.alerts.NotifyCooldown(input.OrgID, sanitized.From, decision.Reason)
		}
		s.metrics.SendsTotal.WithLabelValues("rejected_ratelimit").Inc()
		return outcome, nil
	}

	// 5. 投递
	if err := s.transport.Deliver(ctx, sanitized); err != nil {
		s.metrics.SendsTotal.WithLabelValues("transport_error").Inc()
		s.metrics.RecordError("transport_error", "outbound")
		s.logger.Error("delivery transport failed",
			zap.String("org_id", input.OrgID),
			zap.Error(err),
		)
		return outcome, fmt.Errorf("%w: %v", ErrTransportFailed, err)
	}

	// 6. 只在投递成功后记录发送
	if err := s.tracker.RecordEmailSent(ctx, input.OrgID, sanitized.From, sanitized.To, input.UserID); err != nil {
		// 投递已完成，记录失败只影响后续计数，不回滚投递
		s.metrics.RecordError("storage_error", "ratelimit")
		s.logger.Error("failed to record sent email",
			zap.String("org_id", input.OrgID),
			zap.Error(err),
		)
	}

	outcome.Delivered = true
	outcome.MessageID = uuid.NewString()
	s.metrics.SendsTotal.WithLabelValues("delivered").Inc()
	s.logger.Info("outbound email delivered",
		zap.String("org_id", input.OrgID),
		zap.String("recipient", sanitized.To),
	)

	return outcome, nil
}

// recordValidation 汇总发现并写入校验指标
func (s *OutboundService) recordValidation(verdict domain.ValidationVerdict, duration time.Duration) {
	byCategory := make(map[string]map[string]int)
	for _, f := range verdict.Findings {
		cat := string(f.Category)
		if byCategory[cat] == nil {
			byCategory[cat] = make(map[string]int)
		}
		byCategory[cat][f.Severity.String()]++
	}
	s.metrics.RecordValidation(verdict.RiskLevel.String(), byCategory, duration)
}

// notifyCriticalFindings 对关键级发现逐类触发告警
func (s *OutboundService) notifyCriticalFindings(orgID, sender string, findings []domain.ThreatFinding) {
	seen := make(map[domain.ThreatCategory]bool)
	for _, f := range findings {
		if f.Severity != domain.SeverityCritical || seen[f.Category] {
			continue
		}
		seen[f.Category] = true
		s.alerts.NotifyCriticalThreat(orgID, sender, string(f.Category))
	}
}

// DenialCause 将拒绝原因归类为指标标签（cooldown/window/burst）
func DenialCause(reason string) string {
	switch {
	case reason == "":
		return ""
	case strings.HasPrefix(reason, "sender in cooldown"):
		return "cooldown"
	case strings.Contains(reason, "limit reached"):
		return "window"
	default:
		return "burst"
	}
}
