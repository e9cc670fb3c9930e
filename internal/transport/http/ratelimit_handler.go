package httptransport

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailguard/backend/internal/config"
	"mailguard/backend/internal/domain"
	"mailguard/backend/internal/monitoring"
	"mailguard/backend/internal/ratelimit"
	"mailguard/backend/internal/service"
)

// RateLimitHandler 速率限制与发送API处理器
type RateLimitHandler struct {
	tracker  *ratelimit.Tracker
	outbound *service.OutboundService
	metrics  *monitoring.Metrics
	cfg      *config.Config
	logger   *zap.Logger
}

// NewRateLimitHandler 创建速率限制处理器
func NewRateLimitHandler(
	tracker *ratelimit.Tracker,
	outbound *service.OutboundService,
	metrics *monitoring.Metrics,
	cfg *config.Config,
	logger *zap.Logger,
) *RateLimitHandler {
	return &RateLimitHandler{
		tracker:  tracker,
		outbound: outbound,
		metrics:  metrics,
		cfg:      cfg,
		logger:   logger,
	}
}

// limitsPayload 请求中的可选限额覆盖，缺省字段沿用服务端配置
type limitsPayload struct {
	PerMinute      *int `json:"perMinute"`
	PerHour        *int `json:"perHour"`
	PerDay         *int `json:"perDay"`
	CooldownSec    *int `json:"cooldownSeconds"`
	BurstWindowSec *int `json:"burstWindowSeconds"`
	BurstThreshold *int `json:"burstThreshold"`
}

func (p *limitsPayload) apply(base domain.RateLimitConfig) domain.RateLimitConfig {
	if p == nil {
		return base
	}
	if p.PerMinute != nil {
		base.PerMinute = *p.PerMinute
	}
	if p.PerHour != nil {
		base.PerHour = *p.PerHour
	}
	if p.PerDay != nil {
		base.PerDay = *p.PerDay
	}
	if p.CooldownSec != nil {
		base.CooldownPeriod = time.Duration(*p.CooldownSec) * time.Second
	}
	if p.BurstWindowSec != nil {
		base.BurstWindow = time.Duration(*p.BurstWindowSec) * time.Second
	}
	if p.BurstThreshold != nil {
		base.BurstThreshold = *p.BurstThreshold
	}
	return base.Normalize()
}

// rateLimitCheckRequest 速率检查请求
type rateLimitCheckRequest struct {
	OrgID     string         `json:"organizationId" binding:"required"`
	Sender    string         `json:"senderEmail" binding:"required"`
	Recipient string         `json:"recipientEmail" binding:"required"`
	Limits    *limitsPayload `json:"limits"`
}

// CheckRateLimit 检查发送方当前是否允许发送
//
// 只读判断，不记录发送；拒绝同样返回 200，结论在响应体中。
//
// POST /v1/ratelimit/check
func (h *RateLimitHandler) CheckRateLimit(c *gin.Context) {
	var req rateLimitCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	limits := req.Limits.apply(h.cfg.RateLimit.Config())
	decision, err := h.tracker.CheckRateLimit(c.Request.Context(), req.OrgID, req.Sender, req.Recipient, limits)
	if err != nil {
		h.logger.Error("rate limit check failed", zap.Error(err))
		InternalError(c, MsgRateLimitCheckFailed)
		return
	}
	h.metrics.RecordRateLimitCheck(decision.Allowed, service.DenialCause(decision.Reason))

	Success(c, decision)
}

// rateLimitRecordRequest 记录发送请求
type rateLimitRecordRequest struct {
	OrgID     string `json:"organizationId" binding:"required"`
	Sender    string `json:"senderEmail" binding:"required"`
	Recipient string `json:"recipientEmail" binding:"required"`
	UserID    string `json:"userId"`
}

// RecordEmailSent 记录一次已完成的发送
//
// 供自带投递通道的调用方在传输完成后回调。
//
// POST /v1/ratelimit/record
func (h *RateLimitHandler) RecordEmailSent(c *gin.Context) {
	var req rateLimitRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	if err := h.tracker.RecordEmailSent(c.Request.Context(), req.OrgID, req.Sender, req.Recipient, req.UserID); err != nil {
		h.logger.Error("record email sent failed", zap.Error(err))
		InternalError(c, MsgRateLimitRecordFailed)
		return
	}

	SuccessWithMsg(c, "已记录", nil)
}

// sendRequest 完整发送请求
type sendRequest struct {
	OrgID    string          `json:"organizationId" binding:"required"`
	UserID   string          `json:"userId"`
	Envelope envelopePayload `json:"envelope" binding:"required"`
	Options  *optionsPayload `json:"options"`
	Limits   *limitsPayload  `json:"limits"`
}

// Send 执行完整的出站处理链路
//
// POST /v1/send
func (h *RateLimitHandler) Send(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	input := service.SendInput{
		OrgID:    req.OrgID,
		UserID:   req.UserID,
		Envelope: req.Envelope.toEnvelope(),
	}
	if req.Options != nil {
		opts := req.Options.apply(h.cfg.Security.Options())
		input.Options = &opts
	}
	if req.Limits != nil {
		limits := req.Limits.apply(h.cfg.RateLimit.Config())
		input.Limits = &limits
	}

	outcome, err := h.outbound.Send(c.Request.Context(), input)
	switch {
	case err == nil && outcome.Delivered:
		Success(c, outcome)
	case err == nil:
		// 速率拒绝：结构化结论，不是错误
		TooManyRequests(c, MsgRateLimited, outcome)
	case errors.Is(err, service.ErrValidationRejected):
		UnprocessableEntity(c, GetErrorMessage(service.ErrValidationRejected), outcome)
	case errors.Is(err, service.ErrRecipientBlacklisted):
		Forbidden(c, GetErrorMessage(service.ErrRecipientBlacklisted))
	case errors.Is(err, service.ErrSpamBlocked):
		UnprocessableEntity(c, GetErrorMessage(service.ErrSpamBlocked), outcome)
	case errors.Is(err, service.ErrTransportFailed):
		InternalError(c, GetErrorMessage(service.ErrTransportFailed))
	default:
		h.logger.Error("send failed", zap.Error(err))
		InternalError(c, MsgSendFailed)
	}
}
