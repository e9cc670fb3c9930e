package httptransport

import (
	"time"

	"github.com/gin-gonic/gin"

	"mailguard/backend/internal/config"
	"mailguard/backend/internal/domain"
	"mailguard/backend/internal/monitoring"
	"mailguard/backend/internal/security"
)

// ValidateHandler 内容校验API处理器
type ValidateHandler struct {
	gate      *security.EmailValidationGate
	scorer    *security.SpamScorer
	blacklist *security.BlacklistChecker
	metrics   *monitoring.Metrics
	cfg       *config.Config
}

// NewValidateHandler 创建内容校验处理器
func NewValidateHandler(
	gate *security.EmailValidationGate,
	scorer *security.SpamScorer,
	blacklist *security.BlacklistChecker,
	metrics *monitoring.Metrics,
	cfg *config.Config,
) *ValidateHandler {
	return &ValidateHandler{
		gate:      gate,
		scorer:    scorer,
		blacklist: blacklist,
		metrics:   metrics,
		cfg:       cfg,
	}
}

// envelopePayload 请求中的信封字段
type envelopePayload struct {
	To             string `json:"to" binding:"required"`
	From           string `json:"from"`
	Subject        string `json:"subject"`
	Body           string `json:"body"`
	AttachmentName string `json:"attachmentName"`
}

func (p envelopePayload) toEnvelope() domain.EmailEnvelope {
	return domain.EmailEnvelope{
		To:             p.To,
		From:           p.From,
		Subject:        p.Subject,
		Body:           p.Body,
		AttachmentName: p.AttachmentName,
	}
}

// optionsPayload 请求中的可选校验选项，缺省字段沿用服务端配置
type optionsPayload struct {
	AllowHTML        *bool `json:"allowHtml"`
	MaxLength        *int  `json:"maxLength"`
	StrictMode       *bool `json:"strictMode"`
	CheckPhishing    *bool `json:"checkPhishing"`
	AllowAttachments *bool `json:"allowAttachments"`
}

func (p *optionsPayload) apply(base domain.ValidationOptions) domain.ValidationOptions {
	if p == nil {
		return base
	}
	if p.AllowHTML != nil {
		base.AllowHTML = *p.AllowHTML
	}
	if p.MaxLength != nil {
		base.MaxLength = *p.MaxLength
	}
	if p.StrictMode != nil {
		base.StrictMode = *p.StrictMode
	}
	if p.CheckPhishing != nil {
		base.CheckPhishing = *p.CheckPhishing
	}
	if p.AllowAttachments != nil {
		base.AllowAttachments = *p.AllowAttachments
	}
	return base
}

// validateRequest 整封校验请求
type validateRequest struct {
	Envelope envelopePayload `json:"envelope" binding:"required"`
	Options  *optionsPayload `json:"options"`
}

// ValidateEmail 校验整封邮件
//
// POST /v1/validate
func (h *ValidateHandler) ValidateEmail(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	opts := req.Options.apply(h.cfg.Security.Options())
	start := time.Now()
	verdict := h.gate.ValidateFullEmail(req.Envelope.toEnvelope(), opts)
	h.recordVerdict(verdict, time.Since(start))

	Success(c, verdict)
}

// validateAddressRequest 单地址校验请求
type validateAddressRequest struct {
	Address string `json:"address" binding:"required"`
}

// ValidateAddress 校验单个邮箱地址
//
// POST /v1/validate/address
func (h *ValidateHandler) ValidateAddress(c *gin.Context) {
	var req validateAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	start := time.Now()
	verdict := h.gate.ValidateEmailAddress(req.Address)
	h.recordVerdict(verdict, time.Since(start))

	Success(c, verdict)
}

// spamCheckRequest 垃圾邮件检查请求
type spamCheckRequest struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// CheckSpam 对主题与正文做垃圾邮件启发式评分
//
// POST /v1/spam/check
func (h *ValidateHandler) CheckSpam(c *gin.Context) {
	var req spamCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	h.metrics.SpamChecksTotal.Inc()
	verdict := h.scorer.DetectSpamContent(req.Subject, req.Body)
	if verdict.IsSpam {
		h.metrics.SpamFlagged.Inc()
	}

	Success(c, verdict)
}

// CheckBlacklist 检查地址是否在封禁名单
//
// GET /v1/blacklist/:email
func (h *ValidateHandler) CheckBlacklist(c *gin.Context) {
	email := c.Param("email")
	if email == "" {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	blacklisted := h.blacklist.IsEmailBlacklisted(email)
	if blacklisted {
		h.metrics.BlacklistHits.Inc()
	}

	Success(c, gin.H{
		"email":       email,
		"blacklisted": blacklisted,
	})
}

// recordVerdict 汇总发现并写入校验指标
func (h *ValidateHandler) recordVerdict(verdict domain.ValidationVerdict, duration time.Duration) {
	byCategory := make(map[string]map[string]int)
	for _, f := range verdict.Findings {
		cat := string(f.Category)
		if byCategory[cat] == nil {
			byCategory[cat] = make(map[string]int)
		}
		byCategory[cat][f.Severity.String()]++
	}
	h.metrics.RecordValidation(verdict.RiskLevel.String(), byCategory, duration)
}
