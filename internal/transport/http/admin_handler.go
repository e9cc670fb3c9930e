package httptransport

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailguard/backend/internal/monitoring"
	"mailguard/backend/internal/ratelimit"
)

// AdminHandler 管理API处理器
type AdminHandler struct {
	tracker *ratelimit.Tracker
	alerts  *monitoring.AlertManager
	logger  *zap.Logger
}

// NewAdminHandler 创建管理处理器
func NewAdminHandler(tracker *ratelimit.Tracker, alerts *monitoring.AlertManager, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		tracker: tracker,
		alerts:  alerts,
		logger:  logger,
	}
}

// resetRequest 重置速率状态请求
type resetRequest struct {
	OrgID  string `json:"organizationId" binding:"required"`
	Sender string `json:"senderEmail" binding:"required"`
}

// ResetUserLimits 清空发送方的全部速率状态（计数与冷却）
//
// POST /v1/admin/ratelimit/reset
func (h *AdminHandler) ResetUserLimits(c *gin.Context) {
	var req resetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	if err := h.tracker.ResetUserLimits(c.Request.Context(), req.OrgID, req.Sender); err != nil {
		h.logger.Error("reset user limits failed",
			zap.String("org_id", req.OrgID),
			zap.Error(err),
		)
		InternalError(c, MsgRateLimitResetFailed)
		return
	}

	h.logger.Info("rate limit state reset by admin",
		zap.String("org_id", req.OrgID),
		zap.String("sender", req.Sender),
	)

	SuccessWithMsg(c, "已重置", nil)
}

// GetOrganizationStats 获取组织的聚合发送统计
//
// GET /v1/admin/orgs/:orgId/stats
func (h *AdminHandler) GetOrganizationStats(c *gin.Context) {
	orgID := c.Param("orgId")
	if orgID == "" {
		BadRequest(c, MsgMissingOrgID)
		return
	}

	stats, err := h.tracker.GetOrganizationStats(c.Request.Context(), orgID)
	if err != nil {
		h.logger.Error("get organization stats failed",
			zap.String("org_id", orgID),
			zap.Error(err),
		)
		InternalError(c, MsgStatisticsGetFailed)
		return
	}

	Success(c, stats)
}

// ListActiveAlerts 获取当前活跃告警
//
// GET /v1/admin/alerts
func (h *AdminHandler) ListActiveAlerts(c *gin.Context) {
	Success(c, h.alerts.GetActiveAlerts())
}
