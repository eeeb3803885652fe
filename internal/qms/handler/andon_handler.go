package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/bitfantasy/nimo-qms/internal/qms/service"
	"github.com/bitfantasy/nimo-qms/internal/shared/feishu"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AndonHandler 安灯告警处理器
type AndonHandler struct {
	svc               *service.AndonService
	verificationToken string
	logger            *zap.Logger
}

func NewAndonHandler(svc *service.AndonService, verificationToken string, logger *zap.Logger) *AndonHandler {
	return &AndonHandler{svc: svc, verificationToken: verificationToken, logger: logger}
}

// ListAlerts 告警列表
// GET /api/v1/qms/andon/alerts?line_id=xxx&status=active&level=3
func (h *AndonHandler) ListAlerts(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := map[string]string{
		"line_id": c.Query("line_id"),
		"status":  c.Query("status"),
		"level":   c.Query("level"),
	}

	items, total, err := h.svc.List(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		InternalError(c, "获取告警列表失败: "+err.Error())
		return
	}
	Paginated(c, items, page, pageSize, total)
}

// GetAlert 告警详情
// GET /api/v1/qms/andon/alerts/:id
func (h *AndonHandler) GetAlert(c *gin.Context) {
	ev, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err, "告警")
		return
	}
	Success(c, ev)
}

// GetPolicy 当前分级规则，高级别在前
// GET /api/v1/qms/andon/policy
func (h *AndonHandler) GetPolicy(c *gin.Context) {
	Success(c, h.svc.Policy().Rules())
}

// Evaluate 手动评估并创建告警
// POST /api/v1/qms/andon/evaluate
func (h *AndonHandler) Evaluate(c *gin.Context) {
	var req service.EvaluateRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.svc.Evaluate(c.Request.Context(), GetUserID(c), &req)
	if err != nil {
		RespondError(c, err, "评估失败")
		return
	}
	if result.Alert != nil && !result.Duplicate {
		Created(c, result)
		return
	}
	Success(c, result)
}

// Acknowledge 确认告警
// POST /api/v1/qms/andon/alerts/:id/acknowledge
func (h *AndonHandler) Acknowledge(c *gin.Context) {
	ev, err := h.svc.Acknowledge(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		RespondError(c, err, "确认告警失败")
		return
	}
	Success(c, ev)
}

// Resolve 关闭告警
// POST /api/v1/qms/andon/alerts/:id/resolve
func (h *AndonHandler) Resolve(c *gin.Context) {
	var req service.ResolveRequest
	if !bindJSON(c, &req) {
		return
	}

	ev, err := h.svc.Resolve(c.Request.Context(), c.Param("id"), GetUserID(c), &req)
	if err != nil {
		RespondError(c, err, "关闭告警失败")
		return
	}
	Success(c, ev)
}

func toast(c *gin.Context, kind, content string) {
	c.JSON(http.StatusOK, gin.H{"toast": gin.H{"type": kind, "content": content}})
}

// CardCallback 飞书卡片按钮回调，确认按钮直接确认告警
// POST /api/v1/qms/feishu/card-callback (无需登录，校验 verification token)
func (h *AndonHandler) CardCallback(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": -1, "msg": "读取请求体失败"})
		return
	}

	challenge, action, err := feishu.ParseCardCallback(body, h.verificationToken)
	if errors.Is(err, feishu.ErrInvalidCallbackToken) {
		c.JSON(http.StatusUnauthorized, gin.H{"code": -1, "msg": "token校验失败"})
		return
	}
	if err != nil {
		h.logger.Warn("parse feishu card callback failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"code": -1, "msg": err.Error()})
		return
	}
	if challenge != "" {
		c.JSON(http.StatusOK, gin.H{"challenge": challenge})
		return
	}

	if action.Action != feishu.CardActionAcknowledge || action.AlertID == "" {
		toast(c, "info", "未知操作")
		return
	}
	if _, err := h.svc.Acknowledge(c.Request.Context(), action.AlertID, action.OperatorOpenID); err != nil {
		h.logger.Warn("acknowledge from feishu card failed",
			zap.String("alert_id", action.AlertID),
			zap.String("open_id", action.OperatorOpenID),
			zap.Error(err))
		toast(c, "error", "确认失败: "+err.Error())
		return
	}
	toast(c, "success", "已确认响应")
}
