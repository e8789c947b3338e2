package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailwatch/internal/domain"
	"mailwatch/internal/service"
	"mailwatch/internal/storage"
)

// WebhookHandler 接收投递服务商的状态回调
//
// 响应格式遵循服务商约定：成功固定返回 {"status":"success"}，
// 不使用管理 API 的统一响应结构。
type WebhookHandler struct {
	webhook *service.WebhookService
	log     *zap.Logger
}

// NewWebhookHandler 创建回调处理器
func NewWebhookHandler(webhook *service.WebhookService, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		webhook: webhook,
		log:     log.Named("webhook"),
	}
}

// HandleStatusUpdate godoc
// @Summary 投递状态回调
// @Description 接收服务商的状态更新（delivered/bounced/failed），签名校验由中间件完成
// @Tags 回调
// @Accept json
// @Produce json
// @Param update body domain.StatusUpdate true "状态更新"
// @Success 200 {object} map[string]string "处理成功"
// @Failure 400 {object} map[string]string "载荷格式或字段错误"
// @Failure 401 {object} map[string]string "签名无效"
// @Failure 403 {object} map[string]string "回调未启用"
// @Failure 404 {object} map[string]string "未知的 message_id"
// @Failure 500 {object} map[string]string "处理失败"
// @Router /email-monitor/webhook [post]
func (h *WebhookHandler) HandleStatusUpdate(c *gin.Context) {
	var update domain.StatusUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	if err := h.webhook.ProcessStatusUpdate(update); err != nil {
		switch {
		case errors.Is(err, service.ErrMissingFields), errors.Is(err, service.ErrUnknownStatus):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, storage.ErrEmailLogNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown message_id"})
		case errors.Is(err, service.ErrTerminalStatus):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			h.log.Error("webhook processing failed",
				zap.String("message_id", update.MessageID),
				zap.String("status", update.Status),
				zap.Error(err),
			)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}
