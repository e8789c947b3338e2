package httptransport

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailwatch/internal/config"
	"mailwatch/internal/domain"
	"mailwatch/internal/service"
	"mailwatch/internal/storage"
)

// Handler 聚合所有 HTTP 处理逻辑。
type Handler struct {
	monitor *service.MonitorService
	stuck   *service.StuckService
	stats   *service.StatsService
	cleanup *service.CleanupService
	repo    storage.EmailLogRepository
	cfg     *config.Config
	log     *zap.Logger
}

// listEmails godoc
// @Summary 邮件记录列表
// @Description 分页查询邮件生命周期记录，支持状态过滤与收件人/发件人/主题搜索
// @Tags 邮件记录
// @Accept json
// @Produce json
// @Param status query string false "状态过滤（sending/sent/delivered/failed/bounced）"
// @Param search query string false "对收件人/发件人/主题的子串搜索"
// @Param page query int false "页码（默认1）"
// @Param pageSize query int false "每页数量（默认20，最大100）"
// @Success 200 {object} Response{data=storage.ListResult}
// @Failure 400 {object} Response "请求参数错误"
// @Failure 500 {object} Response "服务器内部错误"
// @Security BearerAuth
// @Router /v1/emails [get]
func (h *Handler) listEmails(c *gin.Context) {
	filter := storage.ListFilter{
		Search:   c.Query("search"),
		Page:     1,
		PageSize: 20,
	}

	if status := c.Query("status"); status != "" {
		s := domain.Status(status)
		if !s.IsValid() {
			BadRequest(c, "无效的状态过滤条件")
			return
		}
		filter.Status = s
	}
	if page, err := strconv.Atoi(c.Query("page")); err == nil && page > 0 {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.Query("pageSize")); err == nil && size > 0 {
		if size > 100 {
			size = 100
		}
		filter.PageSize = size
	}

	result, err := h.repo.List(filter)
	if err != nil {
		h.log.Error("failed to list email logs", zap.Error(err))
		InternalError(c, MsgLogListFailed)
		return
	}

	Success(c, result)
}

// recentEmails godoc
// @Summary 最近的邮件记录
// @Description 按创建时间倒序返回最近的 N 条记录
// @Tags 邮件记录
// @Accept json
// @Produce json
// @Param limit query int false "记录数量（默认10，最大100）"
// @Success 200 {object} Response{data=[]domain.EmailLog}
// @Failure 500 {object} Response "服务器内部错误"
// @Security BearerAuth
// @Router /v1/emails/recent [get]
func (h *Handler) recentEmails(c *gin.Context) {
	limit := 10
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 {
		limit = l
	}
	if limit > 100 {
		limit = 100
	}

	logs, err := h.repo.Recent(limit)
	if err != nil {
		h.log.Error("failed to fetch recent email logs", zap.Error(err))
		InternalError(c, MsgLogListFailed)
		return
	}

	Success(c, logs)
}

// getEmail godoc
// @Summary 邮件记录详情
// @Description 按 ID 查询单条邮件生命周期记录
// @Tags 邮件记录
// @Accept json
// @Produce json
// @Param id path string true "记录 ID"
// @Success 200 {object} Response{data=domain.EmailLog}
// @Failure 404 {object} Response "记录不存在"
// @Failure 500 {object} Response "服务器内部错误"
// @Security BearerAuth
// @Router /v1/emails/{id} [get]
func (h *Handler) getEmail(c *gin.Context) {
	log, err := h.repo.GetByID(c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrEmailLogNotFound) {
			NotFound(c, MsgLogNotFound)
			return
		}
		h.log.Error("failed to get email log", zap.Error(err))
		InternalError(c, MsgLogGetFailed)
		return
	}

	Success(c, log)
}

// deleteEmail godoc
// @Summary 删除邮件记录
// @Description 按 ID 删除单条记录；记录不存在时返回 404
// @Tags 邮件记录
// @Accept json
// @Produce json
// @Param id path string true "记录 ID"
// @Success 200 {object} Response
// @Failure 404 {object} Response "记录不存在"
// @Failure 500 {object} Response "服务器内部错误"
// @Security BearerAuth
// @Router /v1/emails/{id} [delete]
func (h *Handler) deleteEmail(c *gin.Context) {
	if err := h.monitor.Delete(c.Param("id")); err != nil {
		if errors.Is(err, storage.ErrEmailLogNotFound) {
			NotFound(c, MsgLogNotFound)
			return
		}
		h.log.Error("failed to delete email log", zap.Error(err))
		InternalError(c, MsgLogDeleteFailed)
		return
	}

	SuccessWithMsg(c, "记录已删除", nil)
}

// resendEmail godoc
// @Summary 重发邮件
// @Description 将失败记录重置回发送中状态，由外部发送子系统完成实际重发
// @Tags 邮件记录
// @Accept json
// @Produce json
// @Param id path string true "记录 ID"
// @Success 200 {object} Response{data=domain.EmailLog}
// @Failure 404 {object} Response "记录不存在"
// @Failure 422 {object} Response "仅失败的邮件可以重发"
// @Failure 500 {object} Response "服务器内部错误"
// @Security BearerAuth
// @Router /v1/emails/{id}/resend [post]
func (h *Handler) resendEmail(c *gin.Context) {
	log, err := h.monitor.Resend(c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrEmailLogNotFound):
			NotFound(c, MsgLogNotFound)
		case errors.Is(err, service.ErrNotResendable):
			UnprocessableEntity(c, GetErrorMessage(err))
		default:
			h.log.Error("failed to resend email", zap.Error(err))
			InternalError(c, MsgResendFailed)
		}
		return
	}

	SuccessWithMsg(c, "邮件已重新排队", log)
}

// markEmailSent godoc
// @Summary 人工标记为已发送
// @Description 将发送中的记录标记为已发送；仅发送中的记录可操作
// @Tags 邮件记录
// @Accept json
// @Produce json
// @Param id path string true "记录 ID"
// @Success 200 {object} Response{data=domain.EmailLog}
// @Failure 404 {object} Response "记录不存在"
// @Failure 422 {object} Response "仅发送中的邮件可以标记"
// @Failure 500 {object} Response "服务器内部错误"
// @Security BearerAuth
// @Router /v1/emails/{id}/mark-sent [post]
func (h *Handler) markEmailSent(c *gin.Context) {
	log, err := h.monitor.MarkSent(c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrEmailLogNotFound):
			NotFound(c, MsgLogNotFound)
		case errors.Is(err, service.ErrNotPending):
			UnprocessableEntity(c, GetErrorMessage(err))
		default:
			h.log.Error("failed to mark email as sent", zap.Error(err))
			InternalError(c, MsgMarkSentFailed)
		}
		return
	}

	SuccessWithMsg(c, "已标记为发送成功", log)
}

type fixStuckResponse struct {
	Fixed int `json:"fixed"` // 本次修复的记录数
}

// fixStuckEmails godoc
// @Summary 修复卡死邮件
// @Description 立即扫描并将超时停留在发送中状态的记录标记为失败
// @Tags 邮件记录
// @Accept json
// @Produce json
// @Success 200 {object} Response{data=fixStuckResponse}
// @Failure 500 {object} Response "服务器内部错误"
// @Security BearerAuth
// @Router /v1/emails/fix-stuck [post]
func (h *Handler) fixStuckEmails(c *gin.Context) {
	fixed, err := h.stuck.Sweep(h.cfg.Monitor.StuckTimeout)
	if err != nil {
		h.log.Error("failed to fix stuck emails", zap.Error(err))
		InternalError(c, MsgFixStuckFailed)
		return
	}

	Success(c, fixStuckResponse{Fixed: fixed})
}

// getStatistics godoc
// @Summary 发送统计
// @Description 返回最近 N 天窗口内的发送统计与按日分组计数
// @Tags 统计
// @Accept json
// @Produce json
// @Param days query int false "统计窗口天数（默认30）"
// @Success 200 {object} Response{data=domain.Statistics}
// @Failure 500 {object} Response "服务器内部错误"
// @Security BearerAuth
// @Router /v1/statistics [get]
func (h *Handler) getStatistics(c *gin.Context) {
	days := 30
	if d, err := strconv.Atoi(c.Query("days")); err == nil && d > 0 {
		days = d
	}

	stats, err := h.stats.Statistics(days)
	if err != nil {
		h.log.Error("failed to compute statistics", zap.Error(err))
		InternalError(c, MsgStatisticsFailed)
		return
	}

	Success(c, stats)
}

type cleanupRequest struct {
	Days   int  `json:"days"`    // 保留天数，0 使用配置默认值
	DryRun bool `json:"dry_run"` // 仅统计不删除
}

type cleanupResponse struct {
	Deleted int  `json:"deleted"` // 已删除（或将被删除）的记录数
	DryRun  bool `json:"dryRun"`
}

// cleanupEmails godoc
// @Summary 清理过期记录
// @Description 删除保留期之外的记录；dry_run 模式只返回将被删除的数量
// @Tags 管理
// @Accept json
// @Produce json
// @Param request body cleanupRequest true "清理参数"
// @Success 200 {object} Response{data=cleanupResponse}
// @Failure 400 {object} Response "请求参数错误"
// @Failure 500 {object} Response "服务器内部错误"
// @Security BearerAuth
// @Router /v1/admin/cleanup [post]
func (h *Handler) cleanupEmails(c *gin.Context) {
	var req cleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	deleted, err := h.cleanup.Cleanup(req.Days, req.DryRun)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRetention) {
			BadRequest(c, GetErrorMessage(err))
			return
		}
		h.log.Error("failed to clean up email logs", zap.Error(err))
		InternalError(c, MsgCleanupFailed)
		return
	}

	Success(c, cleanupResponse{Deleted: deleted, DryRun: req.DryRun})
}
