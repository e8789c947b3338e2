package httptransport

import (
	"github.com/gin-gonic/gin"

	"mailwatch/internal/domain"
	"mailwatch/internal/service"
)

// EventsHandler 接收发送子系统的事件通知
//
// 追踪失败不能影响发送路径：入口始终返回 202，
// 内部错误由 SilentSink 吞掉并记录日志。
type EventsHandler struct {
	sink service.MailEventSink
}

// NewEventsHandler 创建事件入口处理器
func NewEventsHandler(sink service.MailEventSink) *EventsHandler {
	return &EventsHandler{sink: sink}
}

type sendingEventRequest struct {
	MessageID string   `json:"message_id"`
	To        []string `json:"to" binding:"required"`
	Cc        []string `json:"cc"`
	Bcc       []string `json:"bcc"`
	From      []string `json:"from" binding:"required"`
	Subject   string   `json:"subject"`
	Body      string   `json:"body"`
	UserID    string   `json:"user_id"`
	IPAddress string   `json:"ip_address"`
	UserAgent string   `json:"user_agent"`
}

type completionEventRequest struct {
	MessageID string   `json:"message_id"`
	To        []string `json:"to"`
	Cc        []string `json:"cc"`
	Bcc       []string `json:"bcc"`
	From      []string `json:"from"`
	Subject   string   `json:"subject"`
	Error     string   `json:"error"`
}

func (r *completionEventRequest) message() domain.OutgoingMessage {
	return domain.OutgoingMessage{
		MessageID: r.MessageID,
		To:        r.To,
		Cc:        r.Cc,
		Bcc:       r.Bcc,
		From:      r.From,
		Subject:   r.Subject,
	}
}

// handleSending godoc
// @Summary 发送开始事件
// @Description 发送子系统在每次发送开始时调用，创建一条生命周期记录；始终返回 202
// @Tags 事件
// @Accept json
// @Produce json
// @Param event body sendingEventRequest true "事件内容"
// @Success 202 {object} Response "已受理"
// @Failure 400 {object} Response "请求参数错误"
// @Router /v1/events/sending [post]
func (h *EventsHandler) handleSending(c *gin.Context) {
	var req sendingEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	msg := domain.OutgoingMessage{
		MessageID: req.MessageID,
		To:        req.To,
		Cc:        req.Cc,
		Bcc:       req.Bcc,
		From:      req.From,
		Subject:   req.Subject,
		Body:      req.Body,
	}
	reqCtx := domain.RequestContext{
		UserID:    req.UserID,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
	}

	h.sink.HandleSending(msg, reqCtx)
	Accepted(c)
}

// handleSent godoc
// @Summary 发送成功事件
// @Description 发送子系统在发送成功后调用，推进对应记录到已发送；始终返回 202
// @Tags 事件
// @Accept json
// @Produce json
// @Param event body completionEventRequest true "事件内容"
// @Success 202 {object} Response "已受理"
// @Failure 400 {object} Response "请求参数错误"
// @Router /v1/events/sent [post]
func (h *EventsHandler) handleSent(c *gin.Context) {
	var req completionEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	h.sink.HandleSent(req.message())
	Accepted(c)
}

// handleFailed godoc
// @Summary 发送失败事件
// @Description 发送子系统在发送失败后调用，推进对应记录到失败并归一化错误文案；始终返回 202
// @Tags 事件
// @Accept json
// @Produce json
// @Param event body completionEventRequest true "事件内容"
// @Success 202 {object} Response "已受理"
// @Failure 400 {object} Response "请求参数错误"
// @Router /v1/events/failed [post]
func (h *EventsHandler) handleFailed(c *gin.Context) {
	var req completionEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	h.sink.HandleFailed(req.message(), req.Error)
	Accepted(c)
}
