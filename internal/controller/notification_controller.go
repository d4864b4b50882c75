package controller

import (
	"edu_backend/internal/service"
	"edu_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type NotificationController struct {
	Service *service.NotificationService
	Hub     *service.NotificationHub
}

func NewNotificationController(svc *service.NotificationService, hub *service.NotificationHub) *NotificationController {
	return &NotificationController{Service: svc, Hub: hub}
}

// @Summary 我的通知
// @Tags 通知
// @Produce json
// @Security BearerAuth
// @Param unread query bool false "只看未读"
// @Param page query int false "页码" default(1)
// @Param limit query int false "每页数量" default(10)
// @Success 200 {object} util.Response{data=object}
// @Router /api/notifications [get]
func (c *NotificationController) List(ctx *gin.Context) {
	user, ok := caller(ctx)
	if !ok {
		return
	}
	page, limit := util.Pagination(ctx)
	unreadOnly := ctx.Query("unread") == "true"

	items, total, err := c.Service.List(ctx.Request.Context(), user.UserID, unreadOnly, page, limit)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	unread, err := c.Service.UnreadCount(ctx.Request.Context(), user.UserID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{
		"items":  items,
		"total":  total,
		"page":   page,
		"limit":  limit,
		"unread": unread,
	})
}

// @Summary 标记通知已读
// @Tags 通知
// @Produce json
// @Security BearerAuth
// @Param id path int true "通知ID"
// @Success 200 {object} util.Response
// @Router /api/notifications/{id}/read [patch]
func (c *NotificationController) MarkRead(ctx *gin.Context) {
	user, ok := caller(ctx)
	if !ok {
		return
	}
	id, err := util.ParamID(ctx, "id")
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	if err := c.Service.MarkRead(ctx.Request.Context(), user.UserID, id); err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"id": id})
}

// @Summary 全部标记已读
// @Tags 通知
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response
// @Router /api/notifications/read-all [patch]
func (c *NotificationController) MarkAllRead(ctx *gin.Context) {
	user, ok := caller(ctx)
	if !ok {
		return
	}

	rows, err := c.Service.MarkAllRead(ctx.Request.Context(), user.UserID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"updated": rows})
}

// HandleWS 通知推送连接，token 通过 query 传递
// @Summary 通知 WebSocket
// @Tags 通知
// @Param token query string true "JWT"
// @Router /api/notifications/ws [get]
func (c *NotificationController) HandleWS(ctx *gin.Context) {
	user, ok := caller(ctx)
	if !ok {
		return
	}
	service.ServeNotificationWs(c.Hub, ctx.Writer, ctx.Request, user.UserID)
}
