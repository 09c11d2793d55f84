package controller

import (
	"mylms_backend/internal/service"
	"mylms_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AdminController struct {
	StatsService        *service.StatsService
	NotificationService *service.NotificationService
}

func NewAdminController(statsService *service.StatsService, notificationService *service.NotificationService) *AdminController {
	return &AdminController{StatsService: statsService, NotificationService: notificationService}
}

// Stats godoc
// @Summary 系统统计
// @Description 用户、课程、选课、证书的全站统计
// @Tags 管理
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=service.SystemStats}
// @Failure 403 {object} util.Response
// @Router /api/admin/stats [get]
func (c *AdminController) Stats(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}

	stats, err := c.StatsService.SystemStats(ctx.Request.Context(), actor)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, stats)
}

// Broadcast godoc
// @Summary 群发通知
// @Description recipientType 取值 all / students / teachers / course
// @Tags 管理
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body service.BroadcastReq true "通知内容"
// @Success 201 {object} util.Response{data=service.BroadcastResult}
// @Failure 400 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/admin/notifications [post]
func (c *AdminController) Broadcast(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}
	var req service.BroadcastReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.NotificationService.Broadcast(ctx.Request.Context(), actor, req)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Created(ctx, result)
}
