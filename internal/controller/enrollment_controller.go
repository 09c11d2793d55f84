package controller

import (
	"mylms_backend/internal/service"
	"mylms_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type EnrollmentController struct {
	EnrollmentService *service.EnrollmentService
}

func NewEnrollmentController(enrollmentService *service.EnrollmentService) *EnrollmentController {
	return &EnrollmentController{EnrollmentService: enrollmentService}
}

// Enroll godoc
// @Summary 选课
// @Tags 选课
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body service.EnrollReq true "课程ID"
// @Success 201 {object} util.Response{data=model.Enrollment}
// @Failure 403 {object} util.Response "仅学生可选课"
// @Failure 404 {object} util.Response
// @Failure 409 {object} util.Response "已选课"
// @Router /api/enrollments [post]
func (c *EnrollmentController) Enroll(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}

	var req service.EnrollReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	enrollment, err := c.EnrollmentService.Enroll(ctx.Request.Context(), actor, req.CourseID)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Created(ctx, enrollment)
}

// ListMine godoc
// @Summary 我的选课
// @Tags 选课
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]model.Enrollment}
// @Router /api/enrollments [get]
func (c *EnrollmentController) ListMine(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}

	list, err := c.EnrollmentService.ListMine(ctx.Request.Context(), actor)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, list)
}

// ListForCourse godoc
// @Summary 课程选课名单
// @Tags 选课
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "课程ID"
// @Success 200 {object} util.Response{data=[]model.Enrollment}
// @Failure 403 {object} util.Response
// @Router /api/courses/{id}/enrollments [get]
func (c *EnrollmentController) ListForCourse(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}
	courseID, ok := util.ParamUint(ctx, "id")
	if !ok {
		return
	}

	list, err := c.EnrollmentService.ListForCourse(ctx.Request.Context(), actor, courseID)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, list)
}

// Drop godoc
// @Summary 退课
// @Tags 选课
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "选课ID"
// @Success 200 {object} util.Response{data=model.Enrollment}
// @Failure 400 {object} util.Response "当前状态不能退课"
// @Failure 403 {object} util.Response
// @Router /api/enrollments/{id}/drop [post]
func (c *EnrollmentController) Drop(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}
	id, ok := util.ParamUint(ctx, "id")
	if !ok {
		return
	}

	enrollment, err := c.EnrollmentService.Drop(ctx.Request.Context(), actor, id)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, enrollment)
}

// SetStatus godoc
// @Summary 修改选课状态
// @Description 讲师或管理员直接设置 enrolled/completed/dropped
// @Tags 选课
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "选课ID"
// @Param   body body service.SetEnrollmentStatusReq true "状态"
// @Success 200 {object} util.Response{data=model.Enrollment}
// @Failure 400 {object} util.Response
// @Failure 403 {object} util.Response
// @Router /api/enrollments/{id}/status [put]
func (c *EnrollmentController) SetStatus(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}
	id, ok := util.ParamUint(ctx, "id")
	if !ok {
		return
	}

	var req service.SetEnrollmentStatusReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	enrollment, err := c.EnrollmentService.SetStatus(ctx.Request.Context(), actor, id, req.Status)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, enrollment)
}
