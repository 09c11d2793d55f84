package controller

import (
	"mylms_backend/internal/service"
	"mylms_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ProgressController struct {
	ProgressService *service.ProgressService
}

func NewProgressController(progressService *service.ProgressService) *ProgressController {
	return &ProgressController{ProgressService: progressService}
}

// GetCourseProgress godoc
// @Summary 我的课程进度
// @Description 返回课时和测验完成情况；首次达到全部完成时自动签发证书
// @Tags 学习进度
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "课程ID"
// @Success 200 {object} util.Response{data=service.CompletionReport}
// @Failure 403 {object} util.Response "未选课"
// @Failure 404 {object} util.Response "课程不存在"
// @Router /api/courses/{id}/progress [get]
func (c *ProgressController) GetCourseProgress(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}
	courseID, ok := util.ParamUint(ctx, "id")
	if !ok {
		return
	}

	report, err := c.ProgressService.GetCourseProgress(ctx.Request.Context(), actor, courseID)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, report)
}

// GetStudentProgress godoc
// @Summary 学生课程进度
// @Description 讲师或管理员查看学生进度，不触发签发
// @Tags 学习进度
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "课程ID"
// @Param   studentId path int true "学生ID"
// @Success 200 {object} util.Response{data=service.CompletionReport}
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/courses/{id}/students/{studentId}/progress [get]
func (c *ProgressController) GetStudentProgress(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}
	courseID, ok := util.ParamUint(ctx, "id")
	if !ok {
		return
	}
	studentID, ok := util.ParamUint(ctx, "studentId")
	if !ok {
		return
	}

	report, err := c.ProgressService.GetStudentProgress(ctx.Request.Context(), actor, courseID, studentID)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, report)
}

// UpdateLessonProgress godoc
// @Summary 更新课时进度
// @Description 写入课时状态并重新评估课程完成情况
// @Tags 学习进度
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "课时ID"
// @Param   body body service.UpdateProgressReq true "状态 not_started/in_progress/completed"
// @Success 200 {object} util.Response{data=service.LessonProgressResult}
// @Failure 400 {object} util.Response
// @Failure 403 {object} util.Response
// @Router /api/lessons/{id}/progress [put]
func (c *ProgressController) UpdateLessonProgress(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}
	lessonID, ok := util.ParamUint(ctx, "id")
	if !ok {
		return
	}

	var req service.UpdateProgressReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.ProgressService.UpdateLessonProgress(ctx.Request.Context(), actor, lessonID, req.Status)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, result)
}
