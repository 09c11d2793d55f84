package controller

import (
	"mylms_backend/internal/service"
	"mylms_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type CertificateController struct {
	CertificateService *service.CertificateService
}

func NewCertificateController(certificateService *service.CertificateService) *CertificateController {
	return &CertificateController{CertificateService: certificateService}
}

// List godoc
// @Summary 证书列表
// @Description 管理员看全部，讲师看自己课程，学生看自己的证书
// @Tags 证书
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]model.Certificate}
// @Router /api/certificates [get]
func (c *CertificateController) List(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}

	list, err := c.CertificateService.List(ctx.Request.Context(), actor)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, list)
}

// Get godoc
// @Summary 证书详情
// @Tags 证书
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "证书ID"
// @Success 200 {object} util.Response{data=model.Certificate}
// @Failure 404 {object} util.Response
// @Router /api/certificates/{id} [get]
func (c *CertificateController) Get(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}
	id, ok := util.ParamUint(ctx, "id")
	if !ok {
		return
	}

	cert, err := c.CertificateService.Get(ctx.Request.Context(), actor, id)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, cert)
}

// Issue godoc
// @Summary 签发证书
// @Description 课程讲师或管理员为学生签发证书；讲师签发要求学生已完成全部课时
// @Tags 证书
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body service.IssueCertificateReq true "课程和学生"
// @Success 201 {object} util.Response{data=model.Certificate}
// @Failure 400 {object} util.Response "学生未完成课程"
// @Failure 403 {object} util.Response "无权签发"
// @Failure 404 {object} util.Response "学生或选课不存在"
// @Failure 409 {object} util.Response "证书已存在"
// @Router /api/certificates/issue [post]
func (c *CertificateController) Issue(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}

	var req service.IssueCertificateReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	cert, err := c.CertificateService.IssueCertificate(ctx.Request.Context(), actor, req.CourseID, req.StudentID)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Created(ctx, cert)
}

// Verify godoc
// @Summary 校验证书
// @Description 公开接口，根据证书编号查询证书
// @Tags 证书
// @Produce  json
// @Param   code path string true "证书编号"
// @Success 200 {object} util.Response{data=model.Certificate}
// @Failure 404 {object} util.Response
// @Router /api/public/certificates/verify/{code} [get]
func (c *CertificateController) Verify(ctx *gin.Context) {
	cert, err := c.CertificateService.VerifyCertificate(ctx.Request.Context(), ctx.Param("code"))
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, cert)
}
