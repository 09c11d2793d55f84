package controller

import (
	"mylms_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// currentActor 读取当前登录用户，未登录时写入 401
func currentActor(ctx *gin.Context) (util.Actor, bool) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return util.Actor{}, false
	}
	return claims.Actor(), true
}
